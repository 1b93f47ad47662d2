package monitor

import (
	"runtime"
	"time"
)

const bytesPerMiB = 1024 * 1024

// Probe is a wall-clock and heap reading taken at the start of a scope.
type Probe struct {
	start time.Time
	heap  uint64
}

// Begin takes a reading now.
func Begin() Probe {
	return Probe{start: time.Now(), heap: heapAlloc()}
}

// End returns the elapsed time in milliseconds and the change in live heap in
// MiB since the probe was taken. The memory delta may be negative.
func (p Probe) End() (runtimeMS, memoryDeltaMiB float64) {
	elapsed := time.Since(p.start)
	delta := float64(int64(heapAlloc()) - int64(p.heap))
	return float64(elapsed) / float64(time.Millisecond), delta / bytesPerMiB
}

// Start returns when the probe was taken.
func (p Probe) Start() time.Time { return p.start }

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}
