package monitor

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latency metric names produced by LatencyDigest.
const (
	MetricTaskCount = "task_count"
	MetricTaskP50   = "task_p50_ms"
	MetricTaskP95   = "task_p95_ms"
	MetricTaskMax   = "task_max_ms"
	MetricTaskMean  = "task_mean_ms"
)

const (
	minTrackableMicros = 1
	maxTrackableMicros = int64(time.Hour / time.Microsecond)
	significantFigures = 3
)

// LatencyDigest accumulates task durations with microsecond resolution up to
// one hour. Longer durations are clamped. It is safe for concurrent use.
type LatencyDigest struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// NewLatencyDigest creates an empty digest.
func NewLatencyDigest() *LatencyDigest {
	return &LatencyDigest{hist: hdrhistogram.New(minTrackableMicros, maxTrackableMicros, significantFigures)}
}

// Observe records one duration.
func (d *LatencyDigest) Observe(dur time.Duration) {
	us := dur.Microseconds()
	if us < minTrackableMicros {
		us = minTrackableMicros
	}
	if us > maxTrackableMicros {
		us = maxTrackableMicros
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.hist.RecordValue(us)
}

// Count returns the number of observations.
func (d *LatencyDigest) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hist.TotalCount()
}

// Metrics returns the digest as record extras. An empty digest only reports
// task_count.
func (d *LatencyDigest) Metrics() map[string]float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.hist.TotalCount()
	out := map[string]float64{MetricTaskCount: float64(n)}
	if n == 0 {
		return out
	}
	out[MetricTaskP50] = microsToMillis(d.hist.ValueAtQuantile(50))
	out[MetricTaskP95] = microsToMillis(d.hist.ValueAtQuantile(95))
	out[MetricTaskMax] = microsToMillis(d.hist.Max())
	out[MetricTaskMean] = d.hist.Mean() / 1000
	return out
}

// Reset clears all observations.
func (d *LatencyDigest) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hist.Reset()
}

func microsToMillis(us int64) float64 { return float64(us) / 1000 }
