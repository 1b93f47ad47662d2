package monitor

import "time"

// Core metric names a measured record carries.
const (
	MetricRuntimeMS   = "runtime_ms"
	MetricMemoryDelta = "memory_delta"
)

// Record is the performance metrics of one iteration. It is written once and
// never updated. The core metrics are nil when they were not measured.
type Record struct {
	IterationID string             `json:"iteration_id"`
	Timestamp   time.Time          `json:"timestamp"`
	RuntimeMS   *float64           `json:"runtime_ms,omitempty"`
	MemoryDelta *float64           `json:"memory_delta,omitempty"`
	Extra       map[string]float64 `json:"extra,omitempty"`
}

// Metrics flattens the record to metric name -> value. Extras never shadow
// a core metric that is set.
func (r Record) Metrics() map[string]float64 {
	out := make(map[string]float64, len(r.Extra)+2)
	for k, v := range r.Extra {
		out[k] = v
	}
	if r.RuntimeMS != nil {
		out[MetricRuntimeMS] = *r.RuntimeMS
	}
	if r.MemoryDelta != nil {
		out[MetricMemoryDelta] = *r.MemoryDelta
	}
	return out
}

// RecordFromMetrics builds a record from a flat metric map, lifting the core
// metrics into their fields. Core metrics absent from metrics stay unset.
func RecordFromMetrics(id string, at time.Time, metrics map[string]float64) Record {
	r := Record{IterationID: id, Timestamp: at}
	for k, v := range metrics {
		switch k {
		case MetricRuntimeMS:
			r.RuntimeMS = float64Ptr(v)
		case MetricMemoryDelta:
			r.MemoryDelta = float64Ptr(v)
		default:
			if r.Extra == nil {
				r.Extra = make(map[string]float64)
			}
			r.Extra[k] = v
		}
	}
	return r
}

func float64Ptr(v float64) *float64 { return &v }
