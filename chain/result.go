package chain

import (
	"encoding/json"
	"time"
)

// TaskStatus is the outcome of one task invocation.
type TaskStatus string

const (
	TaskExecuted TaskStatus = "executed"
	TaskFailed   TaskStatus = "failed"
	// TaskCancelled marks a task that never started because the run was
	// cancelled while it waited.
	TaskCancelled TaskStatus = "cancelled"
)

// TaskResult is the record of one task invocation.
type TaskResult struct {
	Task     string
	Status   TaskStatus
	Payload  any
	Err      error
	Attempts int
	Duration time.Duration
}

// Failed reports whether the task did not execute successfully.
func (r TaskResult) Failed() bool { return r.Status != TaskExecuted }

type taskResultJSON struct {
	Task       string     `json:"task_name"`
	Status     TaskStatus `json:"status"`
	Payload    any        `json:"payload,omitempty"`
	Error      string     `json:"error,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	DurationMS float64    `json:"duration_ms"`
}

// MarshalJSON renders the error as a string and the duration in milliseconds.
func (r TaskResult) MarshalJSON() ([]byte, error) {
	out := taskResultJSON{
		Task:       r.Task,
		Status:     r.Status,
		Payload:    r.Payload,
		Attempts:   r.Attempts,
		DurationMS: float64(r.Duration) / float64(time.Millisecond),
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// ChainStatus is the outcome of a chain run.
type ChainStatus string

const (
	ChainCompleted ChainStatus = "completed"
	ChainFailed    ChainStatus = "failed"
	ChainCancelled ChainStatus = "cancelled"
	// ChainExecuted is reported for a chain name the catalog does not know
	// when the orchestrator runs in lenient mode.
	ChainExecuted ChainStatus = "executed"
)

// Alert is a budget violation attached to a chain result.
type Alert struct {
	Metric  string `json:"metric"`
	Message string `json:"message"`
}

// Result is the outcome of one chain run.
type Result struct {
	Chain              string
	Iteration          string
	Status             ChainStatus
	Executed           []string
	Tasks              []TaskResult
	Err                error
	PerformanceMetrics map[string]float64
	PerformanceAlerts  []Alert
	// MetricsPersisted is false when the metrics record was not durably
	// written. The result is still valid.
	MetricsPersisted bool
	Duration         time.Duration
}

// Compliant reports whether the run raised no budget alerts.
func (r *Result) Compliant() bool { return len(r.PerformanceAlerts) == 0 }

type resultJSON struct {
	Chain              string             `json:"chain_name"`
	Iteration          string             `json:"iteration_id,omitempty"`
	Status             ChainStatus        `json:"status"`
	Executed           []string           `json:"executed_modules"`
	Tasks              []TaskResult       `json:"tasks,omitempty"`
	Error              string             `json:"error,omitempty"`
	PerformanceMetrics map[string]float64 `json:"performance_metrics,omitempty"`
	PerformanceAlerts  []Alert            `json:"performance_alerts,omitempty"`
	MetricsPersisted   bool               `json:"metrics_persisted"`
	DurationMS         float64            `json:"duration_ms"`
}

// MarshalJSON renders the result in the CLI's output shape.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Chain:              r.Chain,
		Iteration:          r.Iteration,
		Status:             r.Status,
		Executed:           r.Executed,
		Tasks:              r.Tasks,
		PerformanceMetrics: r.PerformanceMetrics,
		PerformanceAlerts:  r.PerformanceAlerts,
		MetricsPersisted:   r.MetricsPersisted,
		DurationMS:         float64(r.Duration) / float64(time.Millisecond),
	}
	if out.Executed == nil {
		out.Executed = []string{}
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// JSON returns the indented JSON form of the result.
func (r *Result) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
