package orchestrator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/chainkit/contextgraph"
	"github.com/kbukum/chainkit/logger"
	"github.com/kbukum/chainkit/observability"
	"github.com/kbukum/chainkit/resilience"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStrictChains makes an unknown chain name an UNKNOWN_CHAIN error
// instead of an empty "executed" result.
func WithStrictChains(strict bool) Option {
	return func(o *Orchestrator) { o.strict = strict }
}

// WithRetry sets the per-task retry policy. The default is a single attempt.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *Orchestrator) { o.retry = cfg }
}

// WithTaskTimeout bounds every task attempt. Zero means no bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.taskTimeout = d }
}

// WithLogger sets the logger used for chain and task lines.
func WithLogger(log *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithMetrics records chain and task instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracing wraps every task in a span named prefix+task.
func WithTracing(prefix string) Option {
	return func(o *Orchestrator) {
		o.tracing = true
		o.tracePrefix = prefix
	}
}

// WithIterationIDs replaces the iteration id generator.
func WithIterationIDs(fn func(chainName string) string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithGraph records a summary of every run in g.
func WithGraph(g *contextgraph.Graph) Option {
	return func(o *Orchestrator) { o.graph = g }
}

// NewIterationID returns "<name>-<UTC yyyymmddThhmmss>-<8 hex chars>".
func NewIterationID(name string) string {
	return fmt.Sprintf("%s-%s-%s", name, time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
}
