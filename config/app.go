package config

import (
	"fmt"
	"time"

	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/observability"
	"github.com/kbukum/chainkit/resilience"
	"github.com/kbukum/chainkit/storage"
	"github.com/kbukum/chainkit/validation"
)

// Defaults used when the config file leaves a value unset.
const (
	DefaultMaxParallel   = 3
	DefaultBudgetFile    = "execution-budget.yaml"
	DefaultChainsFile    = "chains.yaml"
	DefaultMetricsPrefix = "performance"
)

// SchedulerConfig configures the parallel block scheduler.
type SchedulerConfig struct {
	// MaxParallel caps concurrently running tasks. Zero means "take
	// task_limits.max_parallel_tasks from the budget file, else 3".
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel" validate:"gte=0"`
	// JournalPath, when set, receives the markdown execution log.
	JournalPath string `yaml:"journal_path" mapstructure:"journal_path"`
}

// OrchestratorConfig configures chain interpretation.
type OrchestratorConfig struct {
	ChainsFile   string                 `yaml:"chains_file" mapstructure:"chains_file" validate:"required"`
	StrictChains bool                   `yaml:"strict_chains" mapstructure:"strict_chains"`
	Retry        resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
	// TaskTimeout bounds each task invocation; zero disables it.
	TaskTimeout time.Duration `yaml:"task_timeout" mapstructure:"task_timeout" validate:"gte=0"`
}

// MonitorConfig configures the performance monitor.
type MonitorConfig struct {
	BudgetFile string `yaml:"budget_file" mapstructure:"budget_file"`
	// Prefix is the storage prefix for iteration records and the dashboard.
	Prefix string `yaml:"prefix" mapstructure:"prefix" validate:"required"`
}

// AppConfig is the full chainkit configuration tree.
type AppConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Scheduler    SchedulerConfig           `yaml:"scheduler" mapstructure:"scheduler"`
	Orchestrator OrchestratorConfig        `yaml:"orchestrator" mapstructure:"orchestrator"`
	Monitor      MonitorConfig             `yaml:"monitor" mapstructure:"monitor"`
	Storage      storage.Config            `yaml:"storage" mapstructure:"storage"`
	Tracing      observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics      observability.MeterConfig `yaml:"metrics" mapstructure:"metrics"`
}

// ApplyDefaults fills unset values, including the service identity carried
// into the tracing and metrics configs.
func (c *AppConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()

	if c.Orchestrator.ChainsFile == "" {
		c.Orchestrator.ChainsFile = DefaultChainsFile
	}
	if c.Monitor.BudgetFile == "" {
		c.Monitor.BudgetFile = DefaultBudgetFile
	}
	if c.Monitor.Prefix == "" {
		c.Monitor.Prefix = DefaultMetricsPrefix
	}
	c.Storage.ApplyDefaults()

	if c.Tracing.Endpoint == "" {
		c.Tracing.Endpoint = "localhost:4318"
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1.0
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "localhost:4318"
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = 15 * time.Second
	}
	c.Tracing.ServiceName, c.Tracing.ServiceVersion, c.Tracing.Environment = c.Name, c.Version, c.Environment
	c.Metrics.ServiceName, c.Metrics.ServiceVersion, c.Metrics.Environment = c.Name, c.Version, c.Environment
}

// Validate checks the whole tree. Struct tag failures and backend checks
// surface as INVALID_CONFIG AppErrors.
func (c *AppConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return errors.Configuration("", err.Error()).WithCause(err)
	}
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return errors.Configuration("storage", err.Error()).WithCause(err)
	}
	return nil
}

// Load reads configuration for service and returns it with defaults applied
// and validated.
func Load(service string, opts ...LoaderOption) (*AppConfig, error) {
	var cfg AppConfig
	if err := LoadConfig(service, &cfg, opts...); err != nil {
		return nil, errors.Configuration("", fmt.Sprintf("load: %v", err)).WithCause(err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
