package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kbukum/chainkit/chain"
	"github.com/kbukum/chainkit/config"
	"github.com/kbukum/chainkit/contextgraph"
	"github.com/kbukum/chainkit/errors"
	"github.com/kbukum/chainkit/logger"
	"github.com/kbukum/chainkit/monitor"
	"github.com/kbukum/chainkit/observability"
	"github.com/kbukum/chainkit/orchestrator"
	"github.com/kbukum/chainkit/scheduler"
	"github.com/kbukum/chainkit/storage"
	"github.com/kbukum/chainkit/tasks"

	// Storage backends selectable through storage.provider.
	_ "github.com/kbukum/chainkit/storage/local"
	_ "github.com/kbukum/chainkit/storage/s3"
)

const serviceName = "chainkit"

// runtime is everything a command needs, built from config and flags.
type runtime struct {
	cfg     *config.AppConfig
	log     *logger.Logger
	store   storage.Storage
	metrics *observability.Metrics
	budget  monitor.Budget
	limits  monitor.Limits
	monitor *monitor.Monitor

	closers []func(context.Context) error
}

func (a *App) setup(ctx context.Context) (*runtime, error) {
	var opts []config.LoaderOption
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	cfg, err := config.Load(serviceName, opts...)
	if err != nil {
		return nil, err
	}
	if a.chainsFile != "" {
		cfg.Orchestrator.ChainsFile = a.chainsFile
	}
	if a.budgetFile != "" {
		cfg.Monitor.BudgetFile = a.budgetFile
	}
	if a.debug {
		cfg.Debug = true
		cfg.Logging.Level = "debug"
	}

	rt := &runtime{cfg: cfg, log: a.newLogger(&cfg.Logging)}
	logger.SetGlobalLogger(rt.log)
	logger.RegisterDefaults("chain", "scheduler", "monitor", "orchestrator", "storage", "config")

	if err := rt.initTelemetry(ctx); err != nil {
		rt.close(ctx)
		return nil, err
	}

	rt.store, err = storage.New(cfg.Storage, logger.Get("storage"))
	if err != nil {
		rt.close(ctx)
		return nil, errors.Configuration("storage", err.Error()).WithCause(err)
	}

	rt.budget, rt.limits, err = loadBudget(cfg.Monitor.BudgetFile, rt.log)
	if err != nil {
		rt.close(ctx)
		return nil, err
	}
	rt.monitor = monitor.New(rt.budget,
		monitor.NewStorageSink(rt.store, cfg.Monitor.Prefix),
		monitor.WithLogger(logger.Get("monitor")),
		monitor.WithMetrics(rt.metrics),
	)
	return rt, nil
}

// newLogger writes console and stderr logs to the App's stderr so results on
// stdout stay machine readable.
func (a *App) newLogger(cfg *logger.Config) *logger.Logger {
	switch cfg.Output {
	case "", "stderr", "stdout":
		return logger.NewWithWriter(cfg, cfg.ServiceName, a.stderr)
	default:
		return logger.New(cfg, cfg.ServiceName)
	}
}

func (rt *runtime) initTelemetry(ctx context.Context) error {
	if rt.cfg.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, rt.cfg.Tracing)
		if err != nil {
			return errors.Configuration("tracing", err.Error()).WithCause(err)
		}
		rt.closers = append(rt.closers, tp.Shutdown)
	}
	if rt.cfg.Metrics.Enabled {
		mp, err := observability.InitMeter(ctx, rt.cfg.Metrics)
		if err != nil {
			return errors.Configuration("metrics", err.Error()).WithCause(err)
		}
		rt.closers = append(rt.closers, mp.Shutdown)
		m, err := observability.NewMetrics(observability.Meter(serviceName))
		if err != nil {
			return errors.Internal(err)
		}
		rt.metrics = m
	}
	return nil
}

// loadBudget treats a missing budget file as an empty budget.
func loadBudget(path string, log *logger.Logger) (monitor.Budget, monitor.Limits, error) {
	if _, err := os.Stat(path); stderrors.Is(err, os.ErrNotExist) {
		log.Debug("no budget file, compliance checks pass trivially", logger.Fields("path", path))
		return monitor.Budget{}, monitor.Limits{}, nil
	}
	return monitor.LoadBudget(path)
}

func (rt *runtime) close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](context.WithoutCancel(ctx)); err != nil {
			rt.log.Warn("shutdown failed", logger.ErrorFields("shutdown", err))
		}
	}
	rt.closers = nil
}

// maxParallel resolves the scheduler cap: config, then the budget's
// task_limits, then the default.
func (rt *runtime) maxParallel() int {
	switch {
	case rt.cfg.Scheduler.MaxParallel > 0:
		return rt.cfg.Scheduler.MaxParallel
	case rt.limits.MaxParallelTasks > 0:
		return rt.limits.MaxParallelTasks
	default:
		return config.DefaultMaxParallel
	}
}

func (rt *runtime) openJournal() (io.Writer, error) {
	p := rt.cfg.Scheduler.JournalPath
	if p == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return nil, errors.Configuration("scheduler.journal_path", err.Error()).WithCause(err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, errors.Configuration("scheduler.journal_path", err.Error()).WithCause(err)
	}
	rt.closers = append(rt.closers, func(context.Context) error { return f.Close() })
	return f, nil
}

// orchestrator loads the catalog, registers tasks and wires the engine.
func (a *App) orchestrator(rt *runtime, strict bool, graph *contextgraph.Graph) (*orchestrator.Orchestrator, error) {
	catalog, err := chain.LoadCatalog(rt.cfg.Orchestrator.ChainsFile)
	if err != nil {
		return nil, err
	}

	registry := chain.NewRegistry()
	for _, register := range a.registerTasks {
		if err := register(registry); err != nil {
			return nil, err
		}
	}
	if err := tasks.RegisterCatalog(registry, catalog); err != nil {
		return nil, err
	}

	journal, err := rt.openJournal()
	if err != nil {
		return nil, err
	}
	schedOpts := []scheduler.Option{
		scheduler.WithLogger(logger.Get("scheduler")),
		scheduler.WithMetrics(rt.metrics),
	}
	if journal != nil {
		schedOpts = append(schedOpts, scheduler.WithJournal(journal))
	}
	sched, err := scheduler.New(scheduler.Config{MaxParallel: rt.maxParallel()}, schedOpts...)
	if err != nil {
		return nil, err
	}

	oc := rt.cfg.Orchestrator
	opts := []orchestrator.Option{
		orchestrator.WithStrictChains(oc.StrictChains || strict),
		orchestrator.WithRetry(oc.Retry),
		orchestrator.WithTaskTimeout(oc.TaskTimeout),
		orchestrator.WithLogger(logger.Get("orchestrator")),
		orchestrator.WithMetrics(rt.metrics),
		orchestrator.WithGraph(graph),
	}
	if rt.cfg.Tracing.Enabled {
		opts = append(opts, orchestrator.WithTracing(""))
	}
	o, err := orchestrator.New(catalog, registry, sched, rt.monitor, opts...)
	if err != nil {
		return nil, err
	}
	rt.log.Debug("engine wired", logger.Fields(
		"chains_file", oc.ChainsFile,
		"max_parallel", sched.MaxParallel(),
		"storage", fmt.Sprintf("%s:%s", rt.cfg.Storage.Provider, rt.cfg.Storage.BasePath),
	))
	return o, nil
}
