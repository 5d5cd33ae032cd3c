// Package bench runs HTTP benchmark plans once or on an interval.
package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-bench/history"
	"github.com/ethereum-optimism/infra/op-bench/measure"
	"github.com/ethereum-optimism/infra/op-bench/metrics"
	"github.com/ethereum-optimism/infra/op-bench/registry"
	"github.com/ethereum-optimism/infra/op-bench/reporting"
	"github.com/ethereum-optimism/infra/op-bench/runner"
	"github.com/ethereum-optimism/infra/op-bench/service"
	"github.com/ethereum-optimism/infra/op-bench/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/httputil"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

// bench implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &bench{}

// bench loads a plan and benchmarks it.
type bench struct {
	config    *Config
	version   string
	registry  *registry.Registry
	engine    *measure.Engine
	scheduler RunScheduler
	db        history.Connection
	service   *service.Service

	metricsServer *httputil.HTTPServer

	out    io.Writer
	errOut io.Writer

	mu     sync.Mutex
	result *runner.RunResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*bench, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if err := config.Check(); err != nil {
		return nil, err
	}

	config.Log.Debug("Creating bench with config",
		"plan", config.PlanFile,
		"reporters", strings.Join(config.Reporters, ","),
		"suite", config.SuiteFilter,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:      config.Log,
		PlanFile: config.PlanFile,
		Filter:   config.SuiteFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	b := &bench{
		config:   config,
		version:  version,
		registry: reg,
		engine: measure.New(measure.Config{
			Client: &http.Client{Timeout: config.RequestTimeout},
			Log:    config.Log,
		}),
		scheduler:        NewIntervalScheduler(config.RunInterval, config.RunOnce, config.Log),
		out:              os.Stdout,
		errOut:           os.Stderr,
		shutdownCallback: shutdownCallback,
	}

	if config.UsesDatabase() {
		db, err := history.New(ctx, config.DatabaseURI, config.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to prepare history database: %w", err)
		}
		b.db = db
	}

	if config.HealthzEnabled {
		b.service = service.New(config.Log)
	}
	b.seedLastRun(ctx)

	b.scheduler.RegisterCallback(b.runBenchmarks)
	config.Log.Info("bench.New: loaded plan", "suites", len(reg.Plan().Suites), "root", reg.Plan().Root != nil)
	return b, nil
}

// Start runs the plan immediately, then periodically at the configured
// interval. Start implements the cliapp.Lifecycle interface.
func (b *bench) Start(ctx context.Context) error {
	b.running.Store(true)
	if b.service != nil {
		b.service.Start(ctx, b.config.HealthzAddr)
	}
	if err := b.startMetrics(); err != nil {
		return NewRuntimeError(err)
	}

	if b.config.RunOnce {
		b.config.Log.Info("Starting op-bench in run-once mode", "version", b.version)
	} else {
		b.config.Log.Info("Starting op-bench in continuous mode", "version", b.version, "interval", b.config.RunInterval)
	}

	if err := b.scheduler.Start(ctx); err != nil {
		b.config.Log.Error("Runtime error running benchmarks", "error", err)
		return err
	}

	if b.config.RunOnce {
		b.config.Log.Info("Benchmarks completed, exiting (run-once mode)")
		if result := b.LastResult(); result != nil && result.Status == types.StatusFail {
			b.config.Log.Warn("Run-once benchmark run completed with failures, returning exit code 1")
			return NewBenchFailureError(result.String())
		}
		if b.shutdownCallback != nil {
			go b.shutdownCallback(nil)
		}
	}
	return nil
}

// seedLastRun restores the healthz status from the latest stored run so
// /status answers before the first run after a restart.
func (b *bench) seedLastRun(ctx context.Context) {
	if b.db == nil || b.service == nil {
		return
	}
	last, err := b.db.LastRun(ctx)
	if err != nil {
		b.config.Log.Warn("Failed to load the last stored run", "err", err)
		return
	}
	if last == nil {
		return
	}
	b.config.Log.Info("Restored last run from history", "run_id", last.ID, "status", last.Status)
	b.service.Healthz.SetLastRun(service.RunStatus{
		RunID:      last.ID,
		Status:     last.Status,
		Passed:     last.Suites - last.Failed,
		Failed:     last.Failed,
		FinishedAt: last.FinishedAt,
	})
}

func (b *bench) startMetrics() error {
	metricsCfg := b.config.MetricsConfig
	if !metricsCfg.Enabled {
		return nil
	}
	b.config.Log.Info("Starting metrics server", "addr", metricsCfg.ListenAddr, "port", metricsCfg.ListenPort)
	metricsServer, err := opmetrics.StartServer(metrics.Registry, metricsCfg.ListenAddr, metricsCfg.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	b.config.Log.Info("Started metrics server", "endpoint", metricsServer.Addr())
	b.metricsServer = metricsServer
	return nil
}

// runBenchmarks registers the plan on a fresh runner and runs it.
func (b *bench) runBenchmarks(ctx context.Context) error {
	runID := uuid.New().String()
	b.config.Log.Info("Running benchmarks...", "run_id", runID)

	r, err := runner.New(runner.Config{Measurer: b.engine, Log: b.config.Log})
	if err != nil {
		return NewRuntimeError(err)
	}
	if err := b.registry.Register(r); err != nil {
		return NewRuntimeError(fmt.Errorf("failed to register plan: %w", err))
	}

	extra := make(map[string]reporting.Reporter)
	if b.db != nil {
		extra[history.ReporterName] = history.NewSink(b.db, runID, b.config.Log)
	}
	reporter, err := reporting.New(strings.Join(b.config.Reporters, ","), reporting.Config{
		Out:      b.out,
		ErrOut:   b.errOut,
		HTMLFile: b.config.HTMLOutput,
		JSONFile: b.config.JSONOutput,
		Extra:    extra,
		Log:      b.config.Log,
	})
	if err != nil {
		return NewRuntimeError(err)
	}

	result, runErr := r.RunWithID(ctx, runID, reporter)
	if err := reporter.Summary(context.WithoutCancel(ctx)); err != nil {
		b.config.Log.Error("Failed to write benchmark summary", "run_id", runID, "err", err)
		metrics.RecordErrorDetails("summary", err)
	}
	if result != nil {
		b.record(result)
	}
	if runErr != nil {
		return NewRuntimeError(runErr)
	}

	b.config.Log.Info("Benchmark run completed", "run_id", runID, "status", result.Status)
	return nil
}

func (b *bench) record(result *runner.RunResult) {
	b.mu.Lock()
	b.result = result
	b.mu.Unlock()

	metrics.RecordRun(
		result.RunID,
		result.Status,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Skipped,
		result.Duration,
	)
	fmt.Fprintln(b.out, result.String())

	if b.service != nil {
		b.service.Healthz.SetLastRun(service.RunStatus{
			RunID:      result.RunID,
			Status:     string(result.Status),
			Passed:     result.Stats.Passed,
			Failed:     result.Stats.Failed,
			Skipped:    result.Stats.Skipped,
			FinishedAt: result.Stats.EndTime,
		})
	}
}

// LastResult returns the result of the latest run.
func (b *bench) LastResult() *runner.RunResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

// Stop stops the op-bench service.
// Stop implements the cliapp.Lifecycle interface.
func (b *bench) Stop(ctx context.Context) error {
	b.config.Log.Info("Stopping op-bench")
	if !b.running.Load() {
		b.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	b.running.Store(false)

	var errs []error
	if err := b.scheduler.Stop(); err != nil {
		errs = append(errs, err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := b.scheduler.WaitForShutdown(waitCtx); err != nil {
		errs = append(errs, fmt.Errorf("failed to wait for running benchmarks: %w", err))
	}
	if b.service != nil {
		b.service.Shutdown()
	}
	if b.metricsServer != nil {
		if err := b.metricsServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
		}
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close history database: %w", err))
		}
	}

	b.config.Log.Info("op-bench stopped successfully")
	return errors.Join(errs...)
}

// Stopped returns true if the op-bench service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (b *bench) Stopped() bool {
	return !b.running.Load()
}
