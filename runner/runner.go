package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-bench/metrics"
	"github.com/ethereum-optimism/infra/op-bench/reporting"
	"github.com/ethereum-optimism/infra/op-bench/suite"
	"github.com/ethereum-optimism/infra/op-bench/types"
)

// ErrTooManyRoots is returned when a second root suite is registered.
var ErrTooManyRoots = errors.New("too many roots")

// Stages of a suite execution, used to label failures.
const (
	StageBefore  = "before"
	StageService = "service"
	StageMeasure = "measure"
	StageAfter   = "after"
)

// Measurer benchmarks a single suite. Implementations do nothing when the
// suite has no services, routes or options. Otherwise they announce the
// suite with Reporter.Suite, deliver results with Reporter.Results, and on
// failure call Reporter.Error and return the error marked with
// reporting.MarkReported.
type Measurer interface {
	Measure(ctx context.Context, s *suite.Suite, r reporting.Reporter) error
}

// MeasurerFunc adapts a function to the Measurer interface.
type MeasurerFunc func(ctx context.Context, s *suite.Suite, r reporting.Reporter) error

func (f MeasurerFunc) Measure(ctx context.Context, s *suite.Suite, r reporting.Reporter) error {
	return f(ctx, s, r)
}

// SuiteResult captures the execution of one suite.
type SuiteResult struct {
	Title        string
	Status       types.Status
	Stage        string // stage that failed, empty on success
	Error        error
	Routes       int
	FailedRoutes int
	Duration     time.Duration
}

// ResultStats tracks suite counts of a run.
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// RunResult captures a complete benchmark run.
type RunResult struct {
	RunID    string
	Suites   []*SuiteResult
	Status   types.Status
	Duration time.Duration
	Stats    ResultStats
}

// Config holds configuration for creating a new Runner.
type Config struct {
	Measurer Measurer
	Log      log.Logger
}

// Runner holds the ordered suite registry and executes it.
type Runner struct {
	mu       sync.Mutex
	suites   []*suite.Suite
	root     *suite.Suite
	measurer Measurer
	log      log.Logger
	tracer   trace.Tracer
}

var _ suite.Registrar = (*Runner)(nil)

// New creates a Runner with an empty registry.
func New(cfg Config) (*Runner, error) {
	if cfg.Measurer == nil {
		return nil, errors.New("measurer is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Runner{
		measurer: cfg.Measurer,
		log:      cfg.Log,
		tracer:   otel.Tracer("bench runner"),
	}, nil
}

// AddSuite appends s to the registry. Suites run in registration order.
func (r *Runner) AddSuite(s *suite.Suite) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suites = append(r.suites, s)
}

// AddRootSuite sets the root suite, which always runs after every other
// suite. Only one root may be registered.
func (r *Runner) AddRootSuite(s *suite.Suite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.root != nil {
		return ErrTooManyRoots
	}
	r.root = s
	return nil
}

// ClearRootSuite forgets the root suite.
func (r *Runner) ClearRootSuite() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root = nil
}

// Suites returns the registered suites in execution order.
func (r *Runner) Suites() []*suite.Suite {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]*suite.Suite(nil), r.suites...)
	if r.root != nil {
		out = append(out, r.root)
	}
	return out
}

// Run executes every registered suite, the root suite last, and drains the
// registry. Suites run strictly one after another; a failing suite is
// reported through reporter and does not stop the run. Run only returns an
// error if ctx is done before all suites ran.
func (r *Runner) Run(ctx context.Context, reporter reporting.Reporter) (*RunResult, error) {
	return r.RunWithID(ctx, uuid.New().String(), reporter)
}

// RunWithID is Run with a caller chosen run id, so that sinks created before
// the run can refer to it.
func (r *Runner) RunWithID(ctx context.Context, runID string, reporter reporting.Reporter) (*RunResult, error) {
	if reporter == nil {
		return nil, errors.New("reporter is required")
	}

	r.mu.Lock()
	suites := r.suites
	if r.root != nil {
		suites = append(suites, r.root)
	}
	r.suites = nil
	r.root = nil
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, "run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	start := time.Now()
	result := &RunResult{
		RunID: runID,
		Stats: ResultStats{StartTime: start},
	}
	r.log.Info("Running suites", "run_id", runID, "suites", len(suites))

	var runErr error
	for _, s := range suites {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("run interrupted: %w", err)
			break
		}
		res := r.runSuite(ctx, s, reporter)
		result.Suites = append(result.Suites, res)
		result.Stats.Total++
		switch res.Status {
		case types.StatusPass:
			result.Stats.Passed++
		case types.StatusSkip:
			result.Stats.Skipped++
		default:
			result.Stats.Failed++
		}
	}

	result.Duration = time.Since(start)
	result.Stats.EndTime = time.Now()
	result.Status = determineRunStatus(result)
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
	}
	return result, runErr
}

func (r *Runner) runSuite(ctx context.Context, s *suite.Suite, reporter reporting.Reporter) *SuiteResult {
	title := s.DisplayTitle()
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("suite %s", title))
	defer span.End()

	start := time.Now()
	res := &SuiteResult{Title: title, Status: types.StatusPass}
	r.log.Debug("Running suite", "suite", title)

	fail := func(stage string, err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordHookFailure(stage)
		r.log.Error("Suite failed", "suite", title, "stage", stage, "err", err)
		if !reporting.IsReported(err) {
			reporter.Error(title, err)
		}
		if res.Error == nil {
			res.Status = types.StatusFail
			res.Stage = stage
			res.Error = err
		}
	}

	if err := s.InvokeBefores(ctx); err != nil {
		fail(StageBefore, err)
	} else if err := s.InvokeServiceHooks(ctx); err != nil {
		fail(StageService, err)
	} else {
		if !s.Measurable() {
			res.Status = types.StatusSkip
		}
		tap := &resultsTap{Reporter: reporter}
		if err := r.measurer.Measure(ctx, s, tap); err != nil {
			fail(StageMeasure, err)
		}
		res.Routes, res.FailedRoutes = tap.routes, tap.failed
		if res.FailedRoutes > 0 && res.Status == types.StatusPass {
			res.Status = types.StatusFail
			res.Stage = StageMeasure
		}
	}

	// After hooks run even when the run is being cancelled.
	if err := s.InvokeAfters(context.WithoutCancel(ctx)); err != nil {
		fail(StageAfter, err)
	}

	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("routes", res.Routes),
	)
	metrics.RecordSuite(title, res.Status, res.Duration)
	r.log.Debug("Suite completed", "suite", title, "status", res.Status, "duration", res.Duration)
	return res
}

// resultsTap forwards every event and counts the routes it sees.
type resultsTap struct {
	reporting.Reporter
	title  string
	routes int
	failed int
}

func (t *resultsTap) Suite(title string) {
	t.title = title
	t.Reporter.Suite(title)
}

func (t *resultsTap) Results(results types.Results) {
	for _, res := range results.Sorted() {
		t.routes++
		if res.Status() == types.StatusFail {
			t.failed++
		}
		metrics.RecordRoute(t.title, res)
	}
	t.Reporter.Results(results)
}

func determineRunStatus(result *RunResult) types.Status {
	if result.Stats.Failed > 0 {
		return types.StatusFail
	}
	if result.Stats.Passed == 0 && result.Stats.Skipped > 0 {
		return types.StatusSkip
	}
	return types.StatusPass
}

// String returns a short multi-line summary of the run.
func (r *RunResult) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Benchmark Run Results (%s):\n", formatDuration(r.Duration)))
	b.WriteString(fmt.Sprintf("Total: %d, Passed: %d, Failed: %d, Skipped: %d\n",
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped))
	for _, s := range r.Suites {
		b.WriteString(fmt.Sprintf("├── Suite: %s (%s) [status=%s]\n", s.Title, formatDuration(s.Duration), s.Status))
		if s.Error != nil {
			b.WriteString(fmt.Sprintf("│       └── Error (%s): %s\n", s.Stage, s.Error.Error()))
		} else if s.FailedRoutes > 0 {
			b.WriteString(fmt.Sprintf("│       └── %d of %d routes failed\n", s.FailedRoutes, s.Routes))
		}
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Truncate(time.Millisecond).String()
}
