package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-bench/measure"
	"github.com/ethereum-optimism/infra/op-bench/reporting"
	"github.com/ethereum-optimism/infra/op-bench/suite"
	"github.com/ethereum-optimism/infra/op-bench/types"
)

type recordingReporter struct {
	events []string
	errors []error
}

func (r *recordingReporter) Suite(title string) {
	r.events = append(r.events, "suite:"+title)
}

func (r *recordingReporter) Results(results types.Results) {
	r.events = append(r.events, fmt.Sprintf("results:%d", len(results.Sorted())))
}

func (r *recordingReporter) Error(suite string, err error) {
	r.events = append(r.events, "error:"+suite)
	r.errors = append(r.errors, err)
}

func (r *recordingReporter) Summary(context.Context) error {
	r.events = append(r.events, "summary")
	return nil
}

// fakeMeasurer records the suites it sees and behaves like the real engine
// towards the reporter.
type fakeMeasurer struct {
	measured []string
	services []map[string]string
	err      map[string]error
	failing  map[string]bool
}

func (m *fakeMeasurer) Measure(_ context.Context, s *suite.Suite, r reporting.Reporter) error {
	m.measured = append(m.measured, s.Title())
	m.services = append(m.services, s.Services())
	if !s.Measurable() {
		return nil
	}
	r.Suite(s.DisplayTitle())
	if err := m.err[s.Title()]; err != nil {
		r.Error(s.DisplayTitle(), err)
		return reporting.MarkReported(err)
	}
	results := types.Results{}
	for name := range s.Routes() {
		res := &types.RouteResult{Service: "svc", Route: name, Name: name}
		if m.failing[name] {
			res.Errors = []types.RouteError{{Kind: types.ErrorKindStatus, Message: "bad status"}}
		}
		results.Add(res)
	}
	r.Results(results)
	return nil
}

func newTestRunner(t *testing.T, m Measurer) *Runner {
	r, err := New(Config{Measurer: m, Log: log.New()})
	require.NoError(t, err)
	return r
}

func measurableSuite(title string, parent *suite.Suite) *suite.Suite {
	s := suite.New(title, parent)
	s.AddServiceHook("svc", "http://localhost:1234")
	s.AddRoute("status", suite.Path("status"))
	return s
}

func TestNewRequiresMeasurer(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestRunnerBefores(t *testing.T) {
	ctx := context.Background()

	t.Run("calls every before callback once", func(t *testing.T) {
		calls := make([]int, 4)
		s := suite.New("", nil)
		s.AddBefore(func() { calls[0]++ })
		s.AddBefore(func() error { calls[1]++; return nil })
		s.AddBefore(func(done func()) { calls[2]++; done() })
		s.AddBefore(func(ctx context.Context) error { calls[3]++; return nil })

		r := newTestRunner(t, &fakeMeasurer{})
		r.AddSuite(s)
		_, err := r.Run(ctx, &recordingReporter{})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 1, 1, 1}, calls)
	})

	t.Run("sets services after the before hooks", func(t *testing.T) {
		url := ""
		s := suite.New("late", nil)
		s.AddBefore(func() { url = "http://localhost:9999" })
		s.AddServiceHook("svc", func() string { return url })

		m := &fakeMeasurer{}
		r := newTestRunner(t, m)
		r.AddSuite(s)
		_, err := r.Run(ctx, &recordingReporter{})
		require.NoError(t, err)
		require.Len(t, m.services, 1)
		assert.Equal(t, "http://localhost:9999", m.services[0]["svc"])
	})
}

func TestRunnerAfters(t *testing.T) {
	ctx := context.Background()
	calls := 0
	s := suite.New("", nil)
	s.AddAfter(func() { calls++ })
	s.AddAfter(func(done func(error)) { calls++; done(nil) })

	r := newTestRunner(t, &fakeMeasurer{})
	r.AddSuite(s)
	_, err := r.Run(ctx, &recordingReporter{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunnerNestedSuites(t *testing.T) {
	ctx := context.Background()
	var order []string
	record := func(name string) func() {
		return func() { order = append(order, name) }
	}

	m := &fakeMeasurer{}
	r := newTestRunner(t, MeasurerFunc(func(ctx context.Context, s *suite.Suite, rep reporting.Reporter) error {
		order = append(order, "measure "+s.Title())
		return m.Measure(ctx, s, rep)
	}))

	parent := suite.Describe(r, "Nested Status Test", nil, func(p *suite.Suite) {
		p.AddBefore(record("parent before"))
		p.AddAfter(record("parent after"))
		p.AddServiceHook("my-service", "http://localhost:8080")
		p.AddRoute("status", suite.Route{Method: "get", Route: "status", ExpectedStatusCode: 200})

		suite.Describe(r, "Child", p, func(c *suite.Suite) {
			c.AddBefore(record("child before"))
			c.AddAfter(record("child after"))
		})
	})
	require.NotNil(t, parent)

	rep := &recordingReporter{}
	result, err := r.Run(ctx, rep)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"parent before",
		"child before",
		"measure Child",
		"child after",
		"measure Nested Status Test",
		"parent after",
	}, order)
	assert.Equal(t, []string{
		"suite:Nested Status Test Child", "results:1",
		"suite:Nested Status Test", "results:1",
	}, rep.events)
	assert.Equal(t, "http://localhost:8080", m.services[0]["my-service"], "child inherits the parent service")

	require.Len(t, result.Suites, 2)
	assert.Equal(t, types.StatusPass, result.Status)
	assert.Equal(t, 2, result.Stats.Passed)
}

func TestRunnerRootSuite(t *testing.T) {
	ctx := context.Background()

	t.Run("runs the root last", func(t *testing.T) {
		m := &fakeMeasurer{}
		r := newTestRunner(t, m)
		require.NoError(t, r.AddRootSuite(suite.New("root", nil)))
		r.AddSuite(suite.New("first", nil))
		r.AddSuite(suite.New("second", nil))

		_, err := r.Run(ctx, &recordingReporter{})
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "root"}, m.measured)
	})

	t.Run("rejects a second root", func(t *testing.T) {
		r := newTestRunner(t, &fakeMeasurer{})
		require.NoError(t, r.AddRootSuite(suite.New("", nil)))
		require.ErrorIs(t, r.AddRootSuite(suite.New("", nil)), ErrTooManyRoots)

		r.ClearRootSuite()
		require.NoError(t, r.AddRootSuite(suite.New("", nil)))
	})

	t.Run("root children see root services", func(t *testing.T) {
		root := suite.New("", nil)
		root.AddServiceHook("api", "http://root")
		root.AddBefore(func() {})
		child := suite.New("child", root)
		child.AddRoute("status", suite.Path("status"))

		m := &fakeMeasurer{}
		r := newTestRunner(t, m)
		require.NoError(t, r.AddRootSuite(root))
		r.AddSuite(child)

		rep := &recordingReporter{}
		_, err := r.Run(ctx, rep)
		require.NoError(t, err)
		assert.Equal(t, "http://root", m.services[0]["api"])
		assert.Equal(t, []string{"suite:child", "results:1"}, rep.events, "root has no routes and is skipped")
	})
}

func TestRunnerDrainsRegistry(t *testing.T) {
	m := &fakeMeasurer{}
	r := newTestRunner(t, m)
	r.AddSuite(suite.New("a", nil))
	require.NoError(t, r.AddRootSuite(suite.New("root", nil)))
	assert.Len(t, r.Suites(), 2)

	_, err := r.Run(context.Background(), &recordingReporter{})
	require.NoError(t, err)
	assert.Empty(t, r.Suites())

	_, err = r.Run(context.Background(), &recordingReporter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "root"}, m.measured)
}

func TestRunnerFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("failing before still runs afters and the next suite", func(t *testing.T) {
		afterCalled := false
		broken := measurableSuite("broken", nil)
		broken.AddBefore(func() error { return errors.New("before failed") })
		broken.AddAfter(func() { afterCalled = true })
		next := measurableSuite("next", nil)

		m := &fakeMeasurer{}
		r := newTestRunner(t, m)
		r.AddSuite(broken)
		r.AddSuite(next)

		rep := &recordingReporter{}
		result, err := r.Run(ctx, rep)
		require.NoError(t, err)

		assert.True(t, afterCalled)
		assert.Equal(t, []string{"next"}, m.measured, "broken suite is not measured")
		assert.Equal(t, []string{"error:broken", "suite:next", "results:1"}, rep.events)
		require.Len(t, rep.errors, 1)
		assert.ErrorContains(t, rep.errors[0], "before failed")

		require.Len(t, result.Suites, 2)
		assert.Equal(t, types.StatusFail, result.Suites[0].Status)
		assert.Equal(t, StageBefore, result.Suites[0].Stage)
		assert.Equal(t, types.StatusPass, result.Suites[1].Status)
		assert.Equal(t, types.StatusFail, result.Status)
	})

	t.Run("service hook failure skips measurement", func(t *testing.T) {
		s := suite.New("svc", nil)
		s.AddServiceHook("api", func() (string, error) { return "", errors.New("no url") })
		s.AddRoute("status", suite.Path("status"))

		m := &fakeMeasurer{}
		r := newTestRunner(t, m)
		r.AddSuite(s)
		rep := &recordingReporter{}
		result, err := r.Run(ctx, rep)
		require.NoError(t, err)
		assert.Empty(t, m.measured)
		assert.Equal(t, []string{"error:svc"}, rep.events)
		assert.Equal(t, StageService, result.Suites[0].Stage)
	})

	t.Run("measurement errors are reported once", func(t *testing.T) {
		s := measurableSuite("measured", nil)
		m := &fakeMeasurer{err: map[string]error{"measured": errors.New("engine broke")}}
		r := newTestRunner(t, m)
		r.AddSuite(s)

		rep := &recordingReporter{}
		result, err := r.Run(ctx, rep)
		require.NoError(t, err)
		assert.Equal(t, []string{"suite:measured", "error:measured"}, rep.events)
		assert.Equal(t, StageMeasure, result.Suites[0].Stage)
	})

	t.Run("unreported measurement errors are reported by the runner", func(t *testing.T) {
		r := newTestRunner(t, MeasurerFunc(func(context.Context, *suite.Suite, reporting.Reporter) error {
			return errors.New("silent failure")
		}))
		r.AddSuite(suite.New("quiet", nil))

		rep := &recordingReporter{}
		_, err := r.Run(ctx, rep)
		require.NoError(t, err)
		assert.Equal(t, []string{"error:quiet"}, rep.events)
	})

	t.Run("failed routes fail the suite", func(t *testing.T) {
		s := measurableSuite("slow", nil)
		r := newTestRunner(t, &fakeMeasurer{failing: map[string]bool{"status": true}})
		r.AddSuite(s)

		result, err := r.Run(ctx, &recordingReporter{})
		require.NoError(t, err)
		assert.Equal(t, types.StatusFail, result.Suites[0].Status)
		assert.Equal(t, 1, result.Suites[0].FailedRoutes)
		assert.Contains(t, result.String(), "1 of 1 routes failed")
	})

	t.Run("after failures are reported", func(t *testing.T) {
		s := measurableSuite("cleanup", nil)
		s.AddAfter(func() { panic("cleanup exploded") })
		r := newTestRunner(t, &fakeMeasurer{})
		r.AddSuite(s)

		rep := &recordingReporter{}
		result, err := r.Run(ctx, rep)
		require.NoError(t, err)
		assert.Equal(t, []string{"suite:cleanup", "results:1", "error:cleanup"}, rep.events)
		assert.Equal(t, StageAfter, result.Suites[0].Stage)
	})
}

func TestRunnerSkipsUnmeasurableSuites(t *testing.T) {
	r := newTestRunner(t, &fakeMeasurer{})
	r.AddSuite(suite.New("empty", nil))

	rep := &recordingReporter{}
	result, err := r.Run(context.Background(), rep)
	require.NoError(t, err)
	assert.Empty(t, rep.events)
	assert.Equal(t, types.StatusSkip, result.Suites[0].Status)
	assert.Equal(t, types.StatusSkip, result.Status)
}

func TestRunnerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &fakeMeasurer{}
	r := newTestRunner(t, MeasurerFunc(func(ctx context.Context, s *suite.Suite, rep reporting.Reporter) error {
		cancel()
		return m.Measure(ctx, s, rep)
	}))
	r.AddSuite(suite.New("first", nil))
	r.AddSuite(suite.New("second", nil))

	result, err := r.Run(ctx, &recordingReporter{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, m.measured)
	assert.Len(t, result.Suites, 1)
}

func TestRunRequiresReporter(t *testing.T) {
	r := newTestRunner(t, &fakeMeasurer{})
	_, err := r.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestRunWithID(t *testing.T) {
	r := newTestRunner(t, &fakeMeasurer{})
	r.AddSuite(measurableSuite("Only", nil))
	result, err := r.RunWithID(context.Background(), "fixed-id", &recordingReporter{})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", result.RunID)

	r.AddSuite(measurableSuite("Again", nil))
	result, err = r.Run(context.Background(), &recordingReporter{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.RunID)
	assert.NotEqual(t, "fixed-id", result.RunID)
}

func TestRunnerRootFailuresShareOneTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	root := suite.New("", nil)
	root.AddServiceHook("api", srv.URL)
	root.AddRoute("status", suite.Path("status"))
	root.AddAfter(func() error { return errors.New("teardown failed") })

	r := newTestRunner(t, measure.New(measure.Config{Log: log.New()}))
	require.NoError(t, r.AddRootSuite(root))

	rep := &recordingReporter{}
	result, err := r.Run(context.Background(), rep)
	require.NoError(t, err)
	assert.Equal(t, []string{"suite:root", "error:root", "error:root"}, rep.events)
	require.Len(t, result.Suites, 1)
	assert.Equal(t, suite.RootTitle, result.Suites[0].Title)
	assert.Equal(t, StageMeasure, result.Suites[0].Stage)
}

func TestRunWithMeasureEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	x := 0
	s1 := suite.New("S1", nil)
	s1.AddBefore(func() { x = 1 })

	s2 := suite.New("S2", nil)
	s2.AddServiceHook("myservice", func() string { return srv.URL })
	s2.AddRoute("status", suite.Route{Method: "get", Route: "status", ExpectedStatusCode: 200, MaxMean: 0.2})
	runMode := suite.RunModeParallel
	minSamples := 200
	maxTime := 20.0
	s2.SetOptions(suite.PartialOptions{RunMode: &runMode, MinSamples: &minSamples, MaxTime: &maxTime})

	engine := measure.New(measure.Config{Log: log.New()})
	var announced []map[string]string
	r := newTestRunner(t, MeasurerFunc(func(ctx context.Context, s *suite.Suite, rep reporting.Reporter) error {
		if s.Measurable() {
			announced = append(announced, s.Services())
		}
		return engine.Measure(ctx, s, rep)
	}))
	r.AddSuite(s1)
	r.AddSuite(s2)

	rep := &recordingReporter{}
	result, err := r.Run(context.Background(), rep)
	require.NoError(t, err)

	assert.Equal(t, 1, x)
	assert.Equal(t, []map[string]string{{"myservice": srv.URL}}, announced)
	assert.Equal(t, []string{"suite:S2", "results:1"}, rep.events, "S1 has nothing to measure")
	require.Len(t, result.Suites, 2)
	assert.Equal(t, types.StatusSkip, result.Suites[0].Status)
	assert.Equal(t, types.StatusPass, result.Suites[1].Status)
	assert.Equal(t, 1, result.Suites[1].Routes)
}
