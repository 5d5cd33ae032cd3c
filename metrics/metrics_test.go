package metrics

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-bench/types"
)

func TestErrToLabel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{
			name: "nil error",
			err:  nil,
		},
		{
			name: "simple error",
			err:  errors.New("test error"),
		},
		{
			name: "error with special chars",
			err:  errors.New("test@error#123"),
		},
		{
			name: "error with multiple spaces",
			err:  errors.New("test   error"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := errToLabel(tt.err)
			validLabelRegex := regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
			if !validLabelRegex.MatchString(result) {
				t.Errorf("errLabel() = %v, is not a valid Prometheus label", result)
			}
		})
	}
}

func TestRecordError(t *testing.T) {
	// just test that it doesn't panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("RecordError panic'd")
		}
	}()

	RecordError("test_error")
	RecordErrorDetails("test", errors.New("details here"))
	RecordErrorDetails("test", nil)
}

func TestRecordSuite(t *testing.T) {
	before := testutil.ToFloat64(suitesTotal.WithLabelValues(string(types.StatusPass)))
	RecordSuite("metrics suite", types.StatusPass, 1500*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(suitesTotal.WithLabelValues(string(types.StatusPass))))
	assert.Equal(t, 1.5, testutil.ToFloat64(suiteDuration.WithLabelValues("metrics suite")))

	// Invalid results are dropped.
	RecordSuite("metrics suite", types.Status("bogus"), time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(suitesTotal.WithLabelValues("bogus")))
}

func TestRecordHookFailure(t *testing.T) {
	before := testutil.ToFloat64(hookFailuresTotal.WithLabelValues("before"))
	RecordHookFailure("before")
	assert.Equal(t, before+1, testutil.ToFloat64(hookFailuresTotal.WithLabelValues("before")))
}

func TestRecordRoute(t *testing.T) {
	RecordRoute("s", nil)

	res := &types.RouteResult{
		Service: "svc-metrics",
		Route:   "status",
		Stats:   types.Stats{Mean: 0.01, P95: 0.02, P99: 0.03, Max: 0.04, Sample: []float64{0.01, 0.01, 0.01}},
		Errors: []types.RouteError{
			{Kind: types.ErrorKindStatus, Sample: 1, Message: "bad status"},
			{Kind: types.ErrorKindThreshold, Sample: -1, Message: "too slow"},
		},
	}
	RecordRoute("s", res)

	assert.Equal(t, 0.01, testutil.ToFloat64(routeLatency.WithLabelValues("s", "svc-metrics", "status", "mean")))
	assert.Equal(t, 0.04, testutil.ToFloat64(routeLatency.WithLabelValues("s", "svc-metrics", "status", "max")))
	assert.Equal(t, 2.0, testutil.ToFloat64(routeRequestsTotal.WithLabelValues("svc-metrics", "status", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(routeRequestsTotal.WithLabelValues("svc-metrics", "status", "fail")))
}

func TestRecordRun(t *testing.T) {
	RecordRun("run-1", types.StatusFail, 2, 1, 3, 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(runResults.WithLabelValues("run-1", "fail")))
	assert.Equal(t, 2.0, testutil.ToFloat64(runSuites.WithLabelValues("run-1", "pass")))
	assert.Equal(t, 3.0, testutil.ToFloat64(runSuites.WithLabelValues("run-1", "skip")))
	assert.Equal(t, 2.0, testutil.ToFloat64(runDuration.WithLabelValues("run-1")))
}
