package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-bench/types"
)

const (
	MetricsNamespace = "op_bench"
)

var (
	Debug                bool
	validResults         = []types.Status{types.StatusPass, types.StatusFail, types.StatusSkip, types.StatusError}
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	// Registry holds every op-bench metric and is served by the metrics server.
	Registry = opmetrics.NewRegistry()
	factory  = opmetrics.With(Registry)

	errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	suitesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suites_total",
		Help:      "Count of executed suites by result",
	}, []string{
		"result",
	})

	hookFailuresTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "hook_failures_total",
		Help:      "Count of suite failures by lifecycle stage",
	}, []string{
		"stage",
	})

	suiteDuration = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration_seconds",
		Help:      "Wall time of the last execution of a suite",
	}, []string{
		"suite",
	})

	routeLatency = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "route_latency_seconds",
		Help:      "Request latency statistics of the last benchmark of a route",
	}, []string{
		"suite",
		"service",
		"route",
		"stat",
	})

	routeRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "route_requests_total",
		Help:      "Count of benchmark requests sent per route",
	}, []string{
		"service",
		"route",
		"result",
	})

	runResults = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of benchmark runs",
	}, []string{
		"run_id",
		"result",
	})

	runSuites = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_suites",
		Help:      "Number of suites in a benchmark run by result",
	}, []string{
		"run_id",
		"result",
	})

	runDuration = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of benchmark runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordSuite records the outcome of a single suite execution.
func RecordSuite(suite string, result types.Status, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordSuite - invalid result", "result", result)
		return
	}
	suitesTotal.WithLabelValues(string(result)).Inc()
	suiteDuration.WithLabelValues(suite).Set(duration.Seconds())
}

// RecordHookFailure counts a suite failure in the given stage.
func RecordHookFailure(stage string) {
	hookFailuresTotal.WithLabelValues(stage).Inc()
}

// RecordRoute exports the statistics of a measured route.
func RecordRoute(suite string, res *types.RouteResult) {
	if res == nil {
		return
	}
	if Debug {
		log.Debug("metric set",
			"m", "route_latency_seconds",
			"suite", suite,
			"service", res.Service,
			"route", res.Route,
			"mean", res.Stats.Mean)
	}
	for stat, v := range map[string]float64{
		"mean": res.Stats.Mean,
		"p95":  res.Stats.P95,
		"p99":  res.Stats.P99,
		"max":  res.Stats.Max,
	} {
		routeLatency.WithLabelValues(suite, res.Service, res.Route, stat).Set(v)
	}

	failed := 0
	for _, e := range res.Errors {
		if e.Kind != types.ErrorKindThreshold {
			failed++
		}
	}
	ok := len(res.Stats.Sample) - failed
	if ok < 0 {
		ok = 0
	}
	routeRequestsTotal.WithLabelValues(res.Service, res.Route, string(types.StatusPass)).Add(float64(ok))
	routeRequestsTotal.WithLabelValues(res.Service, res.Route, string(types.StatusFail)).Add(float64(failed))
}

// RecordRun records the summary of a complete benchmark run.
func RecordRun(
	runID string,
	result types.Status,
	passed int,
	failed int,
	skipped int,
	duration time.Duration,
) {
	runResults.WithLabelValues(runID, string(result)).Set(1)
	runSuites.WithLabelValues(runID, string(types.StatusPass)).Set(float64(passed))
	runSuites.WithLabelValues(runID, string(types.StatusFail)).Set(float64(failed))
	runSuites.WithLabelValues(runID, string(types.StatusSkip)).Set(float64(skipped))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.Status) bool {
	return slices.Contains(validResults, result)
}
