// Package measure is the HTTP benchmark engine. It sends requests for every
// route of a suite to every service of the suite and summarises the request
// durations.
package measure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/ethereum-optimism/infra/op-bench/reporting"
	"github.com/ethereum-optimism/infra/op-bench/suite"
	"github.com/ethereum-optimism/infra/op-bench/types"
)

// maxBodyCapture bounds how much of a response body is kept in results.
const maxBodyCapture = 4096

// Config holds configuration for creating a new Engine.
type Config struct {
	Client *http.Client
	Log    log.Logger
}

// Engine benchmarks suites over HTTP.
type Engine struct {
	client *http.Client
	log    log.Logger
}

// New creates an Engine. A nil client defaults to one with a 30s timeout.
func New(cfg Config) *Engine {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	return &Engine{client: cfg.Client, log: cfg.Log}
}

// Measure benchmarks s and reports the outcome. It does nothing when the
// suite has no services, routes or options. Failures are passed to
// r.Error and returned marked as reported.
func (e *Engine) Measure(ctx context.Context, s *suite.Suite, r reporting.Reporter) error {
	services := s.Services()
	routes := s.Routes()
	opts := s.Options()
	if len(services) == 0 || len(routes) == 0 || opts.IsZero() {
		return nil
	}

	title := s.DisplayTitle()
	e.log.Debug("Starting benchmarks", "suite", title, "services", len(services), "routes", len(routes))

	r.Suite(title)
	results, err := e.Run(ctx, services, routes, opts)
	if err != nil {
		r.Error(title, err)
		return reporting.MarkReported(err)
	}
	r.Results(results)
	return nil
}

// Run benchmarks every route against every service, in name order. With
// StopOnError set, the first route with an error aborts the run.
func (e *Engine) Run(ctx context.Context, services map[string]string, routes map[string]suite.Route, opts suite.Options) (types.Results, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	results := types.Results{}
	for _, service := range sortedKeys(services) {
		for _, name := range sortedKeys(routes) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := e.measureRoute(ctx, service, services[service], name, routes[name], opts)
			if err != nil {
				return nil, err
			}
			results.Add(res)
			if opts.StopOnError && len(res.Errors) > 0 {
				return nil, fmt.Errorf("%s/%s: %s", service, name, res.Errors[0])
			}
		}
	}
	return results, nil
}

type sample struct {
	duration time.Duration
	err      *types.RouteError
	response *types.Response
}

type requestTemplate struct {
	method  string
	url     string
	headers map[string]string
	body    []byte
}

func (e *Engine) measureRoute(ctx context.Context, service, baseURL, name string, route suite.Route, opts suite.Options) (*types.RouteResult, error) {
	route = route.WithDefaults()
	tmpl, err := buildRequest(baseURL, route)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", service, name, err)
	}

	start := time.Now()
	var samples []sample
	if opts.RunMode == suite.RunModeParallel {
		samples, err = e.runParallel(ctx, tmpl, route, opts)
	} else {
		samples, err = e.runSequence(ctx, tmpl, route, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", service, name, err)
	}
	elapsed := time.Since(start)

	res := &types.RouteResult{
		Name:    name,
		Service: service,
		Route:   name,
		Href:    tmpl.url,
		Options: opts,
		Request: types.Request{
			Method:  tmpl.method,
			URL:     tmpl.url,
			Headers: route.Headers,
			Body:    string(tmpl.body),
		},
		Duration: elapsed,
	}

	durations := make([]float64, 0, len(samples))
	for i, smp := range samples {
		durations = append(durations, smp.duration.Seconds())
		if smp.err != nil {
			smp.err.Sample = i
			res.Errors = append(res.Errors, *smp.err)
		}
		if smp.response != nil {
			res.Response = smp.response
		}
	}
	res.Stats = computeStats(durations)
	res.Stats.SingleMean = singleMean(res.Stats.Mean, opts)
	if res.Stats.Mean > 0 {
		res.Hz = 1 / res.Stats.Mean
	}

	if route.MaxMean > 0 && res.Stats.Mean > route.MaxMean {
		res.Errors = append(res.Errors, types.RouteError{
			Kind:    types.ErrorKindThreshold,
			Sample:  -1,
			Message: fmt.Sprintf("mean %.6fs exceeds maxMean %.6fs", res.Stats.Mean, route.MaxMean),
		})
	}
	if route.MaxSingleMean > 0 && res.Stats.SingleMean > route.MaxSingleMean {
		res.Errors = append(res.Errors, types.RouteError{
			Kind:    types.ErrorKindThreshold,
			Sample:  -1,
			Message: fmt.Sprintf("single mean %.6fs exceeds maxSingleMean %.6fs", res.Stats.SingleMean, route.MaxSingleMean),
		})
	}

	e.log.Debug("Measured route",
		"service", service,
		"route", name,
		"samples", len(samples),
		"mean", res.Stats.Mean,
		"errors", len(res.Errors))
	return res, nil
}

// runSequence sends one request at a time, waiting opts.Delay between
// requests, until MinSamples were taken or MaxTime elapsed.
func (e *Engine) runSequence(ctx context.Context, tmpl requestTemplate, route suite.Route, opts suite.Options) ([]sample, error) {
	var limiter *rate.Limiter
	if delay := opts.DelayDuration(); delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	deadline := time.Now().Add(opts.MaxTimeDuration())

	var samples []sample
	for len(samples) < opts.MinSamples {
		if len(samples) > 0 && !time.Now().Before(deadline) {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		smp := e.do(ctx, tmpl, route, opts.Debug)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		samples = append(samples, smp)
		if smp.err != nil && opts.StopOnError {
			break
		}
	}
	return samples, nil
}

var errStopped = errors.New("stopped on error")

// runParallel sends up to MinSamples requests with at most
// MaxConcurrentRequests in flight. Requests not started before MaxTime
// elapsed are dropped.
func (e *Engine) runParallel(ctx context.Context, tmpl requestTemplate, route suite.Route, opts suite.Options) ([]sample, error) {
	deadline := time.Now().Add(opts.MaxTimeDuration())

	var (
		mu      sync.Mutex
		samples = make([]*sample, opts.MinSamples)
	)
	p := pool.New().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(opts.MaxConcurrentRequests).
		WithContext(ctx)
	if opts.StopOnError {
		p = p.WithCancelOnError()
	}

	for i := 0; i < opts.MinSamples; i++ {
		p.Go(func(ctx context.Context) error {
			if i > 0 && !time.Now().Before(deadline) {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return nil
			}
			smp := e.do(ctx, tmpl, route, opts.Debug)
			if ctx.Err() != nil && smp.err != nil {
				// Cancelled by another request failing.
				return nil
			}
			mu.Lock()
			samples[i] = &smp
			mu.Unlock()
			if smp.err != nil && opts.StopOnError {
				return errStopped
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil && !errors.Is(err, errStopped) {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]sample, 0, len(samples))
	for _, smp := range samples {
		if smp != nil {
			out = append(out, *smp)
		}
	}
	return out, nil
}

// do sends a single request and times it until the body was read.
func (e *Engine) do(ctx context.Context, tmpl requestTemplate, route suite.Route, debug bool) sample {
	var body io.Reader
	if len(tmpl.body) > 0 {
		body = bytes.NewReader(tmpl.body)
	}
	req, err := http.NewRequestWithContext(ctx, tmpl.method, tmpl.url, body)
	if err != nil {
		return sample{err: &types.RouteError{Kind: types.ErrorKindRequest, Message: err.Error()}}
	}
	for k, v := range tmpl.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return sample{
			duration: time.Since(start),
			err:      &types.RouteError{Kind: types.ErrorKindRequest, Message: err.Error()},
		}
	}
	defer resp.Body.Close()
	captured, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyCapture))
	if err == nil {
		_, err = io.Copy(io.Discard, resp.Body)
	}
	duration := time.Since(start)

	if debug {
		e.log.Info("Request", "method", tmpl.method, "url", tmpl.url, "status", resp.StatusCode, "duration", duration)
	}

	smp := sample{
		duration: duration,
		response: &types.Response{
			StatusCode: resp.StatusCode,
			Headers:    flattenHeaders(resp.Header),
			Body:       string(captured),
		},
	}
	switch {
	case err != nil:
		smp.err = &types.RouteError{Kind: types.ErrorKindRequest, Message: fmt.Sprintf("reading body: %v", err)}
	case resp.StatusCode != route.ExpectedStatusCode:
		smp.err = &types.RouteError{
			Kind:    types.ErrorKindStatus,
			Message: fmt.Sprintf("expected status %d, got %d", route.ExpectedStatusCode, resp.StatusCode),
		}
	}
	return smp
}

// buildRequest resolves the route against baseURL and encodes its body.
// String data is sent as is; any other data is encoded as JSON.
func buildRequest(baseURL string, route suite.Route) (requestTemplate, error) {
	u, err := joinURL(baseURL, route.Route)
	if err != nil {
		return requestTemplate{}, err
	}
	if len(route.Query) > 0 {
		q := u.Query()
		for k, v := range route.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	tmpl := requestTemplate{
		method:  route.Method,
		url:     u.String(),
		headers: make(map[string]string, len(route.Headers)+1),
	}
	for k, v := range route.Headers {
		tmpl.headers[k] = v
	}

	switch data := route.Data.(type) {
	case nil:
	case string:
		tmpl.body = []byte(data)
	case []byte:
		tmpl.body = data
	default:
		encoded, err := json.Marshal(data)
		if err != nil {
			return requestTemplate{}, fmt.Errorf("encoding request body: %w", err)
		}
		tmpl.body = encoded
		if !hasHeader(tmpl.headers, "Content-Type") {
			tmpl.headers["Content-Type"] = "application/json"
		}
	}
	return tmpl, nil
}

func joinURL(baseURL, path string) (*url.URL, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid service url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid service url %q: scheme and host are required", baseURL)
	}
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid route %q: %w", path, err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(ref), nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
