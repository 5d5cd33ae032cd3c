package types

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum-optimism/infra/op-bench/suite"
)

// Status represents the outcome of a measured route or a suite.
type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusSkip  Status = "skip"
	StatusError Status = "error"
)

// ErrorKind classifies a RouteError.
type ErrorKind string

const (
	ErrorKindRequest   ErrorKind = "request"   // transport failure
	ErrorKindStatus    ErrorKind = "status"    // unexpected status code
	ErrorKindThreshold ErrorKind = "threshold" // maxMean or maxSingleMean exceeded
)

// RouteError is one failure recorded while benchmarking a route.
// Sample is the zero based request index, or -1 for threshold errors.
type RouteError struct {
	Kind    ErrorKind `json:"kind"`
	Sample  int       `json:"sample"`
	Message string    `json:"message"`
}

func (e RouteError) String() string {
	if e.Sample < 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (sample %d): %s", e.Kind, e.Sample, e.Message)
}

// Stats summarises request durations. All values are in seconds except Rme,
// which is a percentage of the mean.
type Stats struct {
	Mean       float64   `json:"mean"`
	Median     float64   `json:"median"`
	Deviation  float64   `json:"deviation"`
	Variance   float64   `json:"variance"`
	Sem        float64   `json:"sem"`
	Moe        float64   `json:"moe"`
	Rme        float64   `json:"rme"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	P75        float64   `json:"p75"`
	P95        float64   `json:"p95"`
	P99        float64   `json:"p99"`
	P999       float64   `json:"p999"`
	SingleMean float64   `json:"singleMean"`
	Sample     []float64 `json:"sample"`
}

// Request describes the request sent for a route.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Response captures the last response received for a route.
type Response struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// RouteResult is the benchmark outcome of one route against one service.
type RouteResult struct {
	Name     string        `json:"name"`
	Service  string        `json:"service"`
	Route    string        `json:"route"`
	Href     string        `json:"href"`
	Stats    Stats         `json:"stats"`
	Errors   []RouteError  `json:"errors,omitempty"`
	Options  suite.Options `json:"options"`
	Request  Request       `json:"request"`
	Response *Response     `json:"response,omitempty"`
	Hz       float64       `json:"hz"`
	Duration time.Duration `json:"duration"`
}

// Status returns StatusFail if any error was recorded.
func (r *RouteResult) Status() Status {
	if len(r.Errors) > 0 {
		return StatusFail
	}
	return StatusPass
}

// Results maps service name to route name to result.
type Results map[string]map[string]*RouteResult

// Add stores res under its service and route.
func (r Results) Add(res *RouteResult) {
	if r[res.Service] == nil {
		r[res.Service] = make(map[string]*RouteResult)
	}
	r[res.Service][res.Route] = res
}

// Failed reports whether any route recorded an error.
func (r Results) Failed() bool {
	for _, routes := range r {
		for _, res := range routes {
			if res.Status() == StatusFail {
				return true
			}
		}
	}
	return false
}

// Sorted returns every route result ordered by service then route name.
func (r Results) Sorted() []*RouteResult {
	var out []*RouteResult
	for _, routes := range r {
		for _, res := range routes {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Service != out[j].Service {
			return out[i].Service < out[j].Service
		}
		return out[i].Route < out[j].Route
	})
	return out
}
