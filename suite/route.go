package suite

import (
	"maps"
	"net/http"
	"strings"
)

// Route describes one HTTP endpoint to benchmark against every service of a suite.
// Suites treat routes as opaque values and only the measurement engine reads them.
type Route struct {
	Method             string            `yaml:"method,omitempty" toml:"method,omitempty" json:"method,omitempty"`
	Route              string            `yaml:"route" toml:"route" json:"route"`
	Headers            map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty" json:"headers,omitempty"`
	Data               any               `yaml:"data,omitempty" toml:"data,omitempty" json:"data,omitempty"`
	Query              map[string]string `yaml:"query,omitempty" toml:"query,omitempty" json:"query,omitempty"`
	ExpectedStatusCode int               `yaml:"expectedStatusCode,omitempty" toml:"expectedStatusCode,omitempty" json:"expectedStatusCode,omitempty"`
	MaxMean            float64           `yaml:"maxMean,omitempty" toml:"maxMean,omitempty" json:"maxMean,omitempty"`
	MaxSingleMean      float64           `yaml:"maxSingleMean,omitempty" toml:"maxSingleMean,omitempty" json:"maxSingleMean,omitempty"`
}

// Path returns a GET route for path with default expectations.
func Path(path string) Route {
	return Route{Route: path}.WithDefaults()
}

// WithDefaults fills the method and the expected status code when unset.
func (r Route) WithDefaults() Route {
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	r.Method = strings.ToUpper(r.Method)
	if r.ExpectedStatusCode == 0 {
		r.ExpectedStatusCode = http.StatusOK
	}
	return r
}

func (r Route) clone() Route {
	r.Headers = maps.Clone(r.Headers)
	r.Query = maps.Clone(r.Query)
	return r
}
