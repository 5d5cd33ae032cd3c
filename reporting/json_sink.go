package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-bench/types"
)

// DefaultJSONFile is the results file written when no output is configured.
const DefaultJSONFile = "benchmarks.json"

// JSONSuite is one suite entry of the JSON results file.
type JSONSuite struct {
	Suite   string        `json:"suite"`
	Results types.Results `json:"results,omitempty"`
	Errors  []string      `json:"errors,omitempty"`
}

// JSONSink writes every suite and its results to a JSON file on Summary.
type JSONSink struct {
	output string
	suites []*JSONSuite
}

func NewJSONSink(output string) *JSONSink {
	if output == "" {
		output = DefaultJSONFile
	}
	return &JSONSink{output: output}
}

func (s *JSONSink) current() *JSONSuite {
	if len(s.suites) == 0 {
		s.suites = append(s.suites, &JSONSuite{})
	}
	return s.suites[len(s.suites)-1]
}

func (s *JSONSink) Suite(title string) {
	s.suites = append(s.suites, &JSONSuite{Suite: title})
}

func (s *JSONSink) Results(results types.Results) {
	s.current().Results = results
}

func (s *JSONSink) Error(suite string, err error) {
	if len(s.suites) == 0 || s.current().Suite != suite {
		s.suites = append(s.suites, &JSONSuite{Suite: suite})
	}
	entry := s.current()
	entry.Errors = append(entry.Errors, stripansi.Strip(fmt.Sprint(err)))
}

func (s *JSONSink) Summary(context.Context) error {
	data, err := json.MarshalIndent(s.suites, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	if dir := filepath.Dir(s.output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.output, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.output, err)
	}
	return nil
}
