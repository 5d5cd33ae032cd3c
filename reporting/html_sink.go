package reporting

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-bench/templates"
	"github.com/ethereum-optimism/infra/op-bench/types"
)

// DefaultHTMLFile is the report file written when no output is configured.
const DefaultHTMLFile = "benchmarks.html"

type suiteError struct {
	Suite   string
	Message string
}

type htmlService struct {
	Name   string
	Routes []*types.RouteResult
}

type htmlData struct {
	Title     string
	Generated time.Time
	Passed    int
	Failed    int
	Services  []htmlService
	Errors    []suiteError
}

// HTMLSink collects results from every suite into a single HTML report
// written on Summary. Route keys and names are prefixed with the suite
// title so routes of different suites do not collide.
type HTMLSink struct {
	output        string
	errOut        io.Writer
	tmpl          *template.Template
	masterResults types.Results
	currentSuite  string
	errors        []suiteError
	now           func() time.Time
}

// NewHTMLSink creates an HTML sink writing to output, or DefaultHTMLFile
// when output is empty.
func NewHTMLSink(output string, errOut io.Writer) (*HTMLSink, error) {
	if output == "" {
		output = DefaultHTMLFile
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	tmpl, err := template.New("results").Funcs(templates.GetTemplateFunc()).Parse(templates.ResultsHTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return &HTMLSink{
		output:        output,
		errOut:        errOut,
		tmpl:          tmpl,
		masterResults: types.Results{},
		now:           time.Now,
	}, nil
}

// Output returns the report path.
func (s *HTMLSink) Output() string {
	return s.output
}

// MasterResults returns the merged results collected so far.
func (s *HTMLSink) MasterResults() types.Results {
	return s.masterResults
}

func (s *HTMLSink) Suite(title string) {
	s.currentSuite = title
}

func (s *HTMLSink) Results(results types.Results) {
	for service, routes := range results {
		for routeKey, res := range routes {
			merged := *res
			merged.Name = fmt.Sprintf("%s - %s", s.currentSuite, res.Name)
			merged.Route = fmt.Sprintf("%s - %s", s.currentSuite, routeKey)
			merged.Service = service
			s.masterResults.Add(&merged)
		}
	}
}

func (s *HTMLSink) Error(suite string, err error) {
	msg := fmt.Sprintf("%s - %v", suite, err)
	fmt.Fprintf(s.errOut, "  %s\n", text.FgRed.Sprint(msg))
	s.errors = append(s.errors, suiteError{Suite: suite, Message: stripansi.Strip(fmt.Sprint(err))})
}

// Summary renders the report. Rendering or write failures are printed to
// the error output and do not fail the run.
func (s *HTMLSink) Summary(context.Context) error {
	if err := s.write(); err != nil {
		fmt.Fprintf(s.errOut, "  %s\n", text.FgRed.Sprintf("Failed to generate HTML: %v", err))
	}
	return nil
}

func (s *HTMLSink) write() error {
	data := htmlData{
		Title:     "API Benchmarks",
		Generated: s.now(),
		Errors:    s.errors,
	}
	names := make([]string, 0, len(s.masterResults))
	for name := range s.masterResults {
		names = append(names, name)
	}
	sort.Strings(names)
	sorted := s.masterResults.Sorted()
	for _, name := range names {
		svc := htmlService{Name: name}
		for _, res := range sorted {
			if res.Service != name {
				continue
			}
			svc.Routes = append(svc.Routes, res)
			if res.Status() == types.StatusFail {
				data.Failed++
			} else {
				data.Passed++
			}
		}
		data.Services = append(data.Services, svc)
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}
	if dir := filepath.Dir(s.output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.output, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.output, err)
	}
	return nil
}
