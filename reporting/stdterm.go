package reporting

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-bench/templates"
	"github.com/ethereum-optimism/infra/op-bench/types"
)

type suiteTally struct {
	title  string
	routes int
	passed int
	failed int
	errors int
}

// StdTerm prints progress and result tables to the terminal.
type StdTerm struct {
	out    io.Writer
	errOut io.Writer
	suites []*suiteTally
}

// NewStdTerm creates a terminal reporter. Nil writers default to
// os.Stdout and os.Stderr.
func NewStdTerm(out, errOut io.Writer) *StdTerm {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &StdTerm{out: out, errOut: errOut}
}

func (s *StdTerm) current() *suiteTally {
	if len(s.suites) == 0 {
		s.suites = append(s.suites, &suiteTally{})
	}
	return s.suites[len(s.suites)-1]
}

func (s *StdTerm) Suite(title string) {
	s.suites = append(s.suites, &suiteTally{title: title})
	fmt.Fprintf(s.out, "  %s\n", title)
}

func (s *StdTerm) Results(results types.Results) {
	tally := s.current()

	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.AppendHeader(table.Row{"Service", "Route", "Request", "Mean", "p95", "p99", "RME", "Samples", "Req/s", "Errors", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Service", AutoMerge: true},
		{Name: "Request", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Mean", Align: text.AlignRight},
		{Name: "p95", Align: text.AlignRight},
		{Name: "p99", Align: text.AlignRight},
		{Name: "RME", Align: text.AlignRight},
		{Name: "Samples", Align: text.AlignRight},
		{Name: "Req/s", Align: text.AlignRight},
		{Name: "Errors", Align: text.AlignRight},
	})

	for _, res := range results.Sorted() {
		tally.routes++
		status := res.Status()
		if status == types.StatusFail {
			tally.failed++
		} else {
			tally.passed++
		}
		t.AppendRow(table.Row{
			res.Service,
			res.Route,
			fmt.Sprintf("%s %s", res.Request.Method, res.Href),
			templates.FormatSeconds(res.Stats.Mean),
			templates.FormatSeconds(res.Stats.P95),
			templates.FormatSeconds(res.Stats.P99),
			fmt.Sprintf("±%.2f%%", res.Stats.Rme),
			len(res.Stats.Sample),
			fmt.Sprintf("%.1f", res.Hz),
			len(res.Errors),
			statusText(status),
		})
	}
	t.Render()

	for _, res := range results.Sorted() {
		for _, e := range res.Errors {
			fmt.Fprintf(s.errOut, "  %s\n", text.FgRed.Sprintf("%s/%s: %s", res.Service, res.Route, e))
		}
	}
}

func (s *StdTerm) Error(suite string, err error) {
	s.current().errors++
	fmt.Fprintf(s.errOut, "  %s\n", text.FgRed.Sprintf("%s - %v", suite, err))
}

// Summary prints one row per measured suite.
func (s *StdTerm) Summary(context.Context) error {
	if len(s.suites) == 0 {
		fmt.Fprintln(s.out, "  No suites measured")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(s.out)
	t.SetTitle("Benchmark Results")
	t.AppendHeader(table.Row{"Suite", "Routes", "Passed", "Failed", "Errors", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Suite", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Routes", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Errors", Align: text.AlignRight},
	})

	var routes, passed, failed, errs int
	for _, tally := range s.suites {
		status := types.StatusPass
		if tally.failed > 0 || tally.errors > 0 {
			status = types.StatusFail
		}
		title := tally.title
		if title == "" {
			title = "root"
		}
		t.AppendRow(table.Row{title, tally.routes, tally.passed, tally.failed, tally.errors, statusText(status)})
		routes += tally.routes
		passed += tally.passed
		failed += tally.failed
		errs += tally.errors
	}

	overall := types.StatusPass
	if failed > 0 || errs > 0 {
		overall = types.StatusFail
	}
	t.AppendFooter(table.Row{"TOTAL", routes, passed, failed, errs, statusText(overall)})
	if overall == types.StatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}
	t.Render()
	return nil
}

func statusText(status types.Status) string {
	switch status {
	case types.StatusPass:
		return "✓ pass"
	case types.StatusFail:
		return "✗ fail"
	case types.StatusSkip:
		return "- skip"
	default:
		return string(status)
	}
}
