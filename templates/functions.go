package templates

import (
	_ "embed"
	"fmt"
	"html/template"
	"time"

	"github.com/ethereum-optimism/infra/op-bench/types"
)

// ResultsHTML is the template used by the HTML reporter.
//
//go:embed results.tmpl.html
var ResultsHTML string

// GetTemplateFunc returns the template functions shared by the HTML reports.
func GetTemplateFunc() template.FuncMap {
	return template.FuncMap{
		"formatSeconds": FormatSeconds,
		"formatDuration": func(d time.Duration) string {
			if d < time.Second {
				return fmt.Sprintf("%dms", d.Milliseconds())
			}
			return d.Truncate(time.Millisecond).String()
		},
		"formatTime": func(t time.Time) string {
			return t.UTC().Format(time.RFC3339)
		},
		"getStatusClass": func(status types.Status) string {
			switch status {
			case types.StatusPass:
				return "pass"
			case types.StatusFail, types.StatusError:
				return "fail"
			default:
				return "skip"
			}
		},
		"percent": func(v float64) string {
			return fmt.Sprintf("±%.2f%%", v)
		},
	}
}

// FormatSeconds renders a duration expressed in seconds with a readable unit.
func FormatSeconds(s float64) string {
	switch {
	case s == 0:
		return "0"
	case s < 0.001:
		return fmt.Sprintf("%.1fµs", s*1e6)
	case s < 1:
		return fmt.Sprintf("%.2fms", s*1e3)
	default:
		return fmt.Sprintf("%.3fs", s)
	}
}
