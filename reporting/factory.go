package reporting

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

const (
	NameStdTerm = "stdterm"
	NameDefault = "default"
	NameHTML    = "html"
	NameJSON    = "json"
)

// Config configures the reporters built by New.
type Config struct {
	Out      io.Writer
	ErrOut   io.Writer
	HTMLFile string
	JSONFile string
	// Extra holds additional named sinks, such as a database sink, that
	// may be selected by name next to the built-in ones.
	Extra map[string]Reporter
	Log   log.Logger
}

// ParseNames splits a comma separated reporter list. Names are trimmed and
// lower-cased, "default" is an alias of "stdterm", duplicates are dropped
// and names not in valid are returned separately. An empty selection falls
// back to stdterm.
func ParseNames(list string, valid func(name string) bool) (names []string, unknown []string) {
	seen := make(map[string]bool)
	for _, raw := range strings.Split(list, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if name == NameDefault {
			name = NameStdTerm
		}
		if !valid(name) {
			unknown = append(unknown, name)
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		names = []string{NameStdTerm}
	}
	return names, unknown
}

// New builds an Aggregator from a comma separated list of reporter names,
// for example "stdterm,html". Unknown names are logged and ignored.
func New(list string, cfg Config) (*Aggregator, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	valid := func(name string) bool {
		switch name {
		case NameStdTerm, NameHTML, NameJSON:
			return true
		}
		_, ok := cfg.Extra[name]
		return ok
	}

	names, unknown := ParseNames(list, valid)
	for _, name := range unknown {
		cfg.Log.Warn("Ignoring unknown reporter", "reporter", name)
	}

	sinks := make([]Reporter, 0, len(names))
	for _, name := range names {
		switch name {
		case NameStdTerm:
			sinks = append(sinks, NewStdTerm(cfg.Out, cfg.ErrOut))
		case NameHTML:
			h, err := NewHTMLSink(cfg.HTMLFile, cfg.ErrOut)
			if err != nil {
				return nil, fmt.Errorf("failed to create html reporter: %w", err)
			}
			sinks = append(sinks, h)
		case NameJSON:
			sinks = append(sinks, NewJSONSink(cfg.JSONFile))
		default:
			sinks = append(sinks, cfg.Extra[name])
		}
	}
	cfg.Log.Debug("Created reporters", "reporters", strings.Join(names, ","))
	return NewAggregator(sinks...).WithLogger(cfg.Log), nil
}
