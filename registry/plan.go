package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-bench/suite"
)

// DefaultWaitTimeout bounds a wait_for hook that sets no timeout.
const DefaultWaitTimeout = 30 * time.Second

// Plan is the declarative form of a benchmark suite tree.
type Plan struct {
	Root   *SuiteConfig  `yaml:"root,omitempty" toml:"root,omitempty"`
	Suites []SuiteConfig `yaml:"suites" toml:"suites"`
}

// SuiteConfig declares one suite and the suites nested below it.
type SuiteConfig struct {
	Title    string                 `yaml:"title" toml:"title"`
	Services map[string]string      `yaml:"services,omitempty" toml:"services,omitempty"`
	Before   []HookConfig           `yaml:"before,omitempty" toml:"before,omitempty"`
	After    []HookConfig           `yaml:"after,omitempty" toml:"after,omitempty"`
	Options  *suite.PartialOptions  `yaml:"options,omitempty" toml:"options,omitempty"`
	Routes   map[string]RouteConfig `yaml:"routes,omitempty" toml:"routes,omitempty"`
	Suites   []SuiteConfig          `yaml:"suites,omitempty" toml:"suites,omitempty"`
}

// HookConfig is a before or after action. Exactly one of Exec and WaitFor
// must be set.
type HookConfig struct {
	// Exec is a shell command run from the plan file's directory.
	Exec string `yaml:"exec,omitempty" toml:"exec,omitempty"`
	// Capture names a variable that receives the trimmed stdout of Exec. It
	// can be referenced by later hooks and service values.
	Capture string `yaml:"capture,omitempty" toml:"capture,omitempty"`
	// WaitFor is a URL polled until it answers with a 2xx status.
	WaitFor string `yaml:"wait_for,omitempty" toml:"wait_for,omitempty"`
	Timeout string `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
}

// RouteConfig accepts either a bare path or a full route definition.
type RouteConfig struct {
	suite.Route
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *RouteConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.Route = suite.Route{Route: value.Value}
		return nil
	}
	return value.Decode(&r.Route)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (r *RouteConfig) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		r.Route = suite.Route{Route: v}
		return nil
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode route: %w", err)
		}
		return json.Unmarshal(raw, &r.Route)
	default:
		return fmt.Errorf("route must be a string or a table, got %T", data)
	}
}

// Validate checks the hook declares a single known action.
func (h HookConfig) Validate() error {
	switch {
	case h.Exec != "" && h.WaitFor != "":
		return errors.New("hook must set only one of exec and wait_for")
	case h.Exec == "" && h.WaitFor == "":
		return errors.New("hook must set exec or wait_for")
	case h.Capture != "" && h.Exec == "":
		return errors.New("capture is only valid with exec")
	}
	if _, err := h.timeout(); err != nil {
		return err
	}
	return nil
}

func (h HookConfig) timeout() (time.Duration, error) {
	if h.Timeout == "" {
		if h.WaitFor != "" {
			return DefaultWaitTimeout, nil
		}
		return 0, nil
	}
	d, err := time.ParseDuration(h.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", h.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", h.Timeout)
	}
	return d, nil
}

// Validate checks the suite and every nested suite.
func (c *SuiteConfig) Validate() error {
	for i, h := range c.Before {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("suite %q: before %d: %w", c.Title, i, err)
		}
	}
	for i, h := range c.After {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("suite %q: after %d: %w", c.Title, i, err)
		}
	}
	for name, route := range c.Routes {
		if strings.TrimSpace(route.Route.Route) == "" {
			return fmt.Errorf("suite %q: route %q has no path", c.Title, name)
		}
	}
	for name, value := range c.Services {
		if value == "" {
			return fmt.Errorf("suite %q: service %q has no URL", c.Title, name)
		}
	}
	for i := range c.Suites {
		if err := c.Suites[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every suite of the plan.
func (p *Plan) Validate() error {
	if p.Root != nil {
		if err := p.Root.Validate(); err != nil {
			return fmt.Errorf("root: %w", err)
		}
	}
	for i := range p.Suites {
		if err := p.Suites[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadPlan reads a plan file. The format is chosen by extension: .yaml and
// .yml are YAML, .toml is TOML.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParsePlan(data, filepath.Ext(path))
}

// ParsePlan decodes a plan in the format named by ext.
func ParsePlan(data []byte, ext string) (*Plan, error) {
	var plan Plan
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("failed to parse YAML plan: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &plan); err != nil {
			return nil, fmt.Errorf("failed to parse TOML plan: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported plan format %q", ext)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &plan, nil
}
