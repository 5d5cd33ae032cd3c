package bench

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-bench/flags"
	"github.com/ethereum-optimism/infra/op-bench/history"
	"github.com/ethereum-optimism/infra/op-bench/reporting"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

// Config holds the application configuration
type Config struct {
	PlanFile       string
	Reporters      []string      // Reporter names, see reporting.ParseNames
	HTMLOutput     string        // File written by the html reporter
	JSONOutput     string        // File written by the json reporter
	SuiteFilter    string        // Only run suites whose full title contains this value
	RunInterval    time.Duration // Interval between runs
	RunOnce        bool          // Exit after one run
	RequestTimeout time.Duration
	DatabaseURI    string
	HealthzEnabled bool
	HealthzAddr    string
	MetricsConfig  opmetrics.CLIConfig
	Log            log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	planFile := ctx.String(flags.Plan.Name)
	if planFile == "" {
		return nil, errors.New("plan file is required")
	}
	absPlan, err := filepath.Abs(planFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for plan '%s': %w", planFile, err)
	}

	reporters, unknown := ParseReporters(ctx.String(flags.Reporter.Name))
	for _, name := range unknown {
		log.Warn("Ignoring unknown reporter", "reporter", name)
	}

	htmlOutput, err := filepath.Abs(ctx.String(flags.HTMLOutput.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for html output: %w", err)
	}
	jsonOutput, err := filepath.Abs(ctx.String(flags.JSONOutput.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for json output: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run interval must not be negative, got %s", runInterval)
	}

	cfg := &Config{
		PlanFile:       absPlan,
		Reporters:      reporters,
		HTMLOutput:     htmlOutput,
		JSONOutput:     jsonOutput,
		SuiteFilter:    ctx.String(flags.Suite.Name),
		RunInterval:    runInterval,
		RunOnce:        runInterval == 0,
		RequestTimeout: ctx.Duration(flags.RequestTimeout.Name),
		DatabaseURI:    ctx.String(flags.DatabaseURI.Name),
		HealthzEnabled: ctx.Bool(flags.HealthzEnabled.Name),
		HealthzAddr: net.JoinHostPort(
			ctx.String(flags.HealthzAddr.Name),
			strconv.Itoa(ctx.Int(flags.HealthzPort.Name)),
		),
		MetricsConfig: opmetrics.ReadCLIConfig(ctx),
		Log:           log,
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates values that do not depend on the cli context.
func (c *Config) Check() error {
	if c.PlanFile == "" {
		return errors.New("plan file is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.MetricsConfig.Enabled {
		if err := c.MetricsConfig.Check(); err != nil {
			return fmt.Errorf("invalid metrics config: %w", err)
		}
	}
	if c.UsesDatabase() && c.DatabaseURI == "" {
		return fmt.Errorf("the %s reporter requires --%s", history.ReporterName, flags.DatabaseURI.Name)
	}
	return nil
}

// UsesDatabase reports whether the postgres reporter is selected.
func (c *Config) UsesDatabase() bool {
	return slices.Contains(c.Reporters, history.ReporterName)
}

// ParseReporters resolves a comma separated reporter list against the
// built-in sinks and the postgres sink.
func ParseReporters(list string) (names []string, unknown []string) {
	return reporting.ParseNames(list, func(name string) bool {
		switch name {
		case reporting.NameStdTerm, reporting.NameHTML, reporting.NameJSON, history.ReporterName:
			return true
		}
		return false
	})
}
