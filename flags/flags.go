package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_BENCH"

var (
	Plan = &cli.StringFlag{
		Name:     "plan",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:    "Path to the benchmark plan file (eg. 'bench.yaml' or 'bench.toml')",
	}
	Reporter = &cli.StringFlag{
		Name:    "reporter",
		Value:   "default",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPORTER"),
		Usage:   "Comma separated list of reporters: stdterm (alias default), html, json, postgres",
	}
	HTMLOutput = &cli.StringFlag{
		Name:    "html-output",
		Value:   "benchmarks.html",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HTML_OUTPUT"),
		Usage:   "File written by the html reporter",
	}
	JSONOutput = &cli.StringFlag{
		Name:    "json-output",
		Value:   "benchmarks.json",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "JSON_OUTPUT"),
		Usage:   "File written by the json reporter",
	}
	Suite = &cli.StringFlag{
		Name:    "suite",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SUITE"),
		Usage:   "Only run suites whose full title contains this value. The root suite always runs.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between benchmark runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	RequestTimeout = &cli.DurationFlag{
		Name:    "request-timeout",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REQUEST_TIMEOUT"),
		Usage:   "Timeout of a single benchmark request",
	}
	DatabaseURI = &cli.StringFlag{
		Name:    "database-uri",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DATABASE_URI"),
		Usage:   "Postgres connection string used by the postgres reporter",
	}
	HealthzEnabled = &cli.BoolFlag{
		Name:    "healthz.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ENABLED"),
		Usage:   "Serve /healthz and /status with the outcome of the last run",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Healthz listening address",
	}
	HealthzPort = &cli.IntFlag{
		Name:    "healthz.port",
		Value:   8081,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Healthz listening port",
	}
	OtelEnabled = &cli.BoolFlag{
		Name:    "otel.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OTEL_ENABLED"),
		Usage:   "Export traces with OpenTelemetry, configured through the standard OTEL_* environment",
	}
)

var requiredFlags = []cli.Flag{
	Plan,
}

var optionalFlags = []cli.Flag{
	Reporter,
	HTMLOutput,
	JSONOutput,
	Suite,
	RunInterval,
	RequestTimeout,
	DatabaseURI,
	HealthzEnabled,
	HealthzAddr,
	HealthzPort,
	OtelEnabled,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
