// Package exitcodes defines the exit codes used by op-bench.
package exitcodes

// * Success (0): every suite passed or was skipped
// * BenchFailure (1): one or more suites failed
// * RuntimeErr (2): configuration errors, interrupted runs or other failures
const (
	Success      = 0 // All suites pass
	BenchFailure = 1 // Suite failures
	RuntimeErr   = 2 // Runtime errors
)
