package bench

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-bench/exitcodes"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, unreadable plans or interrupted runs.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// BenchFailureError is returned when a run completed but a suite failed (exit code 1)
type BenchFailureError struct {
	Message string
}

func (e *BenchFailureError) Error() string {
	return fmt.Sprintf("benchmark failure: %s", e.Message)
}

func NewBenchFailureError(message string) *BenchFailureError {
	return &BenchFailureError{Message: message}
}

// IsBenchFailureError checks if the error is or wraps a BenchFailureError
func IsBenchFailureError(err error) bool {
	var failureErr *BenchFailureError
	return err != nil && errors.As(err, &failureErr)
}

// ExitCode maps an error returned by the service to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case IsRuntimeError(err):
		return exitcodes.RuntimeErr
	default:
		return exitcodes.BenchFailure
	}
}
