package bench

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethereum-optimism/infra/op-bench/exitcodes"
)

func TestErrorKinds(t *testing.T) {
	base := errors.New("plan missing")
	runtimeErr := NewRuntimeError(base)
	failure := NewBenchFailureError("2 suites failed")

	assert.True(t, IsRuntimeError(runtimeErr))
	assert.True(t, IsRuntimeError(fmt.Errorf("failed to start: %w", runtimeErr)))
	assert.ErrorIs(t, runtimeErr, base)
	assert.Equal(t, "runtime error: plan missing", runtimeErr.Error())
	assert.False(t, IsRuntimeError(failure))
	assert.False(t, IsRuntimeError(nil))

	assert.True(t, IsBenchFailureError(failure))
	assert.True(t, IsBenchFailureError(errors.Join(errors.New("other"), failure)))
	assert.Equal(t, "benchmark failure: 2 suites failed", failure.Error())
	assert.False(t, IsBenchFailureError(base))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitcodes.Success, ExitCode(nil))
	assert.Equal(t, exitcodes.RuntimeErr, ExitCode(fmt.Errorf("wrapped: %w", NewRuntimeError(errors.New("x")))))
	assert.Equal(t, exitcodes.BenchFailure, ExitCode(NewBenchFailureError("x")))
	assert.Equal(t, exitcodes.BenchFailure, ExitCode(errors.New("unclassified")))
}
