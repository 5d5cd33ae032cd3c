package reporting

import (
	"context"
	"errors"

	"github.com/ethereum-optimism/infra/op-bench/types"
)

// Reporter receives the events of a benchmark run.
type Reporter interface {
	// Suite announces that the suite with the given title is being measured.
	Suite(title string)
	// Results delivers the results of the last announced suite.
	Results(results types.Results)
	// Error reports a failure of the named suite.
	Error(suite string, err error)
	// Summary is called once at the end of a run.
	Summary(ctx context.Context) error
}

type reportedError struct {
	err error
}

func (e *reportedError) Error() string {
	return e.err.Error()
}

func (e *reportedError) Unwrap() error {
	return e.err
}

// MarkReported wraps err to record that it has already been passed to
// Reporter.Error, so callers further up do not report it again.
func MarkReported(err error) error {
	if err == nil || IsReported(err) {
		return err
	}
	return &reportedError{err: err}
}

// IsReported checks if err, or an error it wraps, was marked as reported.
func IsReported(err error) bool {
	var r *reportedError
	return err != nil && errors.As(err, &r)
}
