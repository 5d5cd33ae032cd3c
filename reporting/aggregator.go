package reporting

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-bench/types"
	"github.com/ethereum/go-ethereum/log"
)

var _ Reporter = (*Aggregator)(nil)

// Aggregator fans every reporter event out to a list of sinks, in order.
//
// Sinks are isolated from each other: a panicking sink is recovered and
// logged, and the remaining sinks still receive the event. Summary joins the
// errors of all sinks.
type Aggregator struct {
	sinks []Reporter
	log   log.Logger
}

// NewAggregator creates an Aggregator over sinks. Nil sinks are dropped.
func NewAggregator(sinks ...Reporter) *Aggregator {
	a := &Aggregator{log: log.Root()}
	for _, s := range sinks {
		if s != nil {
			a.sinks = append(a.sinks, s)
		}
	}
	return a
}

// WithLogger sets the logger used to record sink panics.
func (a *Aggregator) WithLogger(l log.Logger) *Aggregator {
	if l != nil {
		a.log = l
	}
	return a
}

// Sinks returns the sinks in invocation order.
func (a *Aggregator) Sinks() []Reporter {
	return append([]Reporter(nil), a.sinks...)
}

func (a *Aggregator) Suite(title string) {
	a.each("suite", func(r Reporter) error {
		r.Suite(title)
		return nil
	})
}

func (a *Aggregator) Results(results types.Results) {
	a.each("results", func(r Reporter) error {
		r.Results(results)
		return nil
	})
}

func (a *Aggregator) Error(suite string, err error) {
	a.each("error", func(r Reporter) error {
		r.Error(suite, err)
		return nil
	})
}

func (a *Aggregator) Summary(ctx context.Context) error {
	return a.each("summary", func(r Reporter) error {
		return r.Summary(ctx)
	})
}

func (a *Aggregator) each(event string, fn func(r Reporter) error) error {
	var errs []error
	for i, sink := range a.sinks {
		if err := a.call(i, event, sink, fn); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Aggregator) call(i int, event string, sink Reporter, fn func(r Reporter) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			a.log.Error("Reporter panicked", "event", event, "reporter", fmt.Sprintf("%d:%T", i, sink), "panic", p)
			err = fmt.Errorf("reporter %T panicked on %s: %v", sink, event, p)
		}
	}()
	return fn(sink)
}
