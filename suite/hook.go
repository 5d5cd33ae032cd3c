package suite

import (
	"context"
	"fmt"
	"sync"
)

// Hook is a lifecycle callback normalised to a single awaitable form.
type Hook func(ctx context.Context) error

// Resolver produces a service base URL when service hooks are invoked.
type Resolver func(ctx context.Context) (string, error)

// NewHook normalises a supported callback into a Hook.
//
// Supported forms are value style (func(), func() error,
// func(context.Context) error) and continuation style (func(done func()),
// func(done func(error)), func(context.Context, func(error))). A
// continuation hook completes when done is called; one that never calls done
// blocks until ctx is cancelled. The second return value is false for nil or
// unsupported values.
func NewHook(fn any) (Hook, bool) {
	switch f := fn.(type) {
	case Hook:
		return f, f != nil
	case func(context.Context) error:
		return f, f != nil
	case func() error:
		if f == nil {
			return nil, false
		}
		return func(context.Context) error { return f() }, true
	case func():
		if f == nil {
			return nil, false
		}
		return func(context.Context) error {
			f()
			return nil
		}, true
	case func(func()):
		if f == nil {
			return nil, false
		}
		return fromContinuation(func(_ context.Context, done func(error)) {
			f(func() { done(nil) })
		}), true
	case func(func(error)):
		if f == nil {
			return nil, false
		}
		return fromContinuation(func(_ context.Context, done func(error)) { f(done) }), true
	case func(context.Context, func(error)):
		if f == nil {
			return nil, false
		}
		return fromContinuation(f), true
	default:
		return nil, false
	}
}

func fromContinuation(fn func(context.Context, func(error))) Hook {
	return func(ctx context.Context) error {
		result := make(chan error, 1)
		var once sync.Once
		fn(ctx, func(err error) {
			once.Do(func() { result <- err })
		})
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// NewResolver wraps urlOrFn into a Resolver. Callables are evaluated at
// resolution time; any other value is returned as a constant. The second
// return value is false for nil and for nil functions.
func NewResolver(urlOrFn any) (Resolver, bool) {
	switch f := urlOrFn.(type) {
	case nil:
		return nil, false
	case Resolver:
		return f, f != nil
	case func(context.Context) (string, error):
		return f, f != nil
	case func() (string, error):
		if f == nil {
			return nil, false
		}
		return func(context.Context) (string, error) { return f() }, true
	case func() string:
		if f == nil {
			return nil, false
		}
		return func(context.Context) (string, error) { return f(), nil }, true
	case string:
		return constant(f), true
	case fmt.Stringer:
		return constant(f.String()), true
	default:
		return constant(fmt.Sprint(f)), true
	}
}

func constant(url string) Resolver {
	return func(context.Context) (string, error) { return url, nil }
}

// call invokes h and converts a panic into an error.
func (h Hook) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h(ctx)
}

func (r Resolver) call(ctx context.Context) (url string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("service hook panicked: %v", p)
		}
	}()
	return r(ctx)
}
