// Package suite models benchmark suites: a tree of nodes carrying services,
// routes, options and lifecycle hooks.
//
// Two inheritance strategies apply. Routes and options are copied from the
// parent when a suite is created, so later changes to the parent are not seen
// by existing children. Services, service hooks and before hooks are reached
// through the parent link at invocation time, so a child always observes its
// ancestors. After hooks are never inherited.
//
// Every hook list is drained when invoked: a hook runs at most once no matter
// how many descendants trigger the invocation.
package suite

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
)

type serviceHook struct {
	name    string
	resolve Resolver
}

// Suite is a node of the suite tree.
type Suite struct {
	title  string
	parent *Suite

	mu           sync.Mutex
	services     map[string]string
	serviceHooks []serviceHook
	routes       map[string]Route
	options      Options
	befores      []Hook
	afters       []Hook
}

// New creates a suite below parent, which may be nil. Routes and options are
// snapshotted from parent; a suite without parent starts from DefaultOptions.
func New(title string, parent *Suite) *Suite {
	s := &Suite{
		title:    title,
		parent:   parent,
		services: make(map[string]string),
		routes:   make(map[string]Route),
		options:  DefaultOptions(),
	}
	if parent != nil {
		parent.mu.Lock()
		for name, r := range parent.routes {
			s.routes[name] = r.clone()
		}
		s.options = parent.options
		parent.mu.Unlock()
	}
	return s
}

// Title returns the suite title. Root suites usually have an empty title.
func (s *Suite) Title() string {
	return s.title
}

// Parent returns the parent suite or nil.
func (s *Suite) Parent() *Suite {
	return s.parent
}

// FullTitle joins the non-empty titles from the top of the tree down to s.
func (s *Suite) FullTitle() string {
	var parts []string
	for cur := s; cur != nil; cur = cur.parent {
		if cur.title != "" {
			parts = append(parts, cur.title)
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " ")
}

// RootTitle names suites whose full title is empty.
const RootTitle = "root"

// DisplayTitle is the name used for s in reports and logs: its full title, or
// RootTitle for an untitled root.
func (s *Suite) DisplayTitle() string {
	if title := s.FullTitle(); title != "" {
		return title
	}
	return RootTitle
}

// AddBefore registers a hook run before the suite is measured. Nil or
// unsupported values are ignored; the return value reports registration.
func (s *Suite) AddBefore(fn any) bool {
	h, ok := NewHook(fn)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.befores = append(s.befores, h)
	return true
}

// AddAfter registers a hook run after the suite is measured, even when
// measurement failed. Nil or unsupported values are ignored.
func (s *Suite) AddAfter(fn any) bool {
	h, ok := NewHook(fn)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afters = append(s.afters, h)
	return true
}

// AddServiceHook registers a deferred service definition. urlOrFn is either
// a constant base URL or a function producing one when service hooks run.
// Nil values and nil functions are ignored.
func (s *Suite) AddServiceHook(name string, urlOrFn any) bool {
	resolve, ok := NewResolver(urlOrFn)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serviceHooks = append(s.serviceHooks, serviceHook{name: name, resolve: resolve})
	return true
}

// AddRoute adds or replaces a route on this suite only.
func (s *Suite) AddRoute(name string, r Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[name] = r
}

// SetOptions replaces the suite options with the defaults overlaid by p.
// Options omitted from p are reset to their default value.
func (s *Suite) SetOptions(p PartialOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = p.ApplyTo(DefaultOptions())
}

// Options returns the current options.
func (s *Suite) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// Routes returns a copy of the suite routes.
func (s *Suite) Routes() map[string]Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Route, len(s.routes))
	for name, r := range s.routes {
		out[name] = r.clone()
	}
	return out
}

// Services returns the resolved services visible to the suite: the parent's
// view overlaid with the suite's own entries. On a name collision the entry
// of the suite closest to s wins.
func (s *Suite) Services() map[string]string {
	var out map[string]string
	if s.parent != nil {
		out = s.parent.Services()
	} else {
		out = make(map[string]string)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(out, s.services)
	return out
}

// Measurable reports whether the suite has services, routes and options.
func (s *Suite) Measurable() bool {
	if len(s.Services()) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.routes) > 0 && !s.options.IsZero()
}

// InvokeBefores runs the before hooks of every ancestor, top of the tree
// first, then the suite's own. Each list is drained as it is invoked, so a
// later call only runs hooks registered since.
func (s *Suite) InvokeBefores(ctx context.Context) error {
	if s.parent != nil {
		if err := s.parent.InvokeBefores(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	hooks := s.befores
	s.befores = nil
	s.mu.Unlock()
	return s.runHooks(ctx, "before", hooks)
}

// InvokeAfters runs and drains the suite's own after hooks. Ancestor lists
// are left untouched.
func (s *Suite) InvokeAfters(ctx context.Context) error {
	s.mu.Lock()
	hooks := s.afters
	s.afters = nil
	s.mu.Unlock()
	return s.runHooks(ctx, "after", hooks)
}

// InvokeServiceHooks resolves the service hooks of every ancestor, top of
// the tree first, then the suite's own. Each resolved URL is stored on the
// suite that declared the hook.
func (s *Suite) InvokeServiceHooks(ctx context.Context) error {
	if s.parent != nil {
		if err := s.parent.InvokeServiceHooks(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	hooks := s.serviceHooks
	s.serviceHooks = nil
	s.mu.Unlock()

	for _, h := range hooks {
		if err := ctx.Err(); err != nil {
			return err
		}
		url, err := h.resolve.call(ctx)
		if err != nil {
			return fmt.Errorf("suite %q: resolving service %q: %w", s.title, h.name, err)
		}
		s.mu.Lock()
		s.services[h.name] = url
		s.mu.Unlock()
	}
	return nil
}

func (s *Suite) runHooks(ctx context.Context, kind string, hooks []Hook) error {
	for i, h := range hooks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.call(ctx); err != nil {
			return fmt.Errorf("suite %q: %s hook %d: %w", s.title, kind, i, err)
		}
	}
	return nil
}
