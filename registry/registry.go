// Package registry declares suites from YAML or TOML plan files.
package registry

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-bench/suite"
)

// ErrNoSuites is returned when a plan leaves nothing to run.
var ErrNoSuites = errors.New("no suites to run")

// Registrar receives the suites declared by a plan.
type Registrar interface {
	suite.Registrar
	AddRootSuite(s *suite.Suite) error
}

// Config contains registry configuration
type Config struct {
	Log      log.Logger
	PlanFile string
	// Filter keeps only suites whose full title contains it. The root suite
	// is always kept.
	Filter string
	Client *http.Client
}

// Registry holds a loaded plan and registers it with a runner on demand.
type Registry struct {
	plan   *Plan
	dir    string
	filter string
	log    log.Logger
	client *http.Client
}

// NewRegistry loads and validates the plan file.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.PlanFile == "" {
		return nil, fmt.Errorf("plan file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 5 * time.Second}
	}

	plan, err := LoadPlan(cfg.PlanFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	dir, err := filepath.Abs(filepath.Dir(cfg.PlanFile))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve plan directory: %w", err)
	}

	cfg.Log.Debug("Plan loaded", "file", cfg.PlanFile, "suites", len(plan.Suites), "root", plan.Root != nil)
	return &Registry{
		plan:   plan,
		dir:    dir,
		filter: cfg.Filter,
		log:    cfg.Log,
		client: cfg.Client,
	}, nil
}

// Plan returns the loaded plan.
func (r *Registry) Plan() *Plan {
	return r.plan
}

// Register declares every suite of the plan on target. Children are
// registered before their parents and the root suite, if any, is added with
// AddRootSuite. Each call builds fresh suites, so a plan can be registered
// once per run.
func (r *Registry) Register(target Registrar) error {
	hooks := &hookFactory{
		log:    r.log,
		env:    newEnv(),
		dir:    r.dir,
		client: r.client,
	}
	reg := &filtered{target: target, filter: r.filter}

	var root *suite.Suite
	if r.plan.Root != nil {
		root = suite.New(r.plan.Root.Title, nil)
		hooks.configure(root, r.plan.Root)
	}
	for i := range r.plan.Suites {
		hooks.declare(reg, root, &r.plan.Suites[i])
	}
	if root != nil {
		// Suites nested in the root declaration are its children too.
		for i := range r.plan.Root.Suites {
			hooks.declare(reg, root, &r.plan.Root.Suites[i])
		}
		if err := target.AddRootSuite(root); err != nil {
			return fmt.Errorf("failed to register root suite: %w", err)
		}
	}

	if reg.added == 0 && (root == nil || r.filter != "") {
		if r.filter != "" {
			return fmt.Errorf("%w matching %q", ErrNoSuites, r.filter)
		}
		return ErrNoSuites
	}
	r.log.Debug("Registered suites", "count", reg.added, "skipped", reg.skipped)
	return nil
}

// declare builds cfg as a child of parent and registers it after its own
// children.
func (f *hookFactory) declare(r suite.Registrar, parent *suite.Suite, cfg *SuiteConfig) {
	suite.Describe(r, cfg.Title, parent, func(s *suite.Suite) {
		f.configure(s, cfg)
		for i := range cfg.Suites {
			f.declare(r, s, &cfg.Suites[i])
		}
	})
}

// configure applies everything but nested suites. Options and routes are set
// before children are declared so that they inherit them.
func (f *hookFactory) configure(s *suite.Suite, cfg *SuiteConfig) {
	if cfg.Options != nil {
		s.SetOptions(*cfg.Options)
	}
	for _, name := range sortedKeys(cfg.Routes) {
		s.AddRoute(name, cfg.Routes[name].Route)
	}
	for _, name := range sortedKeys(cfg.Services) {
		s.AddServiceHook(name, f.serviceResolver(cfg.Services[name]))
	}
	for _, h := range cfg.Before {
		s.AddBefore(f.hook(h))
	}
	for _, h := range cfg.After {
		s.AddAfter(f.hook(h))
	}
}

// filtered drops suites whose full title does not match.
type filtered struct {
	target  suite.Registrar
	filter  string
	added   int
	skipped int
}

func (f *filtered) AddSuite(s *suite.Suite) {
	if f.filter != "" && !strings.Contains(s.FullTitle(), f.filter) {
		f.skipped++
		return
	}
	f.added++
	f.target.AddSuite(s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
