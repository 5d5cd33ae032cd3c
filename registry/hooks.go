package registry

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-bench/suite"
)

const waitForInterval = 250 * time.Millisecond

// env holds variables captured by exec hooks during a run. Lookups fall back
// to the process environment.
type env struct {
	mu   sync.RWMutex
	vars map[string]string
}

func newEnv() *env {
	return &env{vars: make(map[string]string)}
}

func (e *env) set(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[key] = value
}

func (e *env) lookup(key string) string {
	e.mu.RLock()
	v, ok := e.vars[key]
	e.mu.RUnlock()
	if ok {
		return v
	}
	return os.Getenv(key)
}

func (e *env) expand(s string) string {
	return os.Expand(s, e.lookup)
}

func (e *env) environ() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := os.Environ()
	for k, v := range e.vars {
		out = append(out, k+"="+v)
	}
	return out
}

// hookFactory turns hook declarations into suite hooks.
type hookFactory struct {
	log    log.Logger
	env    *env
	dir    string
	client *http.Client
}

func (f *hookFactory) hook(h HookConfig) suite.Hook {
	timeout, _ := h.timeout()
	if h.WaitFor != "" {
		return func(ctx context.Context) error {
			return f.waitFor(ctx, f.env.expand(h.WaitFor), timeout)
		}
	}
	return func(ctx context.Context) error {
		return f.exec(ctx, h.Exec, h.Capture, timeout)
	}
}

func (f *hookFactory) exec(ctx context.Context, command, capture string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = f.dir
	cmd.Env = f.env.environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	f.log.Debug("Running hook command", "dir", cmd.Dir, "command", command)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("command %q failed: %w", command, err)
		}
		return fmt.Errorf("command %q failed: %w: %s", command, err, msg)
	}
	if capture != "" {
		f.env.set(capture, strings.TrimSpace(stdout.String()))
		f.log.Debug("Captured hook output", "var", capture)
	}
	return nil
}

func (f *hookFactory) waitFor(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	f.log.Info("Waiting for service", "url", url, "timeout", timeout)
	ticker := time.NewTicker(waitForInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		lastErr = f.probe(ctx, url)
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for %s: %w", url, lastErr)
		case <-ticker.C:
		}
	}
}

func (f *hookFactory) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// serviceResolver expands raw with captured and process variables when the
// service hooks of a suite run.
func (f *hookFactory) serviceResolver(raw string) suite.Resolver {
	return func(context.Context) (string, error) {
		url := f.env.expand(raw)
		if url == "" {
			return "", fmt.Errorf("%q expanded to an empty value", raw)
		}
		return url, nil
	}
}
