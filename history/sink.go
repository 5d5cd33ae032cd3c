// Package history persists benchmark runs to Postgres.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-bench/reporting"
	"github.com/ethereum-optimism/infra/op-bench/types"
)

// ReporterName selects the sink in a reporter list.
const ReporterName = "postgres"

// Sink is a reporter that buffers a run and writes it in one transaction
// when the summary is requested.
type Sink struct {
	db    Connection
	runID string
	log   log.Logger
	now   func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	current   string
	suites    []string
	records   []RouteRecord
	errors    []SuiteError
}

var _ reporting.Reporter = (*Sink)(nil)

// NewSink creates a sink that stores results under runID.
func NewSink(db Connection, runID string, logger log.Logger) *Sink {
	if logger == nil {
		logger = log.Root()
	}
	return &Sink{
		db:        db,
		runID:     runID,
		log:       logger,
		now:       time.Now,
		startedAt: time.Now(),
	}
}

// Suite records the suite subsequent results belong to.
func (s *Sink) Suite(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = title
	s.suites = append(s.suites, title)
}

// Results buffers one record per route.
func (s *Sink) Results(results types.Results) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, res := range results.Sorted() {
		s.records = append(s.records, RouteRecord{
			RunID:      s.runID,
			Suite:      s.current,
			Service:    res.Service,
			Route:      res.Route,
			Href:       res.Href,
			Status:     string(res.Status()),
			Samples:    len(res.Stats.Sample),
			Errors:     len(res.Errors),
			Mean:       res.Stats.Mean,
			P95:        res.Stats.P95,
			P99:        res.Stats.P99,
			SingleMean: res.Stats.SingleMean,
			Rme:        res.Stats.Rme,
			Hz:         res.Hz,
		})
	}
}

// Error buffers a suite failure.
func (s *Sink) Error(suite string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, SuiteError{
		RunID:   s.runID,
		Suite:   suite,
		Message: stripansi.Strip(err.Error()),
	})
}

// Summary writes the buffered run. Nothing is stored if any insert fails.
func (s *Sink) Summary(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := s.run()
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to store run %s: %w", s.runID, err)
	}
	if err := s.write(ctx, tx, run); err != nil {
		tx.Rollback(ctx)
		return fmt.Errorf("failed to store run %s: %w", s.runID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", s.runID, err)
	}
	s.log.Info("Stored benchmark run", "run_id", s.runID, "routes", len(s.records), "errors", len(s.errors))
	return nil
}

func (s *Sink) write(ctx context.Context, tx Transactor, run Run) error {
	if err := tx.InsertRun(ctx, run); err != nil {
		return err
	}
	for _, rec := range s.records {
		if _, err := tx.InsertRouteRecord(ctx, rec); err != nil {
			return err
		}
	}
	var errs []error
	for _, se := range s.errors {
		if err := tx.InsertSuiteError(ctx, se); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) run() Run {
	failed := make(map[string]bool)
	for _, rec := range s.records {
		if rec.Status == string(types.StatusFail) {
			failed[rec.Suite] = true
		}
	}
	for _, se := range s.errors {
		failed[se.Suite] = true
	}
	seen := make(map[string]bool)
	for _, title := range s.suites {
		seen[title] = true
	}
	for title := range failed {
		seen[title] = true
	}

	status := types.StatusPass
	if len(failed) > 0 {
		status = types.StatusFail
	}
	return Run{
		ID:         s.runID,
		Status:     string(status),
		Suites:     len(seen),
		Failed:     len(failed),
		StartedAt:  s.startedAt,
		FinishedAt: s.now(),
	}
}
