package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables the history sink writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS bench_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	suites      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS bench_route_results (
	id          SERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES bench_runs (id) ON DELETE CASCADE,
	suite       TEXT NOT NULL,
	service     TEXT NOT NULL,
	route       TEXT NOT NULL,
	href        TEXT NOT NULL,
	status      TEXT NOT NULL,
	samples     INTEGER NOT NULL,
	errors      INTEGER NOT NULL,
	mean        DOUBLE PRECISION NOT NULL,
	p95         DOUBLE PRECISION NOT NULL,
	p99         DOUBLE PRECISION NOT NULL,
	single_mean DOUBLE PRECISION NOT NULL,
	rme         DOUBLE PRECISION NOT NULL,
	hz          DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS bench_suite_errors (
	id      SERIAL PRIMARY KEY,
	run_id  TEXT NOT NULL REFERENCES bench_runs (id) ON DELETE CASCADE,
	suite   TEXT NOT NULL,
	message TEXT NOT NULL
);
`

type Run struct {
	ID         string
	Status     string
	Suites     int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

type RouteRecord struct {
	ID         int
	RunID      string
	Suite      string
	Service    string
	Route      string
	Href       string
	Status     string
	Samples    int
	Errors     int
	Mean       float64
	P95        float64
	P99        float64
	SingleMean float64
	Rme        float64
	Hz         float64
}

type SuiteError struct {
	RunID   string
	Suite   string
	Message string
}

type Connection interface {
	LastRun(ctx context.Context) (*Run, error)
	Migrate(ctx context.Context) error

	Begin(ctx context.Context) (Transactor, error)
	Close() error
}

type Transactor interface {
	InsertRun(ctx context.Context, r Run) error
	InsertRouteRecord(ctx context.Context, rr RouteRecord) (int, error)
	InsertSuiteError(ctx context.Context, se SuiteError) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)
}

type PGXDB struct {
	conn *pgxpool.Pool
	log  log.Logger
}

func New(ctx context.Context, uri string, logger log.Logger) (*PGXDB, error) {
	conn, err := pgxpool.New(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if logger == nil {
		logger = log.Root()
	}

	return &PGXDB{conn: conn, log: logger}, nil
}

func (p *PGXDB) Migrate(ctx context.Context) error {
	if _, err := p.conn.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *PGXDB) LastRun(ctx context.Context) (*Run, error) {
	sql := `
SELECT id, status, suites, failed, started_at, finished_at
FROM bench_runs ORDER BY started_at DESC LIMIT 1
`

	row := p.conn.QueryRow(ctx, sql)
	var r Run
	if err := row.Scan(&r.ID, &r.Status, &r.Suites, &r.Failed, &r.StartedAt, &r.FinishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	return &r, nil
}

func (p *PGXDB) Begin(ctx context.Context) (Transactor, error) {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &PGXTransactor{tx: tx, log: p.log}, nil
}

func (p *PGXDB) Close() error {
	p.conn.Close()
	return nil
}

type PGXTransactor struct {
	tx  pgx.Tx
	log log.Logger
	mtx sync.Mutex
}

func (p *PGXTransactor) InsertRun(ctx context.Context, r Run) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO bench_runs (id, status, suites, failed, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING
`

	if _, err := p.tx.Exec(ctx,
		sql,
		r.ID,
		r.Status,
		r.Suites,
		r.Failed,
		r.StartedAt,
		r.FinishedAt,
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (p *PGXTransactor) InsertRouteRecord(ctx context.Context, rr RouteRecord) (int, error) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO bench_route_results
	(run_id, suite, service, route, href, status, samples, errors, mean, p95, p99, single_mean, rme, hz)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id
`

	row := p.tx.QueryRow(ctx,
		sql,
		rr.RunID,
		rr.Suite,
		rr.Service,
		rr.Route,
		rr.Href,
		rr.Status,
		rr.Samples,
		rr.Errors,
		rr.Mean,
		rr.P95,
		rr.P99,
		rr.SingleMean,
		rr.Rme,
		rr.Hz,
	)
	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert route result: %w", err)
	}
	return id, nil
}

func (p *PGXTransactor) InsertSuiteError(ctx context.Context, se SuiteError) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	sql := `
INSERT INTO bench_suite_errors (run_id, suite, message)
VALUES ($1, $2, $3)
`

	if _, err := p.tx.Exec(ctx, sql, se.RunID, se.Suite, se.Message); err != nil {
		return fmt.Errorf("failed to insert suite error: %w", err)
	}
	return nil
}

func (p *PGXTransactor) Commit(ctx context.Context) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.tx.Commit(ctx)
}

func (p *PGXTransactor) Rollback(ctx context.Context) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if err := p.tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		p.log.Error("error rolling back transaction", "err", err)
	}
}
