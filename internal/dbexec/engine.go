// Package dbexec adapts target database engines (DuckDB, PostgreSQL) to
// the executor port: statement execution with a per-statement timeout,
// structured plan capture, and serialized timing slots.
package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sqlbeam/internal/domain"
)

// Kind names a supported engine family.
type Kind string

const (
	KindDuckDB   Kind = "duckdb"
	KindPostgres Kind = "postgres"
)

// DefaultStatementTimeout bounds any single statement when the caller
// does not configure one.
const DefaultStatementTimeout = 5 * time.Minute

// Compile-time check.
var _ domain.DatabaseExecutor = (*Engine)(nil)

// Engine wraps a *sql.DB for one target database instance. Timed
// benchmark runs are serialized through a single timing slot; validation
// queries bypass the slot and may run concurrently.
type Engine struct {
	db      *sql.DB
	kind    Kind
	timeout time.Duration
	timing  chan struct{}
}

// Open connects to the target engine. dsn is a file path (or ":memory:")
// for DuckDB and a connection string for PostgreSQL.
func Open(kind Kind, dsn string, timeout time.Duration) (*Engine, error) {
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}
	var driver string
	switch kind {
	case KindDuckDB:
		driver = "duckdb"
	case KindPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported engine kind %q", kind)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", kind, err)
	}
	return &Engine{
		db:      db,
		kind:    kind,
		timeout: timeout,
		timing:  make(chan struct{}, 1),
	}, nil
}

// NewFromDB wraps an existing handle; used by tests.
func NewFromDB(db *sql.DB, kind Kind, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultStatementTimeout
	}
	return &Engine{db: db, kind: kind, timeout: timeout, timing: make(chan struct{}, 1)}
}

// Close releases the underlying handle.
func (e *Engine) Close() error { return e.db.Close() }

// Kind reports the engine family.
func (e *Engine) Kind() Kind { return e.kind }

// StatementTimeout reports the enforced per-statement deadline.
func (e *Engine) StatementTimeout() time.Duration { return e.timeout }

// QueryRows executes query under the per-statement timeout. The deadline
// also bounds row streaming: once it elapses the result set's context is
// cancelled, so iteration fails with context.DeadlineExceeded.
func (e *Engine) QueryRows(ctx context.Context, query string) (*sql.Rows, error) {
	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	rows, err := e.db.QueryContext(qctx, query)
	if err != nil {
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrTimeout("statement exceeded %s", e.timeout)
		}
		return nil, err
	}
	// The rows hold qctx until closed; release the timer once the
	// deadline has passed either way.
	time.AfterFunc(e.timeout, cancel)
	return rows, nil
}

// AcquireTiming takes the engine's single timing slot, blocking until it
// is free or ctx is done. Concurrent timed runs on one database would
// invalidate each other's measurements.
func (e *Engine) AcquireTiming(ctx context.Context) (func(), error) {
	select {
	case e.timing <- struct{}{}:
		return func() { <-e.timing }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Explain captures structured plan output for query as JSON. With analyze
// set the statement is executed so the plan carries actual row counts.
func (e *Engine) Explain(ctx context.Context, query string, analyze bool) ([]byte, error) {
	switch e.kind {
	case KindPostgres:
		return e.explainPostgres(ctx, query, analyze)
	case KindDuckDB:
		return e.explainDuckDB(ctx, query, analyze)
	}
	return nil, fmt.Errorf("explain: unsupported engine kind %q", e.kind)
}

func (e *Engine) explainPostgres(ctx context.Context, query string, analyze bool) ([]byte, error) {
	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stmt := "EXPLAIN (VERBOSE, FORMAT JSON) "
	if analyze {
		stmt = "EXPLAIN (ANALYZE, VERBOSE, FORMAT JSON) "
	}
	var planJSON string
	if err := e.db.QueryRowContext(qctx, stmt+query).Scan(&planJSON); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrTimeout("EXPLAIN exceeded %s", e.timeout)
		}
		return nil, fmt.Errorf("explain: %w", err)
	}
	return []byte(planJSON), nil
}

// explainDuckDB uses DuckDB's JSON profiler: profiling output is written
// to a temp file while the statement runs, then read back.
func (e *Engine) explainDuckDB(ctx context.Context, query string, analyze bool) ([]byte, error) {
	if !analyze {
		return e.explainDuckDBPlain(ctx, query)
	}

	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tmp, err := os.CreateTemp("", "sqlbeam-profile-*.json")
	if err != nil {
		return nil, fmt.Errorf("profile output: %w", err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(path) }()

	conn, err := e.db.Conn(qctx)
	if err != nil {
		return nil, fmt.Errorf("profile conn: %w", err)
	}
	defer func() { _ = conn.Close() }()

	setup := []string{
		"PRAGMA enable_profiling='json'",
		fmt.Sprintf("PRAGMA profiling_output='%s'", path),
	}
	for _, s := range setup {
		if _, err := conn.ExecContext(qctx, s); err != nil {
			return nil, fmt.Errorf("profile setup: %w", err)
		}
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "PRAGMA disable_profiling")
	}()

	if err := drainConn(qctx, conn, query); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrTimeout("profiled run exceeded %s", e.timeout)
		}
		return nil, err
	}
	return os.ReadFile(path)
}

func (e *Engine) explainDuckDBPlain(ctx context.Context, query string) ([]byte, error) {
	qctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var key, value string
	if err := e.db.QueryRowContext(qctx, "EXPLAIN (FORMAT json) "+query).Scan(&key, &value); err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	return []byte(value), nil
}

// MemoryDiagnostics reports per-tag memory usage for DuckDB engines.
// Optional; other engines return nil.
func (e *Engine) MemoryDiagnostics(ctx context.Context) (map[string]string, error) {
	if e.kind != KindDuckDB {
		return nil, nil
	}
	rows, err := e.db.QueryContext(ctx, "SELECT tag, memory_usage_bytes FROM duckdb_memory()")
	if err != nil {
		return nil, fmt.Errorf("memory diagnostics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := map[string]string{}
	for rows.Next() {
		var tag string
		var bytes int64
		if err := rows.Scan(&tag, &bytes); err != nil {
			return nil, err
		}
		out[tag] = fmt.Sprintf("%d", bytes)
	}
	return out, rows.Err()
}

func drainConn(ctx context.Context, conn *sql.Conn, query string) error {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
	}
	return rows.Err()
}
