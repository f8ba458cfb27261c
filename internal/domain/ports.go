package domain

import (
	"context"
	"database/sql"
	"time"
)

// CandidateGenerator is the boundary to the external rewrite producer.
// One call is one atomic unit of cost and latency accounting. No ordering
// guarantee; duplicates and syntactically invalid output are expected and
// tolerated downstream.
type CandidateGenerator interface {
	// Generate returns at most n candidate outputs for the given context.
	// An empty slice is a valid response.
	Generate(ctx context.Context, gc GeneratorContext, n int) ([]CandidateOutput, error)
}

// DatabaseExecutor runs statements against one target engine instance.
type DatabaseExecutor interface {
	// QueryRows executes query under the per-statement timeout and returns
	// the streaming result set.
	QueryRows(ctx context.Context, query string) (*sql.Rows, error)

	// Explain captures structured (JSON) plan output for query. With
	// analyze set the statement is executed to collect actual row counts.
	Explain(ctx context.Context, query string, analyze bool) ([]byte, error)

	// AcquireTiming serializes timed runs on this engine instance.
	// Validation queries do not take the timing slot. The returned release
	// must be called when timing completes.
	AcquireTiming(ctx context.Context) (release func(), err error)

	// StatementTimeout reports the enforced per-statement deadline.
	StatementTimeout() time.Duration
}

// MemoryDiagnoser is optionally implemented by executors that can report
// spill or memory-pressure diagnostics. Not required for correctness.
type MemoryDiagnoser interface {
	MemoryDiagnostics(ctx context.Context) (map[string]string, error)
}

// OutcomeRecord is one append-only row per completed candidate.
type OutcomeRecord struct {
	QueryID         string
	SortieIndex     int
	CandidateID     string
	ProducedBy      string
	Strategy        Strategy
	ValidationState ValidationState
	Result          *BenchmarkResult
	RecordedAt      time.Time
}

// OutcomeWriter is write-only from the core; a live session never reads
// outcomes back.
type OutcomeWriter interface {
	Append(ctx context.Context, rec OutcomeRecord) error
}
