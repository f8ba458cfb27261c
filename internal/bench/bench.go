// Package bench implements the fixed timing protocol and outcome
// classification. Every measurement runs the statement three times on the
// same connection state, discards the first run as warm-up, and returns
// the mean of the remaining two; a single run is never compared against
// another single run.
package bench

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"sqlbeam/internal/domain"
)

// Timing protocol and classification thresholds. Documented default
// policy; the thresholds are configured constants, not tunables read at
// run time.
const (
	TotalRuns   = 3 // first run discarded as warm-up
	WinMin      = 1.10
	ImprovedMin = 1.05
	NeutralMin  = 0.95
)

// Engine measures statements against one target database.
type Engine struct {
	exec   domain.DatabaseExecutor
	logger *slog.Logger
}

// Deps holds dependencies for Engine.
type Deps struct {
	Exec   domain.DatabaseExecutor
	Logger *slog.Logger
}

// New creates a benchmark Engine.
func New(deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{exec: deps.Exec, logger: deps.Logger}
}

// Measure times one statement under the fixed protocol and returns the
// trimmed mean in milliseconds. The engine's timing slot is held for all
// three runs so concurrent work cannot distort the measurement.
func (e *Engine) Measure(ctx context.Context, query string) (float64, error) {
	release, err := e.exec.AcquireTiming(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	var kept float64
	for run := 0; run < TotalRuns; run++ {
		start := time.Now()
		if err := e.drain(ctx, query); err != nil {
			return 0, err
		}
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		if run > 0 {
			kept += elapsed
		}
	}
	return kept / float64(TotalRuns-1), nil
}

// drain executes the statement and consumes every row, so timing covers
// full result production.
func (e *Engine) drain(ctx context.Context, query string) error {
	rows, err := e.exec.QueryRows(ctx, query)
	if err != nil {
		return e.classifyErr(err)
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
	return e.classifyErr(rows.Err())
}

func (e *Engine) classifyErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout("benchmark run exceeded the statement deadline")
	}
	return err
}

// Compare measures a passed candidate against the already-measured
// original and attaches the immutable result. A candidate timeout or
// execution error classifies ERROR, never REGRESSION, and still yields
// a recorded result.
func (e *Engine) Compare(ctx context.Context, originalMS float64, cand *domain.Candidate) *domain.BenchmarkResult {
	res := &domain.BenchmarkResult{
		OriginalMS:    originalMS,
		RowsMatch:     true, // only validated candidates reach benchmarking
		ChecksumMatch: true,
	}

	candMS, err := e.Measure(ctx, cand.SourceSQL)
	if err != nil {
		var timeout *domain.ExecutionTimeout
		if errors.As(err, &timeout) {
			e.logger.Warn("candidate timed out during benchmark", "candidate", cand.ID)
		} else {
			e.logger.Warn("candidate errored during benchmark", "candidate", cand.ID, "error", err)
		}
		res.Classification = domain.ClassError
		cand.Result = res
		return res
	}

	res.CandidateMS = candMS
	res.Speedup, res.Classification = Classify(originalMS, candMS)
	cand.Result = res
	return res
}

// Classify buckets the speedup ratio original/candidate.
func Classify(originalMS, candidateMS float64) (float64, domain.Classification) {
	if candidateMS <= 0 {
		return 0, domain.ClassError
	}
	ratio := originalMS / candidateMS
	switch {
	case ratio >= WinMin:
		return ratio, domain.ClassWin
	case ratio >= ImprovedMin:
		return ratio, domain.ClassImproved
	case ratio >= NeutralMin:
		return ratio, domain.ClassNeutral
	default:
		return ratio, domain.ClassRegression
	}
}
