package outcome

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlbeam/internal/domain"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	log, err := Open(filepath.Join(t.TempDir(), "outcomes.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestLog_AppendAndTail(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	recordedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	benchmarked := domain.OutcomeRecord{
		QueryID:         "q1",
		SortieIndex:     0,
		CandidateID:     "cand-a",
		ProducedBy:      "predicate-pushdown",
		Strategy:        domain.StrategyWide,
		ValidationState: domain.ValidationPassed,
		Result: &domain.BenchmarkResult{
			OriginalMS:     120.5,
			CandidateMS:    80.0,
			Speedup:        1.50625,
			Classification: domain.ClassWin,
			RowsMatch:      true,
			ChecksumMatch:  true,
		},
		RecordedAt: recordedAt,
	}
	failed := domain.OutcomeRecord{
		QueryID:         "q1",
		SortieIndex:     0,
		CandidateID:     "cand-b",
		Strategy:        domain.StrategyWide,
		ValidationState: domain.ValidationSemanticFail,
		RecordedAt:      recordedAt.Add(time.Second),
	}

	require.NoError(t, log.Append(ctx, benchmarked))
	require.NoError(t, log.Append(ctx, failed))

	recs, err := log.Tail(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Newest first.
	assert.Equal(t, "cand-b", recs[0].CandidateID)
	assert.Nil(t, recs[0].Result, "a failed candidate has no benchmark result")
	assert.Equal(t, domain.ValidationSemanticFail, recs[0].ValidationState)

	got := recs[1]
	assert.Equal(t, "cand-a", got.CandidateID)
	assert.Equal(t, "predicate-pushdown", got.ProducedBy)
	assert.Equal(t, domain.StrategyWide, got.Strategy)
	require.NotNil(t, got.Result)
	assert.Equal(t, domain.ClassWin, got.Result.Classification)
	assert.InDelta(t, 1.50625, got.Result.Speedup, 1e-9)
	assert.True(t, got.Result.RowsMatch)
	assert.True(t, got.RecordedAt.Equal(recordedAt))
}

func TestLog_TailLimit(t *testing.T) {
	log := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append(ctx, domain.OutcomeRecord{
			QueryID:         "q1",
			SortieIndex:     i,
			CandidateID:     "c",
			Strategy:        domain.StrategyFocused,
			ValidationState: domain.ValidationStructuralFail,
		}))
	}

	recs, err := log.Tail(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 4, recs[0].SortieIndex)
	assert.Equal(t, 2, recs[2].SortieIndex)
}
