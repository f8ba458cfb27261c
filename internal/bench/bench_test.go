package bench

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlbeam/internal/dbexec"
	"sqlbeam/internal/domain"
)

func testExec(t *testing.T) *dbexec.Engine {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE t (id INTEGER, v REAL)`)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, err = db.Exec(`INSERT INTO t VALUES (?, ?)`, i, float64(i)*1.5)
		require.NoError(t, err)
	}
	return dbexec.NewFromDB(db, dbexec.KindDuckDB, time.Minute)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		originalMS  float64
		candidateMS float64
		wantRatio   float64
		wantClass   domain.Classification
	}{
		{"win", 220, 200, 1.1, domain.ClassWin},
		{"big_win", 1000, 100, 10, domain.ClassWin},
		{"improved", 107, 100, 1.07, domain.ClassImproved},
		{"improved_high", 109, 100, 1.09, domain.ClassImproved},
		{"neutral", 100, 100, 1.0, domain.ClassNeutral},
		{"neutral_low", 95, 100, 0.95, domain.ClassNeutral},
		{"regression", 94, 100, 0.94, domain.ClassRegression},
		{"zero_candidate", 100, 0, 0, domain.ClassError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ratio, class := Classify(tc.originalMS, tc.candidateMS)
			assert.InDelta(t, tc.wantRatio, ratio, 1e-9)
			assert.Equal(t, tc.wantClass, class)
		})
	}
}

func TestMeasure(t *testing.T) {
	e := New(Deps{Exec: testExec(t)})
	ms, err := e.Measure(context.Background(), "SELECT id, v FROM t WHERE v > 10")
	require.NoError(t, err)
	assert.Greater(t, ms, 0.0)
}

func TestMeasure_ErrorSurfaces(t *testing.T) {
	e := New(Deps{Exec: testExec(t)})
	_, err := e.Measure(context.Background(), "SELECT nope FROM missing")
	assert.Error(t, err)
}

func TestCompare_SelfIsNeutral(t *testing.T) {
	// A statement compared against its own fresh measurement must classify
	// NEUTRAL, with rare scheduler noise at worst reaching the adjacent
	// buckets.
	exec := testExec(t)
	e := New(Deps{Exec: exec})
	query := "SELECT id, v FROM t WHERE v > 10"

	originalMS, err := e.Measure(context.Background(), query)
	require.NoError(t, err)

	cand := &domain.Candidate{ID: "self", SourceSQL: query, ValidationState: domain.ValidationPassed}
	res := e.Compare(context.Background(), originalMS, cand)

	require.NotNil(t, cand.Result)
	assert.Equal(t, originalMS, res.OriginalMS)
	assert.True(t, res.RowsMatch)
	assert.True(t, res.ChecksumMatch)
	assert.NotEqual(t, domain.ClassError, res.Classification)
}

func TestCompare_ErrorClassifiesError(t *testing.T) {
	e := New(Deps{Exec: testExec(t)})
	cand := &domain.Candidate{ID: "bad", SourceSQL: "SELECT nope FROM missing"}

	res := e.Compare(context.Background(), 100, cand)
	require.NotNil(t, res)
	assert.Equal(t, domain.ClassError, res.Classification)
	assert.False(t, res.Usable(), "an ERROR result never participates in winner selection")
	assert.Same(t, res, cand.Result)
}

func TestCompare_TimeoutClassifiesError(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE t (id INTEGER)`)
	require.NoError(t, err)

	// A nanosecond statement deadline forces DeadlineExceeded on any query.
	exec := dbexec.NewFromDB(db, dbexec.KindDuckDB, time.Nanosecond)
	e := New(Deps{Exec: exec})

	cand := &domain.Candidate{ID: "slow", SourceSQL: "SELECT id FROM t"}
	res := e.Compare(context.Background(), 100, cand)
	assert.Equal(t, domain.ClassError, res.Classification)
}
