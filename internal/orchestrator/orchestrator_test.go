package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlbeam/internal/bench"
	"sqlbeam/internal/dbexec"
	"sqlbeam/internal/domain"
	"sqlbeam/internal/gate"
	"sqlbeam/internal/outcome"
)

const testQuery = "SELECT id, v FROM t WHERE v > 10"

// scriptGen answers generator calls from a scripted function and records
// every context it saw.
type scriptGen struct {
	mu    sync.Mutex
	calls []domain.GeneratorContext
	fn    func(gc domain.GeneratorContext, n int) ([]domain.CandidateOutput, error)
}

func (g *scriptGen) Generate(_ context.Context, gc domain.GeneratorContext, n int) ([]domain.CandidateOutput, error) {
	g.mu.Lock()
	g.calls = append(g.calls, gc)
	g.mu.Unlock()
	return g.fn(gc, n)
}

func (g *scriptGen) contexts() []domain.GeneratorContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.GeneratorContext(nil), g.calls...)
}

func testEngine(t *testing.T) *dbexec.Engine {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE t (id INTEGER, v REAL)`)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err = db.Exec(`INSERT INTO t VALUES (?, ?)`, i, float64(i))
		require.NoError(t, err)
	}
	return dbexec.NewFromDB(db, dbexec.KindDuckDB, time.Minute)
}

func testOrchestrator(t *testing.T, gen domain.CandidateGenerator) *Orchestrator {
	t.Helper()
	exec := testEngine(t)
	log, err := outcome.Open(filepath.Join(t.TempDir(), "outcomes.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return New(Deps{
		Generator: gen,
		Gate:      gate.New(gate.Deps{Exec: exec}),
		Bench:     bench.New(bench.Deps{Exec: exec}),
		Exec:      exec,
		Outcomes:  log,
		Config: Config{
			WideRequests:     2,
			FocusedRequests:  2,
			MaxSorties:       4,
			Workers:          2,
			GeneratorTimeout: 5 * time.Second,
		},
	})
}

func TestOptimize_HappyPath(t *testing.T) {
	gen := &scriptGen{fn: func(gc domain.GeneratorContext, _ int) ([]domain.CandidateOutput, error) {
		if gc.History != nil {
			return nil, nil // nothing further to synthesize
		}
		return []domain.CandidateOutput{{
			SQL:        "SELECT id, v FROM t WHERE v > 10 AND v = v",
			ProducedBy: "noop-transform",
		}}, nil
	}}

	o := testOrchestrator(t, gen)
	session, err := o.Optimize(context.Background(), "q1", testQuery, domain.StrategyWide)
	require.NoError(t, err)

	assert.Equal(t, domain.StateDone, session.State)
	require.NotEmpty(t, session.History.Sorties)

	first := session.History.Sorties[0]
	require.Len(t, first.Outcomes, 1, "identical outputs are deduplicated")
	assert.Equal(t, domain.ValidationPassed, first.Outcomes[0].ValidationState)
	assert.Equal(t, "noop-transform", first.Outcomes[0].ProducedBy)
}

func TestOptimize_ParseErrorAborts(t *testing.T) {
	gen := &scriptGen{fn: func(domain.GeneratorContext, int) ([]domain.CandidateOutput, error) {
		t.Fatal("generator must not be called for an unparseable query")
		return nil, nil
	}}

	o := testOrchestrator(t, gen)
	_, err := o.Optimize(context.Background(), "q1", "SELECT (", domain.StrategyWide)
	var parse *domain.ParseError
	require.ErrorAs(t, err, &parse)
}

func TestOptimize_StructuralRetryWithFeedback(t *testing.T) {
	gen := &scriptGen{fn: func(gc domain.GeneratorContext, _ int) ([]domain.CandidateOutput, error) {
		if gc.History != nil {
			return nil, nil
		}
		if gc.Feedback != "" {
			// Corrected attempt keeps the original literal.
			return []domain.CandidateOutput{{SQL: "SELECT id, v FROM t WHERE v > 10 AND v = v"}}, nil
		}
		// First attempt rewrites the literal and must fail structurally.
		return []domain.CandidateOutput{{SQL: "SELECT id, v FROM t WHERE v > 11"}}, nil
	}}

	o := testOrchestrator(t, gen)
	session, err := o.Optimize(context.Background(), "q1", testQuery, domain.StrategyWide)
	require.NoError(t, err)

	require.NotEmpty(t, session.History.Sorties)
	assert.Equal(t, domain.ValidationPassed, session.History.Sorties[0].Outcomes[0].ValidationState,
		"the retried candidate replaces the failed attempt")

	var feedbacks []string
	for _, gc := range gen.contexts() {
		if gc.Feedback != "" {
			feedbacks = append(feedbacks, gc.Feedback)
		}
	}
	require.NotEmpty(t, feedbacks, "retry must carry the violated rule")
	assert.Contains(t, feedbacks[0], gate.RuleLiterals)
}

func TestOptimize_SemanticRetryWithDelta(t *testing.T) {
	gen := &scriptGen{fn: func(gc domain.GeneratorContext, _ int) ([]domain.CandidateOutput, error) {
		if gc.History != nil {
			return nil, nil
		}
		if gc.Feedback != "" {
			return []domain.CandidateOutput{{SQL: "SELECT id, v FROM t WHERE v > 10 AND v = v"}}, nil
		}
		// Parses and keeps every literal but returns fewer rows.
		return []domain.CandidateOutput{{SQL: "SELECT id, v FROM t WHERE v > 10 AND id < 20"}}, nil
	}}

	o := testOrchestrator(t, gen)
	session, err := o.Optimize(context.Background(), "q1", testQuery, domain.StrategyWide)
	require.NoError(t, err)

	require.NotEmpty(t, session.History.Sorties)
	assert.Equal(t, domain.ValidationPassed, session.History.Sorties[0].Outcomes[0].ValidationState)

	var sawDelta bool
	for _, gc := range gen.contexts() {
		if strings.Contains(gc.Feedback, "row count") {
			sawDelta = true
		}
	}
	assert.True(t, sawDelta, "semantic retry must carry the observed delta")
}

func TestOptimize_TerminatesAfterRepeatedGeneratorFailure(t *testing.T) {
	gen := &scriptGen{fn: func(domain.GeneratorContext, int) ([]domain.CandidateOutput, error) {
		return nil, errors.New("upstream unavailable")
	}}

	o := testOrchestrator(t, gen)
	session, err := o.Optimize(context.Background(), "q1", testQuery, domain.StrategyWide)
	require.NoError(t, err, "generator failure ends the search, not the session")

	assert.Equal(t, domain.StateDone, session.State)
	assert.Nil(t, session.Best)
	assert.Empty(t, session.History.Sorties)
	// Two failed rounds of two requests each, then termination.
	assert.Len(t, gen.contexts(), 4)
}

func TestOptimize_TerminatesAfterRepeatedValidationFailure(t *testing.T) {
	gen := &scriptGen{fn: func(domain.GeneratorContext, int) ([]domain.CandidateOutput, error) {
		// Always drops the literal; never passes the gate, retries included.
		return []domain.CandidateOutput{{SQL: "SELECT id, v FROM t WHERE v > 99"}}, nil
	}}

	o := testOrchestrator(t, gen)
	session, err := o.Optimize(context.Background(), "q1", testQuery, domain.StrategyWide)
	require.NoError(t, err)

	assert.Nil(t, session.Best)
	require.Len(t, session.History.Sorties, 2, "two fully-failed rounds terminate the session")
	for _, sortie := range session.History.Sorties {
		for _, out := range sortie.Outcomes {
			assert.Equal(t, domain.ValidationStructuralFail, out.ValidationState)
		}
	}
}

func TestOptimize_SynthesisSeesHistory(t *testing.T) {
	gen := &scriptGen{fn: func(gc domain.GeneratorContext, _ int) ([]domain.CandidateOutput, error) {
		if gc.History != nil {
			return nil, nil
		}
		return []domain.CandidateOutput{{SQL: "SELECT id, v FROM t WHERE v > 10 AND v = v"}}, nil
	}}

	o := testOrchestrator(t, gen)
	_, err := o.Optimize(context.Background(), "q1", testQuery, domain.StrategyWide)
	require.NoError(t, err)

	var synthesis []domain.GeneratorContext
	for _, gc := range gen.contexts() {
		if gc.History != nil {
			synthesis = append(synthesis, gc)
		}
	}
	if len(synthesis) == 0 {
		t.Skip("round one produced a dominant WIN; no synthesis round was needed")
	}
	for _, gc := range synthesis {
		assert.NotEmpty(t, gc.History.Sorties, "synthesis context carries completed sorties")
	}
}

func TestOptimize_NodeMapCandidate(t *testing.T) {
	original := "WITH big AS (SELECT id, v FROM t WHERE v > 10) SELECT id, v FROM big"
	gen := &scriptGen{fn: func(gc domain.GeneratorContext, _ int) ([]domain.CandidateOutput, error) {
		if gc.History != nil || gc.Feedback != "" {
			return nil, nil
		}
		return []domain.CandidateOutput{{
			NodeSQL:    map[string]string{"big": "SELECT id, v FROM t WHERE v > 10 AND v = v"},
			ProducedBy: "node-rewrite",
		}}, nil
	}}

	o := testOrchestrator(t, gen)
	session, err := o.Optimize(context.Background(), "q1", original, domain.StrategyWide)
	require.NoError(t, err)

	require.NotEmpty(t, session.History.Sorties)
	got := session.History.Sorties[0].Outcomes[0]
	assert.Equal(t, domain.ValidationPassed, got.ValidationState)
	assert.Equal(t, "node-rewrite", got.ProducedBy)
}

func TestOptimizeBatch(t *testing.T) {
	gen := &scriptGen{fn: func(gc domain.GeneratorContext, _ int) ([]domain.CandidateOutput, error) {
		return nil, nil
	}}

	o := testOrchestrator(t, gen)
	res := o.OptimizeBatch(context.Background(), []BatchQuery{
		{ID: "hot", SQL: testQuery, EstimatedCost: 100},
		{ID: "cold", SQL: "SELECT id, v FROM t WHERE v > 50", EstimatedCost: 1},
		{ID: "broken", SQL: "SELECT (", EstimatedCost: 1},
	}, nil)

	assert.Equal(t, domain.RouteHeavy, res.Modes["hot"])
	assert.Equal(t, domain.RouteLight, res.Modes["cold"])

	require.Contains(t, res.Errors, "broken", "one broken query never aborts its siblings")
	assert.NotContains(t, res.Errors, "hot")
	assert.NotContains(t, res.Errors, "cold")

	assert.Equal(t, domain.StrategyFocused, res.Sessions["hot"].Strategy)
	assert.Equal(t, domain.StrategyWide, res.Sessions["cold"].Strategy)
	assert.Equal(t, domain.StateDone, res.Sessions["hot"].State)
}
