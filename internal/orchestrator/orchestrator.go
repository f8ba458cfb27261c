// Package orchestrator drives the per-query optimization loop: generate
// candidates, gate them, benchmark the survivors, and optionally
// synthesize compound candidates from the round's outcomes. Only the
// orchestrator decides session-level termination; the gate and benchmark
// engine return structured outcomes instead of raising.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"sqlbeam/internal/bench"
	"sqlbeam/internal/domain"
	"sqlbeam/internal/gate"
	"sqlbeam/internal/plancost"
	"sqlbeam/internal/sqldag"
)

// Config bounds one session's search.
type Config struct {
	WideRequests     int
	WideSynthesis    int
	WideCompounds    int
	FocusedRequests  int
	FocusedSynthesis int

	MaxSorties       int           // round budget per session
	Workers          int           // worker pool size for fan-out
	GeneratorTimeout time.Duration // per generator call
	GeneratorRPS     float64       // generator call pacing, 0 = unlimited
	MinImprovement   float64       // negligible-margin termination threshold
}

func (c Config) withDefaults() Config {
	if c.WideRequests <= 0 {
		c.WideRequests = DefaultWideRequests
	}
	if c.WideSynthesis <= 0 {
		c.WideSynthesis = DefaultWideSynthesis
	}
	if c.WideCompounds <= 0 {
		c.WideCompounds = DefaultWideCompounds
	}
	if c.FocusedRequests <= 0 {
		c.FocusedRequests = DefaultFocusedRequests
	}
	if c.FocusedSynthesis <= 0 {
		c.FocusedSynthesis = DefaultFocusedSynthesis
	}
	if c.MaxSorties <= 0 {
		c.MaxSorties = 6
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.GeneratorTimeout <= 0 {
		c.GeneratorTimeout = 2 * time.Minute
	}
	if c.MinImprovement <= 0 {
		c.MinImprovement = DefaultMinImprovement
	}
	return c
}

// Deps holds dependencies for the Orchestrator.
type Deps struct {
	Generator domain.CandidateGenerator
	Gate      *gate.Gate
	Bench     *bench.Engine
	Exec      domain.DatabaseExecutor
	Analyzer  *plancost.Analyzer
	ParsePlan func([]byte) (*plancost.ExplainOutput, error)
	Outcomes  domain.OutcomeWriter
	Hints     sqldag.SchemaHints
	Examples  []domain.RewriteExample
	Gaps      []domain.GapHint
	Logger    *slog.Logger
	Config    Config
}

// Orchestrator runs optimization sessions. Safe for concurrent use
// across queries; sorties within one query are sequential.
type Orchestrator struct {
	gen       domain.CandidateGenerator
	gate      *gate.Gate
	bench     *bench.Engine
	exec      domain.DatabaseExecutor
	analyzer  *plancost.Analyzer
	parsePlan func([]byte) (*plancost.ExplainOutput, error)
	outcomes  domain.OutcomeWriter
	hints     sqldag.SchemaHints
	examples  []domain.RewriteExample
	gaps      []domain.GapHint
	logger    *slog.Logger
	limiter   *rate.Limiter
	cfg       Config
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	cfg := deps.Config.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Analyzer == nil {
		deps.Analyzer = &plancost.Analyzer{}
	}
	if deps.ParsePlan == nil {
		deps.ParsePlan = plancost.ParsePostgresPlan
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.GeneratorRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GeneratorRPS), 1)
	}
	return &Orchestrator{
		gen:       deps.Generator,
		gate:      deps.Gate,
		bench:     deps.Bench,
		exec:      deps.Exec,
		analyzer:  deps.Analyzer,
		parsePlan: deps.ParsePlan,
		outcomes:  deps.Outcomes,
		hints:     deps.Hints,
		examples:  deps.Examples,
		gaps:      deps.Gaps,
		logger:    deps.Logger,
		limiter:   limiter,
		cfg:       cfg,
	}
}

// run carries one session's per-query state through its sorties.
type run struct {
	o          *Orchestrator
	session    *domain.QuerySession
	prof       *gate.OriginalProfile
	originalMS float64
}

// Optimize executes the full loop for one query. A ParseError aborts the
// session before any sortie; afterwards the session always completes with
// its best-so-far candidate (possibly none).
func (o *Orchestrator) Optimize(ctx context.Context, queryID, sql string, strategy domain.Strategy) (*domain.QuerySession, error) {
	session := &domain.QuerySession{
		QueryID:     queryID,
		OriginalSQL: sql,
		Strategy:    strategy,
		State:       domain.StateNew,
	}

	dag, err := sqldag.Build(sql, o.hints)
	if err != nil {
		o.logger.Error("query does not parse", "query", queryID, "error", err)
		return session, err
	}
	session.Dag = dag

	if explainJSON, err := o.exec.Explain(ctx, sql, true); err != nil {
		o.logger.Warn("plan capture failed, continuing without signals", "query", queryID, "error", err)
	} else if parsed, err := o.parsePlan(explainJSON); err != nil {
		o.logger.Warn("plan parse failed, continuing without signals", "query", queryID, "error", err)
	} else {
		session.Signals = o.analyzer.Analyze(parsed, dag)
	}

	prof, err := o.gate.ProfileOriginal(ctx, sql, dag)
	if err != nil {
		return session, err
	}

	r := &run{o: o, session: session, prof: prof}
	if err := r.measureOriginal(ctx); err != nil {
		return session, err
	}

	o.drive(ctx, r)
	session.State = domain.StateDone
	return session, nil
}

// measureOriginal times the original once per session. A timeout on the
// original is not fatal: the timeout bound stands in as its cost.
func (r *run) measureOriginal(ctx context.Context) error {
	ms, err := r.o.bench.Measure(ctx, r.session.OriginalSQL)
	if err != nil {
		var timeout *domain.ExecutionTimeout
		if errors.As(err, &timeout) {
			r.originalMS = float64(r.o.exec.StatementTimeout().Milliseconds())
			r.o.logger.Warn("original timed out; using the timeout bound as baseline",
				"query", r.session.QueryID, "baseline_ms", r.originalMS)
			return nil
		}
		return err
	}
	r.originalMS = ms
	return nil
}

// drive loops sorties until a termination condition fires.
func (o *Orchestrator) drive(ctx context.Context, r *run) {
	session := r.session
	synthRound := 0
	consecutiveGenFailed := 0
	consecutiveAllFailed := 0

	for sortieIdx := 0; sortieIdx < o.cfg.MaxSorties; sortieIdx++ {
		if ctx.Err() != nil {
			return
		}
		session.State = domain.StateGenerating
		plan := o.planRound(session, synthRound)

		cands, failed := r.generateRound(ctx, plan)
		if failed == len(plan.targets) {
			consecutiveGenFailed++
			o.logger.Warn("every generator request in the round failed",
				"query", session.QueryID, "sortie", sortieIdx, "consecutive", consecutiveGenFailed)
			if consecutiveGenFailed >= 2 {
				return // no improvement found
			}
			continue
		}
		consecutiveGenFailed = 0
		if len(cands) == 0 {
			continue
		}

		session.State = domain.StateValidating
		r.validateRound(ctx, cands, plan)

		session.State = domain.StateBenchmarking
		passed := 0
		for _, c := range cands {
			if c.ValidationState == domain.ValidationPassed {
				passed++
			}
		}
		r.benchmarkRound(ctx, cands)
		r.recordOutcomes(ctx, sortieIdx, cands)

		sortie := buildSortie(sortieIdx, cands)
		roundBest := SelectWinner(cands)
		sortie.Best = roundBest
		session.History = session.History.Append(sortie)

		improved := betterThan(roundBest, session.Best, o.cfg.MinImprovement)
		if roundBest != nil && (session.Best == nil || roundBest.Result.Speedup > session.Best.Result.Speedup) {
			session.Best = roundBest
		}

		if passed == 0 {
			consecutiveAllFailed++
			if consecutiveAllFailed >= 2 {
				o.logger.Info("two consecutive fully-failed validation rounds",
					"query", session.QueryID, "sortie", sortieIdx)
				return
			}
		} else {
			consecutiveAllFailed = 0
		}

		if plan.synthesis && !improved {
			return // synthesis no longer helps
		}
		if synthRound >= o.maxSynthesisRounds(session.Strategy) {
			return // synthesis budget exhausted
		}
		if session.Strategy == domain.StrategyWide && session.Best != nil &&
			session.Best.Result.Classification == domain.ClassWin {
			return // a candidate dominates; no synthesis needed
		}

		session.State = domain.StateSynthesizing
		synthRound++
	}
}

// generateRound fans the round's requests out under the worker pool. Each
// call is an independent, cancellable unit; a call that errors or exceeds
// its deadline contributes zero candidates.
func (r *run) generateRound(ctx context.Context, plan roundPlan) ([]*domain.Candidate, int) {
	var (
		mu     sync.Mutex
		cands  []*domain.Candidate
		failed int
		seen   = map[string]struct{}{sqldag.Normalize(r.session.OriginalSQL): {}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.cfg.Workers)
	for _, target := range plan.targets {
		g.Go(func() error {
			outs, err := r.o.callGenerator(gctx, r.buildContext(target, plan.synthesis), plan.perCall)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return nil
			}
			for _, out := range outs {
				cand, err := domain.NewCandidate(out, r.session.Dag)
				if err != nil {
					r.o.logger.Debug("discarding malformed candidate output",
						"query", r.session.QueryID, "error", err)
					continue
				}
				key := sqldag.Normalize(cand.SourceSQL)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				cands = append(cands, cand)
			}
			return nil
		})
	}
	_ = g.Wait()
	return cands, failed
}

// callGenerator applies pacing and the per-call deadline around one
// generator request.
func (o *Orchestrator) callGenerator(ctx context.Context, gc domain.GeneratorContext, n int) ([]domain.CandidateOutput, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, o.cfg.GeneratorTimeout)
	defer cancel()

	outs, err := o.gen.Generate(cctx, gc, n)
	if err != nil {
		return nil, domain.ErrGenerator("generator call failed: %v", err)
	}
	if len(outs) > n {
		outs = outs[:n]
	}
	return outs, nil
}

func (r *run) callGenerator(ctx context.Context, gc domain.GeneratorContext, n int) ([]domain.CandidateOutput, error) {
	return r.o.callGenerator(ctx, gc, n)
}

// buildContext assembles one generator request's context. Synthesis
// requests carry an immutable copy of the full history.
func (r *run) buildContext(target string, synthesis bool) domain.GeneratorContext {
	gc := domain.GeneratorContext{
		OriginalSQL: r.session.OriginalSQL,
		Target:      target,
		Examples:    r.o.examples,
		Gaps:        r.o.gaps,
	}
	for _, n := range r.session.Dag.Nodes {
		summary := domain.DagNodeSummary{
			ID:           n.ID,
			Role:         n.Role,
			Columns:      n.OutputColumns,
			IsCorrelated: n.IsCorrelated,
		}
		for t := range n.ReferencedTables {
			summary.Tables = append(summary.Tables, t)
		}
		sort.Strings(summary.Tables)
		gc.Nodes = append(gc.Nodes, summary)
	}
	for _, s := range r.session.Signals {
		gc.Signals = append(gc.Signals, domain.PlanSignalSummary{
			NodeID:    s.NodeID,
			Locus:     s.Locus,
			QError:    s.QError,
			Direction: s.Direction,
			Severity:  s.Severity,
		})
	}
	if synthesis {
		history := domain.SortieHistory{
			Sorties: append([]domain.Sortie(nil), r.session.History.Sorties...),
		}
		gc.History = &history
	}
	return gc
}

// validateRound gates every candidate concurrently. Retries replace the
// candidate's prior attempt and never run in parallel with it.
func (r *run) validateRound(ctx context.Context, cands []*domain.Candidate, plan roundPlan) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.cfg.Workers)
	for i, cand := range cands {
		target := plan.targets[min(i, len(plan.targets)-1)]
		g.Go(func() error {
			r.validate(gctx, cand, target)
			return nil
		})
	}
	_ = g.Wait()
}

// validate walks one candidate through the two-stage gate with its
// one-retry-per-stage budget.
func (r *run) validate(ctx context.Context, cand *domain.Candidate, target string) {
	if serr := r.o.gate.Structural(cand, r.prof); serr != nil {
		if !r.regenerate(ctx, cand, target, serr.Rule+": "+serr.Message) {
			r.o.gate.MarkStructuralFail(cand)
			return
		}
		if serr = r.o.gate.Structural(cand, r.prof); serr != nil {
			r.o.gate.MarkStructuralFail(cand)
			return
		}
	}

	verr, execErr := r.o.gate.Semantic(ctx, cand, r.prof)
	if execErr != nil {
		// Execution failure (including timeout) means the candidate cannot be
		// verified and is dropped without a retry.
		r.o.logger.Debug("candidate failed during semantic execution",
			"candidate", cand.ID, "error", execErr)
		r.o.gate.MarkSemanticFail(cand)
		return
	}
	if verr != nil {
		if !r.regenerate(ctx, cand, target, "result delta: "+verr.Delta) {
			r.o.gate.MarkSemanticFail(cand)
			return
		}
		// The replacement must still clear the structural rules, but it
		// gets no further retries at either stage.
		if serr := r.o.gate.Structural(cand, r.prof); serr != nil {
			r.o.gate.MarkStructuralFail(cand)
			return
		}
		verr, execErr = r.o.gate.Semantic(ctx, cand, r.prof)
		if verr != nil || execErr != nil {
			r.o.gate.MarkSemanticFail(cand)
			return
		}
	}
	r.o.gate.MarkPassed(cand)
}

// regenerate asks the generator for a corrected attempt, carrying the
// violated rule or observed delta as feedback. The replacement overwrites
// the candidate's SQL in place.
func (r *run) regenerate(ctx context.Context, cand *domain.Candidate, target, feedback string) bool {
	gc := r.buildContext(target, false)
	gc.Feedback = feedback
	outs, err := r.callGenerator(ctx, gc, 1)
	if err != nil || len(outs) == 0 {
		return false
	}
	replacement, err := domain.NewCandidate(outs[0], r.session.Dag)
	if err != nil {
		return false
	}
	cand.SourceSQL = replacement.SourceSQL
	return true
}

// benchmarkRound measures every passed candidate. Timed runs serialize on
// the engine's timing slot inside Measure, so concurrency here only
// overlaps queue waits.
func (r *run) benchmarkRound(ctx context.Context, cands []*domain.Candidate) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.cfg.Workers)
	for _, cand := range cands {
		if cand.ValidationState != domain.ValidationPassed {
			continue
		}
		g.Go(func() error {
			r.o.bench.Compare(gctx, r.originalMS, cand)
			return nil
		})
	}
	_ = g.Wait()
}

// recordOutcomes appends one record per completed candidate.
func (r *run) recordOutcomes(ctx context.Context, sortieIdx int, cands []*domain.Candidate) {
	if r.o.outcomes == nil {
		return
	}
	for _, c := range cands {
		rec := domain.OutcomeRecord{
			QueryID:         r.session.QueryID,
			SortieIndex:     sortieIdx,
			CandidateID:     c.ID,
			ProducedBy:      c.ProducedBy,
			Strategy:        r.session.Strategy,
			ValidationState: c.ValidationState,
			Result:          c.Result,
			RecordedAt:      time.Now().UTC(),
		}
		if err := r.o.outcomes.Append(ctx, rec); err != nil {
			r.o.logger.Warn("outcome append failed", "candidate", c.ID, "error", err)
		}
	}
}

func buildSortie(idx int, cands []*domain.Candidate) domain.Sortie {
	s := domain.Sortie{Index: idx}
	for _, c := range cands {
		out := domain.SortieOutcome{
			CandidateID:     c.ID,
			ProducedBy:      c.ProducedBy,
			ValidationState: c.ValidationState,
		}
		if c.Result != nil {
			out.Classification = c.Result.Classification
			out.Speedup = c.Result.Speedup
		}
		s.Outcomes = append(s.Outcomes, out)
	}
	return s
}
