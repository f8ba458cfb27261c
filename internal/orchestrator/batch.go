package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"sqlbeam/internal/domain"
	"sqlbeam/internal/router"
)

// BatchQuery is one member of a batch optimization request.
type BatchQuery struct {
	ID            string
	SQL           string
	EstimatedCost float64
}

// BatchResult collects the per-query sessions of one batch run. Errors
// maps query ids to the unrecoverable error that aborted that query's
// session, if any.
type BatchResult struct {
	Modes    map[string]domain.RouteMode
	Sessions map[string]*domain.QuerySession
	Errors   map[string]error
}

// OptimizeBatch routes the batch by estimated cost, then runs every
// query's session concurrently under the worker limit. One query failing
// never aborts its siblings; its error lands in BatchResult.Errors.
func (o *Orchestrator) OptimizeBatch(ctx context.Context, queries []BatchQuery, override map[string]domain.RouteMode) *BatchResult {
	costs := make(map[string]float64, len(queries))
	for _, q := range queries {
		costs[q.ID] = q.EstimatedCost
	}
	modes := router.Classify(costs, override)

	res := &BatchResult{
		Modes:    modes,
		Sessions: make(map[string]*domain.QuerySession, len(queries)),
		Errors:   make(map[string]error),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, q := range queries {
		g.Go(func() error {
			strategy := router.ModeStrategy(modes[q.ID])
			o.logger.Info("starting session", "query", q.ID, "mode", modes[q.ID], "strategy", strategy)
			session, err := o.Optimize(gctx, q.ID, q.SQL, strategy)
			mu.Lock()
			res.Sessions[q.ID] = session
			if err != nil {
				res.Errors[q.ID] = err
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return res
}
