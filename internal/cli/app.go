package cli

import (
	"fmt"
	"log/slog"
	"os"

	"sqlbeam/internal/bench"
	"sqlbeam/internal/config"
	"sqlbeam/internal/dbexec"
	"sqlbeam/internal/domain"
	"sqlbeam/internal/gate"
	"sqlbeam/internal/orchestrator"
	"sqlbeam/internal/outcome"
	"sqlbeam/internal/plancost"
	"sqlbeam/internal/sqldag"
)

// app bundles the wired components behind the commands that talk to a
// live engine.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *dbexec.Engine
	hints  sqldag.SchemaHints
	log    *outcome.Log
}

// newApp loads configuration and connects to the target engine and the
// outcome log. Callers must Close the returned app.
func newApp() (*app, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	hints, err := cfg.LoadHints()
	if err != nil {
		return nil, err
	}

	engine, err := dbexec.Open(dbexec.Kind(cfg.EngineKind), cfg.EngineDSN, cfg.StatementTimeout)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}

	log, err := outcome.Open(cfg.OutcomeDBPath)
	if err != nil {
		engine.Close() //nolint:errcheck
		return nil, fmt.Errorf("open outcome log: %w", err)
	}

	return &app{cfg: cfg, logger: logger, engine: engine, hints: hints, log: log}, nil
}

func (a *app) Close() {
	a.engine.Close() //nolint:errcheck
	a.log.Close()    //nolint:errcheck
}

// orchestrator wires a session driver around the given generator.
func (a *app) orchestrator(gen domain.CandidateGenerator) *orchestrator.Orchestrator {
	parse := plancost.ParsePostgresPlan
	if a.engine.Kind() == dbexec.KindDuckDB {
		parse = plancost.ParseDuckDBProfile
	}
	return orchestrator.New(orchestrator.Deps{
		Generator: gen,
		Gate: gate.New(gate.Deps{
			Exec:   a.engine,
			Hints:  a.hints,
			Logger: a.logger,
		}),
		Bench:     bench.New(bench.Deps{Exec: a.engine, Logger: a.logger}),
		Exec:      a.engine,
		ParsePlan: parse,
		Outcomes:  a.log,
		Hints:     a.hints,
		Logger:    a.logger,
		Config: orchestrator.Config{
			WideRequests:     a.cfg.Beam.WideRequests,
			WideSynthesis:    a.cfg.Beam.WideSynthesis,
			WideCompounds:    a.cfg.Beam.WideCompounds,
			FocusedRequests:  a.cfg.Beam.FocusedRequests,
			FocusedSynthesis: a.cfg.Beam.FocusedSynthesis,
			MaxSorties:       a.cfg.Beam.MaxSorties,
			Workers:          a.cfg.Workers,
			GeneratorTimeout: a.cfg.GeneratorTimeout,
			GeneratorRPS:     a.cfg.GeneratorRPS,
			MinImprovement:   a.cfg.Beam.MinImprovement,
		},
	})
}
