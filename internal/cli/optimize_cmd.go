package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sqlbeam/internal/domain"
	"sqlbeam/internal/orchestrator"
)

// batchSpec is the YAML shape accepted by --batch.
type batchSpec struct {
	Queries []struct {
		ID   string  `yaml:"id"`
		File string  `yaml:"file"`
		Cost float64 `yaml:"cost"`
		Mode string  `yaml:"mode"` // optional heavy/light override
	} `yaml:"queries"`
}

func newOptimizeCmd() *cobra.Command {
	var (
		queryID       string
		strategy      string
		candidatesDir string
		batchFile     string
	)

	cmd := &cobra.Command{
		Use:   "optimize [query.sql]",
		Short: "Search for a faster, result-identical rewrite of a query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			gen, err := newFileGenerator(candidatesDir)
			if err != nil {
				return fmt.Errorf("read candidates dir: %w", err)
			}
			orch := a.orchestrator(gen)

			if batchFile != "" {
				return runBatch(cmd, orch, batchFile)
			}
			if len(args) == 0 {
				return fmt.Errorf("either a query file or --batch is required")
			}

			sql, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read query: %w", err)
			}
			session, err := orch.Optimize(cmd.Context(), queryID, string(sql), domain.Strategy(strategy))
			if err != nil {
				return err
			}
			printSession(cmd, session)
			return nil
		},
	}

	cmd.Flags().StringVar(&queryID, "id", "q1", "query identifier for logs and the outcome log")
	cmd.Flags().StringVar(&strategy, "strategy", string(domain.StrategyWide), "beam strategy: wide or focused")
	cmd.Flags().StringVar(&candidatesDir, "candidates", "candidates", "directory of candidate .sql files")
	cmd.Flags().StringVar(&batchFile, "batch", "", "YAML batch file; routes each query by estimated cost")
	return cmd
}

func runBatch(cmd *cobra.Command, orch *orchestrator.Orchestrator, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read batch: %w", err)
	}
	var spec batchSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("parse batch: %w", err)
	}

	var (
		queries  []orchestrator.BatchQuery
		override map[string]domain.RouteMode
	)
	for _, q := range spec.Queries {
		sql, err := os.ReadFile(q.File)
		if err != nil {
			return fmt.Errorf("read %s: %w", q.File, err)
		}
		queries = append(queries, orchestrator.BatchQuery{
			ID:            q.ID,
			SQL:           string(sql),
			EstimatedCost: q.Cost,
		})
		if q.Mode != "" {
			if override == nil {
				override = map[string]domain.RouteMode{}
			}
			override[q.ID] = domain.RouteMode(q.Mode)
		}
	}

	res := orch.OptimizeBatch(cmd.Context(), queries, override)
	for _, q := range queries {
		if err := res.Errors[q.ID]; err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): error: %v\n", q.ID, res.Modes[q.ID], err)
			continue
		}
		printSession(cmd, res.Sessions[q.ID])
	}
	return nil
}

func printSession(cmd *cobra.Command, s *domain.QuerySession) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: strategy=%s sorties=%d\n", s.QueryID, s.Strategy, len(s.History.Sorties))
	for _, sortie := range s.History.Sorties {
		var counts []string
		byState := map[domain.ValidationState]int{}
		for _, o := range sortie.Outcomes {
			byState[o.ValidationState]++
		}
		for _, st := range []domain.ValidationState{
			domain.ValidationPassed,
			domain.ValidationStructuralFail,
			domain.ValidationSemanticFail,
		} {
			if n := byState[st]; n > 0 {
				counts = append(counts, fmt.Sprintf("%s=%d", st, n))
			}
		}
		fmt.Fprintf(out, "  sortie %d: candidates=%d %s\n", sortie.Index, len(sortie.Outcomes), strings.Join(counts, " "))
	}
	if s.Best == nil {
		fmt.Fprintln(out, "  no usable rewrite found; keeping the original")
		return
	}
	r := s.Best.Result
	fmt.Fprintf(out, "  winner: %s (%s) %.2fx [%s] original=%.1fms candidate=%.1fms\n",
		s.Best.ID, s.Best.ProducedBy, r.Speedup, r.Classification, r.OriginalMS, r.CandidateMS)
	fmt.Fprintln(out, s.Best.SourceSQL)
}
