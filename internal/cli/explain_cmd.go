package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"sqlbeam/internal/dbexec"
	"sqlbeam/internal/domain"
	"sqlbeam/internal/plancost"
	"sqlbeam/internal/sqldag"
)

func newExplainCmd() *cobra.Command {
	var (
		analyze bool
		memory  bool
	)

	cmd := &cobra.Command{
		Use:   "explain <query.sql>",
		Short: "Capture a query's plan and report cardinality drift per node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read query: %w", err)
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			dag, err := sqldag.Build(string(sql), a.hints)
			if err != nil {
				return err
			}
			raw, err := a.engine.Explain(cmd.Context(), string(sql), analyze)
			if err != nil {
				return fmt.Errorf("explain: %w", err)
			}

			parse := plancost.ParsePostgresPlan
			if a.engine.Kind() == dbexec.KindDuckDB {
				parse = plancost.ParseDuckDBProfile
			}
			out, err := parse(raw)
			if err != nil {
				return fmt.Errorf("parse plan: %w", err)
			}
			if !analyze {
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}

			analyzer := &plancost.Analyzer{}
			signals := analyzer.Analyze(out, dag)
			if len(signals) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no cardinality signals")
				return nil
			}
			for _, s := range signals {
				q := "inf"
				if s.Direction != domain.DirectionZero {
					q = fmt.Sprintf("%.2f", s.QError)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-10s q=%-8s %-5s %s\n",
					s.NodeID, s.Locus, q, s.Direction, s.Severity)
			}
			if memory {
				diags, err := a.engine.MemoryDiagnostics(cmd.Context())
				if err != nil {
					return fmt.Errorf("memory diagnostics: %w", err)
				}
				tags := make([]string, 0, len(diags))
				for tag := range diags {
					tags = append(tags, tag)
				}
				sort.Strings(tags)
				for _, tag := range tags {
					fmt.Fprintf(cmd.OutOrStdout(), "mem %s=%s\n", tag, diags[tag])
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&analyze, "analyze", true, "execute the query to collect actual row counts")
	cmd.Flags().BoolVar(&memory, "memory", false, "report per-tag engine memory usage (DuckDB only)")
	return cmd
}
