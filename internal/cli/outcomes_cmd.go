package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sqlbeam/internal/config"
	"sqlbeam/internal/outcome"
)

func newOutcomesCmd() *cobra.Command {
	var (
		dbPath string
		n      int
	)

	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Show the most recent candidate outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				cfg, err := config.LoadFromEnv()
				if err != nil {
					return err
				}
				dbPath = cfg.OutcomeDBPath
			}
			log, err := outcome.Open(dbPath)
			if err != nil {
				return fmt.Errorf("open outcome log: %w", err)
			}
			defer log.Close() //nolint:errcheck

			recs, err := log.Tail(cmd.Context(), n)
			if err != nil {
				return err
			}
			for _, r := range recs {
				line := fmt.Sprintf("%s %-12s sortie=%d %-10s %-16s %s",
					r.RecordedAt.Format("2006-01-02 15:04:05"),
					r.QueryID, r.SortieIndex, r.ProducedBy, r.ValidationState, r.CandidateID)
				if r.Result != nil {
					line += fmt.Sprintf(" %.2fx %s", r.Result.Speedup, r.Result.Classification)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "outcome log path (defaults to OUTCOME_DB_PATH)")
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of records to show")
	return cmd
}
