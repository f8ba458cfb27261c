package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sqlbeam/internal/config"
	"sqlbeam/internal/sqldag"
)

func newDagCmd() *cobra.Command {
	var hintsFile string

	cmd := &cobra.Command{
		Use:   "dag <query.sql>",
		Short: "Parse a query and print its dependency graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read query: %w", err)
			}
			cfg := &config.Config{HintsFile: hintsFile}
			hints, err := cfg.LoadHints()
			if err != nil {
				return err
			}
			dag, err := sqldag.Build(string(sql), hints)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderDag(dag))
			return nil
		},
	}

	cmd.Flags().StringVar(&hintsFile, "hints", "", "YAML file mapping table names to column lists")
	return cmd
}
