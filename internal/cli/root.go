// Package cli implements the sqlbeam command tree.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sqlbeam/internal/config"
)

var version = "dev"

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:           "sqlbeam",
		Short:         "SQL rewrite search and verification",
		Long:          "Discovers faster rewrites of analytical queries and verifies they return identical results.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			return bindFlagEnv(cmd.Flags())
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file")

	rootCmd.AddCommand(
		newOptimizeCmd(),
		newDagCmd(),
		newExplainCmd(),
		newRouteCmd(),
		newOutcomesCmd(),
	)
	return rootCmd
}

// bindFlagEnv fills flags not set on the command line from
// SQLBEAM_<NAME> environment variables, dashes mapped to underscores.
func bindFlagEnv(fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Changed {
			return
		}
		key := "SQLBEAM_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(key); ok {
			bindErr = fs.Set(f.Name, v)
		}
	})
	return bindErr
}
