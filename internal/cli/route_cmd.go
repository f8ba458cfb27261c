package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sqlbeam/internal/router"
)

func newRouteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route <costs.yaml>",
		Short: "Classify a batch of queries into heavy and light buckets",
		Long:  "Reads a YAML map of query id to estimated cost and prints each query's route mode and strategy.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read costs: %w", err)
			}
			var costs map[string]float64
			if err := yaml.Unmarshal(data, &costs); err != nil {
				return fmt.Errorf("parse costs: %w", err)
			}

			modes := router.Classify(costs, nil)
			ids := make([]string, 0, len(modes))
			for id := range modes {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool {
				if costs[ids[i]] != costs[ids[j]] {
					return costs[ids[i]] > costs[ids[j]]
				}
				return ids[i] < ids[j]
			})
			for _, id := range ids {
				mode := modes[id]
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s cost=%-12.2f %-6s %s\n",
					id, costs[id], mode, router.ModeStrategy(mode))
			}
			return nil
		},
	}
	return cmd
}
