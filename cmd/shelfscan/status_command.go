package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shelfscan/internal/config"
	"shelfscan/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show detection counts by lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				health, err := st.Health(cmd.Context())
				if err != nil {
					return fmt.Errorf("read store health: %w", err)
				}
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return fmt.Errorf("read store stats: %w", err)
				}

				rows := [][]string{
					{"total", fmt.Sprintf("%d", health.Total)},
					{"pending", fmt.Sprintf("%d", health.Pending)},
					{"processing", fmt.Sprintf("%d", health.Processing)},
					{"done", fmt.Sprintf("%d", health.Done)},
					{"errored", fmt.Sprintf("%d", health.Errored)},
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable([]string{"State", "Detections"}, rows, []columnAlignment{alignLeft, alignRight}))

				for _, status := range []store.Status{store.StatusExtracting, store.StatusSearching, store.StatusPreFiltering, store.StatusVisualMatching} {
					if count := stats[status]; count > 0 {
						fmt.Fprintf(out, "  in flight: %d detection(s) %s\n", count, status)
					}
				}
				return nil
			})
		},
	}
}
