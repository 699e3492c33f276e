package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shelfscan/internal/config"
	"shelfscan/internal/store"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [detection-id]...",
		Short: "Reset errored detections to pending",
		Long:  "Reset errored detections to pending so the next run reprocesses them. Without arguments every errored detection is requeued.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid detection id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				requeued, err := st.RetryErrored(cmd.Context(), ids...)
				if err != nil {
					return fmt.Errorf("requeue errored detections: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d detection(s)\n", requeued)
				return nil
			})
		},
	}
}
