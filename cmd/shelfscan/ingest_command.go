package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"shelfscan/internal/config"
	"shelfscan/internal/pipeline"
	"shelfscan/internal/store"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var retailer string

	cmd := &cobra.Command{
		Use:   "ingest <photo>...",
		Short: "Detect products in shelf photos and enqueue them for enrichment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := make([]string, 0, len(args))
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve photo path %q: %w", arg, err)
				}
				if _, err := os.Stat(abs); err != nil {
					return fmt.Errorf("photo %s: %w", arg, err)
				}
				paths = append(paths, abs)
			}

			return ctx.withLockedPipeline(true, func(cfg *config.Config, st *store.Store, p *pipeline.Pipeline, logger *slog.Logger) error {
				result, err := p.Ingest(cmd.Context(), retailer, paths...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Ingested %d photo(s): %d detection(s) enqueued, %d below confidence threshold, %d photo(s) already processed\n",
					result.Images, result.Detections, result.Filtered, result.Skipped)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&retailer, "retailer", "", "Retailer the photos were taken at, used to bias candidate scoring")
	return cmd
}
