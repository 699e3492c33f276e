package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"shelfscan/internal/config"
	"shelfscan/internal/pipeline"
	"shelfscan/internal/store"
)

const summaryDurationUnit = 100 * time.Millisecond

func newRunCommand(ctx *commandContext) *cobra.Command {
	var retryErrored bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process every pending detection through the enrichment pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLockedPipeline(false, func(cfg *config.Config, st *store.Store, p *pipeline.Pipeline, logger *slog.Logger) error {
				out := cmd.OutOrStdout()
				if retryErrored {
					requeued, err := st.RetryErrored(cmd.Context())
					if err != nil {
						return fmt.Errorf("requeue errored detections: %w", err)
					}
					fmt.Fprintf(out, "Requeued %d errored detection(s)\n", requeued)
				}

				summary, err := p.Run(cmd.Context())
				printSummary(out, summary)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&retryErrored, "retry-errored", false, "Reset errored detections to pending before processing")
	return cmd
}

func printSummary(out io.Writer, summary pipeline.Summary) {
	rows := [][]string{
		{"total", fmt.Sprintf("%d", summary.Total)},
		{"successful", fmt.Sprintf("%d", summary.Successful)},
		{"skipped", fmt.Sprintf("%d", summary.Skipped)},
		{"errored", fmt.Sprintf("%d", summary.Errored)},
		{"duration", summary.Duration.Round(summaryDurationUnit).String()},
	}
	fmt.Fprintln(out, renderTable([]string{"Batch", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(summary.Reasons) == 0 {
		return
	}
	reasons := make([]string, 0, len(summary.Reasons))
	for reason := range summary.Reasons {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	reasonRows := make([][]string, 0, len(reasons))
	for _, reason := range reasons {
		reasonRows = append(reasonRows, []string{reason, fmt.Sprintf("%d", summary.Reasons[reason])})
	}
	fmt.Fprintln(out, renderTable([]string{"Failure", "Count"}, reasonRows, []columnAlignment{alignLeft, alignRight}))
}
