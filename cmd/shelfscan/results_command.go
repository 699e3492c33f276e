package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"shelfscan/internal/config"
	"shelfscan/internal/store"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	var (
		detectionID int64
		state       string
	)

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show enrichment outcomes for analyzed detections",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := []store.Status{store.StatusDone, store.StatusErrored}
			if state != "" {
				status, ok := store.ParseStatus(state)
				if !ok {
					return fmt.Errorf("unknown state %q", state)
				}
				statuses = []store.Status{status}
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if detectionID > 0 {
					return printDetectionResult(cmd, st, detectionID)
				}
				return printResultsOverview(cmd, st, statuses)
			})
		},
	}

	cmd.Flags().Int64VarP(&detectionID, "detection", "d", 0, "Show candidate details for one detection")
	cmd.Flags().StringVar(&state, "state", "", "Only list detections in this state (for example done or errored)")
	return cmd
}

func printResultsOverview(cmd *cobra.Command, st *store.Store, statuses []store.Status) error {
	detections, err := st.List(cmd.Context(), statuses...)
	if err != nil {
		return fmt.Errorf("list detections: %w", err)
	}
	if len(detections) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No analyzed detections yet")
		return nil
	}

	images := make(map[int64]string)
	rows := make([][]string, 0, len(detections))
	for _, det := range detections {
		source, ok := images[det.ImageID]
		if !ok {
			img, err := st.ImageByID(cmd.Context(), det.ImageID)
			if err == nil && img != nil {
				source = filepath.Base(img.SourcePath)
			}
			images[det.ImageID] = source
		}

		outcome := det.ErrorMessage
		if det.Status == store.StatusDone {
			outcome = "no match"
			if det.SelectedCandidateID != "" {
				outcome = "matched " + det.SelectedCandidateID
			} else if !det.IsProduct {
				outcome = "not a product"
			}
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", det.ID),
			source,
			strings.TrimSpace(det.BrandName + " " + det.ProductName),
			string(det.Status),
			outcome,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Photo", "Extracted", "State", "Outcome"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))
	return nil
}

func printDetectionResult(cmd *cobra.Command, st *store.Store, detectionID int64) error {
	det, err := st.GetByID(cmd.Context(), detectionID)
	if err != nil {
		return fmt.Errorf("load detection: %w", err)
	}
	if det == nil {
		return fmt.Errorf("detection %d not found", detectionID)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Detection %d (%s)\n", det.ID, det.Status)
	fmt.Fprintf(out, "  brand: %s\n", det.BrandName)
	fmt.Fprintf(out, "  product: %s\n", det.ProductName)
	if det.Size != "" {
		fmt.Fprintf(out, "  size: %s\n", det.Size)
	}
	fmt.Fprintf(out, "  fully analyzed: %s\n", yesNo(det.FullyAnalyzed))
	if det.SelectedCandidateID != "" {
		fmt.Fprintf(out, "  selected candidate: %s\n", det.SelectedCandidateID)
	}
	if det.ErrorMessage != "" {
		fmt.Fprintf(out, "  error: %s\n", det.ErrorMessage)
	}

	for _, stage := range []store.Stage{store.StageSearch, store.StagePreFilter, store.StageVisualMatch} {
		candidates, err := st.CandidatesForStage(cmd.Context(), detectionID, stage)
		if err != nil {
			return fmt.Errorf("load %s candidates: %w", stage, err)
		}
		if len(candidates) == 0 {
			continue
		}
		rows := make([][]string, 0, len(candidates))
		for _, cand := range candidates {
			rows = append(rows, []string{
				cand.CandidateID,
				strings.TrimSpace(cand.Brand + " " + cand.Name),
				fmt.Sprintf("%.2f", cand.Score),
				string(cand.MatchStatus),
				fmt.Sprintf("%.2f", cand.VisualSimilarity),
				yesNo(cand.Selected),
			})
		}
		fmt.Fprintf(out, "\nStage %s:\n", stage)
		fmt.Fprintln(out, renderTable(
			[]string{"Candidate", "Product", "Score", "Match", "Similarity", "Selected"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
		))
	}
	return nil
}
