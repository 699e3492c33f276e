package store_test

import (
	"context"
	"fmt"
	"testing"

	"shelfscan/internal/store"
	"shelfscan/internal/testsupport"
)

func TestOpenCreatesSchemaAndInsertsRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	img := testsupport.NewImage(t, st, "/photos/shelf-001.jpg")
	if img.ID == 0 {
		t.Fatal("expected image ID to be assigned")
	}

	det, err := st.NewDetection(ctx, img.ID, store.Box{X1: 120, Y1: 80, X2: 400, Y2: 600}, "product", 0.92)
	if err != nil {
		t.Fatalf("NewDetection failed: %v", err)
	}
	if det.ID == 0 {
		t.Fatal("expected detection ID to be assigned")
	}
	if det.Status != store.StatusPending {
		t.Fatalf("expected pending status, got %s", det.Status)
	}
	if det.Box.X2 != 400 {
		t.Fatalf("unexpected box round-trip: %#v", det.Box)
	}

	fetched, err := st.GetByID(ctx, det.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Confidence != 0.92 {
		t.Fatalf("unexpected fetched detection: %#v", fetched)
	}
}

func TestReingestingSamePathReturnsExistingImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first := testsupport.NewImage(t, st, "/photos/shelf-001.jpg")
	second := testsupport.NewImage(t, st, "/photos/shelf-001.jpg")
	if first.ID != second.ID {
		t.Fatalf("expected same image row, got %d and %d", first.ID, second.ID)
	}

	// Re-ingesting with a retailer hint attaches it to the existing row; a
	// later pass without one leaves it alone.
	ctx := context.Background()
	hinted, err := st.NewImage(ctx, "/photos/shelf-001.jpg", "MegaMart")
	if err != nil {
		t.Fatalf("NewImage with retailer failed: %v", err)
	}
	if hinted.ID != first.ID || hinted.Retailer != "MegaMart" {
		t.Fatalf("retailer hint not recorded: %+v", hinted)
	}
	unhinted, err := st.NewImage(ctx, "/photos/shelf-001.jpg", "")
	if err != nil {
		t.Fatalf("NewImage without retailer failed: %v", err)
	}
	if unhinted.Retailer != "MegaMart" {
		t.Fatalf("empty retailer must not erase the hint, got %q", unhinted.Retailer)
	}
}

func TestTransitionStatusIsAtomic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	img := testsupport.NewImage(t, st, "/photos/shelf-002.jpg")
	det := testsupport.NewDetection(t, st, img.ID, 0.8)

	ok, err := st.TransitionStatus(ctx, det.ID, store.StatusPending, store.StatusExtracting)
	if err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first transition to claim the detection")
	}

	ok, err = st.TransitionStatus(ctx, det.ID, store.StatusPending, store.StatusExtracting)
	if err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if ok {
		t.Fatal("expected second transition from pending to lose the race")
	}

	fetched, err := st.GetByID(ctx, det.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != store.StatusExtracting {
		t.Fatalf("expected extracting status, got %s", fetched.Status)
	}
}

func TestUpdatePersistsExtractionFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	img := testsupport.NewImage(t, st, "/photos/shelf-003.jpg")
	det := testsupport.NewDetection(t, st, img.ID, 0.7)

	det.BrandName = "Acme"
	det.ProductName = "Tomato Soup"
	det.Category = "canned goods"
	det.Size = "400g"
	det.IsProduct = true
	det.DetailsVisible = true
	det.FieldConfidenceJSON = `{"brand_name":0.95}`
	if err := st.Update(ctx, det); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	fetched, err := st.GetByID(ctx, det.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.BrandName != "Acme" || fetched.ProductName != "Tomato Soup" {
		t.Fatalf("unexpected extraction fields: %#v", fetched)
	}
	if !fetched.DetailsVisible {
		t.Fatal("expected details_visible to persist")
	}
}

func TestUpsertCandidateKeepsStrongerVerdict(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	img := testsupport.NewImage(t, st, "/photos/shelf-004.jpg")
	det := testsupport.NewDetection(t, st, img.ID, 0.85)

	// A retried stage must never downgrade a row; the SQL upsert has to agree
	// with StrongerMatch for every ordering of verdicts.
	pairs := []struct {
		first, second store.MatchStatus
	}{
		{store.MatchIdentical, store.MatchSimilar},
		{store.MatchSimilar, store.MatchIdentical},
		{store.MatchNone, store.MatchPending},
		{store.MatchPending, store.MatchNone},
	}
	for i, pair := range pairs {
		candidateID := fmt.Sprintf("sku-10%d", i)
		for _, verdict := range []store.MatchStatus{pair.first, pair.second} {
			cand := &store.CandidateResult{
				DetectionID: det.ID,
				CandidateID: candidateID,
				Name:        "Acme Tomato Soup 400g",
				Brand:       "Acme",
				Stage:       store.StageVisualMatch,
				MatchStatus: verdict,
			}
			if err := st.UpsertCandidateResult(ctx, cand); err != nil {
				t.Fatalf("UpsertCandidateResult failed: %v", err)
			}
		}
	}

	candidates, err := st.CandidatesForStage(ctx, det.ID, store.StageVisualMatch)
	if err != nil {
		t.Fatalf("CandidatesForStage failed: %v", err)
	}
	if len(candidates) != len(pairs) {
		t.Fatalf("expected %d candidate rows, got %d", len(pairs), len(candidates))
	}
	byID := make(map[string]store.MatchStatus, len(candidates))
	for _, cand := range candidates {
		byID[cand.CandidateID] = cand.MatchStatus
	}
	for i, pair := range pairs {
		candidateID := fmt.Sprintf("sku-10%d", i)
		want := store.StrongerMatch(pair.first, pair.second)
		if got := byID[candidateID]; got != want {
			t.Fatalf("candidate %s: expected verdict %s to survive, got %s", candidateID, want, got)
		}
	}
}

func TestSelectCandidateKeepsSingleSelection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	img := testsupport.NewImage(t, st, "/photos/shelf-005.jpg")
	det := testsupport.NewDetection(t, st, img.ID, 0.9)

	for _, id := range []string{"sku-1", "sku-2"} {
		cand := &store.CandidateResult{
			DetectionID: det.ID,
			CandidateID: id,
			Stage:       store.StageVisualMatch,
			MatchStatus: store.MatchSimilar,
		}
		if err := st.UpsertCandidateResult(ctx, cand); err != nil {
			t.Fatalf("UpsertCandidateResult failed: %v", err)
		}
	}

	if err := st.SelectCandidate(ctx, det.ID, "sku-1"); err != nil {
		t.Fatalf("SelectCandidate failed: %v", err)
	}
	if err := st.SelectCandidate(ctx, det.ID, "sku-2"); err != nil {
		t.Fatalf("SelectCandidate failed: %v", err)
	}

	selected, err := st.SelectedCandidate(ctx, det.ID)
	if err != nil {
		t.Fatalf("SelectedCandidate failed: %v", err)
	}
	if selected == nil || selected.CandidateID != "sku-2" {
		t.Fatalf("expected sku-2 selected, got %#v", selected)
	}

	candidates, err := st.CandidatesForStage(ctx, det.ID, store.StageVisualMatch)
	if err != nil {
		t.Fatalf("CandidatesForStage failed: %v", err)
	}
	selectedCount := 0
	for _, cand := range candidates {
		if cand.Selected {
			selectedCount++
		}
	}
	if selectedCount != 1 {
		t.Fatalf("expected exactly one selected candidate, got %d", selectedCount)
	}

	fetched, err := st.GetByID(ctx, det.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.SelectedCandidateID != "sku-2" {
		t.Fatalf("expected detection to record sku-2, got %q", fetched.SelectedCandidateID)
	}
}

func TestSelectCandidateRejectsUnknownCandidate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	img := testsupport.NewImage(t, st, "/photos/shelf-006.jpg")
	det := testsupport.NewDetection(t, st, img.ID, 0.9)

	if err := st.SelectCandidate(context.Background(), det.ID, "missing"); err == nil {
		t.Fatal("expected error for candidate without a visual_match row")
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	img := testsupport.NewImage(t, st, "/photos/shelf-007.jpg")

	stuck := testsupport.NewDetection(t, st, img.ID, 0.9)
	if _, err := st.TransitionStatus(ctx, stuck.ID, store.StatusPending, store.StatusSearching); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	done := testsupport.NewDetection(t, st, img.ID, 0.9)
	if _, err := st.TransitionStatus(ctx, done.ID, store.StatusPending, store.StatusExtracting); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if _, err := st.TransitionStatus(ctx, done.ID, store.StatusExtracting, store.StatusDone); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}

	count, err := st.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reset detection, got %d", count)
	}

	fetched, err := st.GetByID(ctx, stuck.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != store.StatusPending {
		t.Fatalf("expected pending after reset, got %s", fetched.Status)
	}

	kept, err := st.GetByID(ctx, done.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if kept.Status != store.StatusDone {
		t.Fatalf("expected done detection untouched, got %s", kept.Status)
	}
}

func TestRetryErrored(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	img := testsupport.NewImage(t, st, "/photos/shelf-008.jpg")

	first := testsupport.NewDetection(t, st, img.ID, 0.9)
	second := testsupport.NewDetection(t, st, img.ID, 0.9)
	for _, det := range []*store.Detection{first, second} {
		if err := st.MarkErrored(ctx, det.ID, "catalog authentication failed"); err != nil {
			t.Fatalf("MarkErrored failed: %v", err)
		}
	}

	count, err := st.RetryErrored(ctx, first.ID)
	if err != nil {
		t.Fatalf("RetryErrored failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retried detection, got %d", count)
	}

	fetched, err := st.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched.Status != store.StatusPending || fetched.ErrorMessage != "" {
		t.Fatalf("expected cleared pending detection, got %#v", fetched)
	}

	untouched, err := st.GetByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if untouched.Status != store.StatusErrored {
		t.Fatalf("expected second detection to stay errored, got %s", untouched.Status)
	}

	count, err = st.RetryErrored(ctx)
	if err != nil {
		t.Fatalf("RetryErrored failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected remaining errored detection retried, got %d", count)
	}
}

func TestStatsAndHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	img := testsupport.NewImage(t, st, "/photos/shelf-009.jpg")

	pending := testsupport.NewDetection(t, st, img.ID, 0.9)
	_ = pending
	processing := testsupport.NewDetection(t, st, img.ID, 0.9)
	if _, err := st.TransitionStatus(ctx, processing.ID, store.StatusPending, store.StatusVisualMatching); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	failed := testsupport.NewDetection(t, st, img.ID, 0.9)
	if err := st.MarkErrored(ctx, failed.ID, "boom"); err != nil {
		t.Fatalf("MarkErrored failed: %v", err)
	}

	health, err := st.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Processing != 1 || health.Errored != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}
