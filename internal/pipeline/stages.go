package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"shelfscan/internal/catalog"
	"shelfscan/internal/detect"
	"shelfscan/internal/logging"
	"shelfscan/internal/prefilter"
	"shelfscan/internal/services"
	"shelfscan/internal/store"
	"shelfscan/internal/vision"
)

// processDetection drives one detection through extraction, search,
// pre-filtering, and visual matching. Stage order is fixed; each stage's
// input depends on the previous stage's output.
func (p *Pipeline) processDetection(ctx context.Context, run *batchRun, det *store.Detection) itemOutcome {
	ctx = services.WithDetectionID(ctx, det.ID)
	ctx = services.WithImageID(ctx, det.ImageID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, p.logger)

	claimed, err := p.store.TransitionStatus(ctx, det.ID, store.StatusPending, store.StatusExtracting)
	if err != nil {
		return p.failItem(ctx, run, det, logger, "extract",
			services.Wrap(services.ErrPersistence, "", "claim detection", "transition to extracting", err))
	}
	if !claimed {
		logger.Debug("detection already claimed elsewhere")
		return itemOutcome{kind: outcomeSkipped}
	}
	det.Status = store.StatusExtracting
	p.emit(run, det, "extract", store.StatusExtracting, nil)

	img, crop, err := p.cropFor(ctx, det)
	if err != nil {
		return p.failItem(ctx, run, det, logger, "extract", err)
	}

	info, err := p.runExtract(ctx, det, crop)
	if err != nil {
		return p.failItem(ctx, run, det, logger, "extract", err)
	}
	if !info.IsProduct || !info.HasSearchableText() {
		return p.finishWithoutMatch(ctx, run, det, logger, store.StatusExtracting, skipReason(info))
	}

	products, done, outcome := p.runSearch(ctx, run, det, logger, info)
	if done {
		return outcome
	}

	shortlist, done, outcome := p.runPreFilter(ctx, run, det, logger, info, img.Retailer, products)
	if done {
		return outcome
	}

	return p.runVisualMatch(ctx, run, det, logger, crop, shortlist)
}

func skipReason(info vision.ExtractedInfo) string {
	if !info.IsProduct {
		return "not a product"
	}
	return "no searchable text extracted"
}

// cropFor loads the source photo record and produces the JPEG crop for the
// detection's bounding box.
func (p *Pipeline) cropFor(ctx context.Context, det *store.Detection) (*store.Image, []byte, error) {
	img, err := p.store.ImageByID(ctx, det.ImageID)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrPersistence, "", "load image record", fmt.Sprintf("image %d", det.ImageID), err)
	}
	if img == nil {
		return nil, nil, services.Wrap(services.ErrExtraction, "", "load image record", fmt.Sprintf("image %d not found", det.ImageID), nil)
	}
	source, err := detect.LoadImage(img.SourcePath)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrExtraction, "", "load source photo", img.SourcePath, err)
	}
	crop, err := detect.CropJPEG(source, detect.Box{X1: det.Box.X1, Y1: det.Box.Y1, X2: det.Box.X2, Y2: det.Box.Y2})
	if err != nil {
		return nil, nil, services.Wrap(services.ErrExtraction, "", "crop detection", img.SourcePath, err)
	}
	return img, crop, nil
}

// runExtract reads product details off the crop and persists them on the
// detection row.
func (p *Pipeline) runExtract(ctx context.Context, det *store.Detection, crop []byte) (vision.ExtractedInfo, error) {
	callCtx, cancel := p.stageCtx(ctx)
	info, err := p.deps.Vision.Extract(callCtx, crop)
	cancel()
	if err != nil {
		return vision.ExtractedInfo{}, err
	}

	det.BrandName = info.BrandName
	det.ProductName = info.ProductName
	det.Category = info.Category
	det.Size = info.Size
	det.Description = info.Description
	det.IsProduct = info.IsProduct
	det.DetailsVisible = info.DetailsVisible
	det.ExtractionNotes = info.Notes
	if len(info.FieldConfidence) > 0 {
		raw, err := json.Marshal(info.FieldConfidence)
		if err == nil {
			det.FieldConfidenceJSON = string(raw)
		}
	}
	if err := p.store.Update(ctx, det); err != nil {
		return vision.ExtractedInfo{}, services.Wrap(services.ErrPersistence, "", "persist extraction", "update detection", err)
	}
	return info, nil
}

// runSearch queries the catalog and records the raw candidate set. The
// returned bool reports whether the detection reached a terminal outcome.
func (p *Pipeline) runSearch(ctx context.Context, run *batchRun, det *store.Detection, logger *slog.Logger, info vision.ExtractedInfo) ([]catalog.Product, bool, itemOutcome) {
	if outcome, ok := p.transition(ctx, run, det, logger, "search", store.StatusExtracting, store.StatusSearching); !ok {
		return nil, true, outcome
	}

	query := catalog.BuildQuery(info.BrandName, info.ProductName, info.Size)
	callCtx, cancel := p.stageCtx(ctx)
	products, err := p.deps.Catalog.Search(callCtx, query)
	cancel()
	if err != nil {
		if services.AbortsBatch(err) {
			p.abortBatch("catalog authentication failed", run.cancel)
			logger.Error("catalog authentication failed, aborting batch",
				logging.Error(err),
				logging.String(logging.FieldEventType, "batch_abort"),
			)
			return nil, true, itemOutcome{kind: outcomeCanceled}
		}
		return nil, true, p.failItem(ctx, run, det, logger, "search", err)
	}

	for _, product := range products {
		cand := &store.CandidateResult{
			DetectionID: det.ID,
			CandidateID: product.ID,
			Name:        product.Name,
			Brand:       product.Brand,
			Retailer:    product.Retailer,
			ImageURL:    product.PrimaryImageURL(),
			Stage:       store.StageSearch,
			MatchStatus: store.MatchPending,
		}
		if err := p.store.UpsertCandidateResult(ctx, cand); err != nil {
			return nil, true, p.failItem(ctx, run, det, logger, "search",
				services.Wrap(services.ErrPersistence, "", "persist search candidate", product.ID, err))
		}
	}
	logger.Info("catalog search completed",
		logging.String("query", query),
		logging.Int("candidates", len(products)),
	)

	if len(products) == 0 {
		outcome := p.finishWithoutMatch(ctx, run, det, logger, store.StatusSearching, "no catalog candidates")
		return nil, true, outcome
	}
	return products, false, itemOutcome{}
}

// runPreFilter scores the raw candidates locally and records the shortlist
// forwarded to visual matching.
func (p *Pipeline) runPreFilter(ctx context.Context, run *batchRun, det *store.Detection, logger *slog.Logger, info vision.ExtractedInfo, retailer string, products []catalog.Product) ([]prefilter.Scored, bool, itemOutcome) {
	if outcome, ok := p.transition(ctx, run, det, logger, "pre_filter", store.StatusSearching, store.StatusPreFiltering); !ok {
		return nil, true, outcome
	}

	query := prefilter.Query{
		Brand:    info.BrandName,
		Name:     info.ProductName,
		Size:     info.Size,
		Retailer: retailer,
	}
	shortlist := prefilter.Rank(query, products, p.cfg.PreFilter.MaxCandidates, p.cfg.PreFilter.MinScore)

	for _, scored := range shortlist {
		cand := &store.CandidateResult{
			DetectionID: det.ID,
			CandidateID: scored.Product.ID,
			Name:        scored.Product.Name,
			Brand:       scored.Product.Brand,
			Retailer:    scored.Product.Retailer,
			ImageURL:    scored.Product.PrimaryImageURL(),
			Score:       scored.Score,
			Stage:       store.StagePreFilter,
			MatchStatus: store.MatchPending,
		}
		if err := p.store.UpsertCandidateResult(ctx, cand); err != nil {
			return nil, true, p.failItem(ctx, run, det, logger, "pre_filter",
				services.Wrap(services.ErrPersistence, "", "persist shortlist candidate", scored.Product.ID, err))
		}
	}
	logger.Info("shortlist prepared",
		logging.Int("candidates", len(products)),
		logging.Int("shortlist", len(shortlist)),
	)

	if len(shortlist) == 0 {
		outcome := p.finishWithoutMatch(ctx, run, det, logger, store.StatusPreFiltering, "no candidates above score floor")
		return nil, true, outcome
	}
	return shortlist, false, itemOutcome{}
}

// runVisualMatch compares the crop against each shortlisted candidate and
// selects the winner. A failed comparison on one candidate does not stop the
// remaining comparisons.
func (p *Pipeline) runVisualMatch(ctx context.Context, run *batchRun, det *store.Detection, logger *slog.Logger, crop []byte, shortlist []prefilter.Scored) itemOutcome {
	if outcome, ok := p.transition(ctx, run, det, logger, "visual_match", store.StatusPreFiltering, store.StatusVisualMatching); !ok {
		return outcome
	}

	var (
		identical  []prefilter.Scored
		compared   int
		lastCmpErr error
	)
	for _, scored := range shortlist {
		imageURL := strings.TrimSpace(scored.Product.PrimaryImageURL())
		if imageURL == "" {
			logger.Debug("candidate has no reference image", logging.String("candidate_id", scored.Product.ID))
			continue
		}

		callCtx, cancel := p.stageCtx(ctx)
		comparison, err := p.deps.Vision.Compare(callCtx, crop, imageURL)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return itemOutcome{kind: outcomeCanceled}
			}
			lastCmpErr = err
			logger.Warn("candidate comparison failed",
				logging.String("candidate_id", scored.Product.ID),
				logging.Error(err),
			)
			continue
		}
		compared++

		cand := &store.CandidateResult{
			DetectionID:      det.ID,
			CandidateID:      scored.Product.ID,
			Name:             scored.Product.Name,
			Brand:            scored.Product.Brand,
			Retailer:         scored.Product.Retailer,
			ImageURL:         imageURL,
			Score:            scored.Score,
			Stage:            store.StageVisualMatch,
			MatchStatus:      matchStatusFor(comparison.Verdict),
			VisualSimilarity: comparison.Similarity,
		}
		if err := p.store.UpsertCandidateResult(ctx, cand); err != nil {
			return p.failItem(ctx, run, det, logger, "visual_match",
				services.Wrap(services.ErrPersistence, "", "persist comparison", scored.Product.ID, err))
		}
		if comparison.Verdict == vision.VerdictIdentical {
			identical = append(identical, scored)
		}
	}

	if compared == 0 && lastCmpErr != nil {
		return p.failItem(ctx, run, det, logger, "visual_match", lastCmpErr)
	}

	selectedID, err := p.selectWinner(ctx, logger, crop, identical)
	if err != nil {
		return p.failItem(ctx, run, det, logger, "visual_match", err)
	}
	if selectedID != "" {
		if err := p.store.SelectCandidate(ctx, det.ID, selectedID); err != nil {
			return p.failItem(ctx, run, det, logger, "visual_match",
				services.Wrap(services.ErrPersistence, "", "select candidate", selectedID, err))
		}
		det.SelectedCandidateID = selectedID
	}
	if err := p.store.MarkFullyAnalyzed(ctx, det.ID); err != nil {
		return p.failItem(ctx, run, det, logger, "visual_match",
			services.Wrap(services.ErrPersistence, "", "mark fully analyzed", "", err))
	}
	if _, err := p.store.TransitionStatus(ctx, det.ID, store.StatusVisualMatching, store.StatusDone); err != nil {
		return p.failItem(ctx, run, det, logger, "visual_match",
			services.Wrap(services.ErrPersistence, "", "finish detection", "transition to done", err))
	}
	det.Status = store.StatusDone
	p.emit(run, det, "visual_match", store.StatusDone, nil)
	logger.Info("detection fully analyzed",
		logging.String("selected_candidate", selectedID),
		logging.Int("identical_candidates", len(identical)),
	)
	return itemOutcome{kind: outcomeSuccess}
}

// selectWinner resolves which identical candidate, if any, becomes the
// selected match. Two or more identical verdicts trigger an N-way
// disambiguation call; its answer, not shortlist order, decides.
func (p *Pipeline) selectWinner(ctx context.Context, logger *slog.Logger, crop []byte, identical []prefilter.Scored) (string, error) {
	switch len(identical) {
	case 0:
		return "", nil
	case 1:
		return identical[0].Product.ID, nil
	}

	urls := make([]string, len(identical))
	for i, scored := range identical {
		urls[i] = scored.Product.PrimaryImageURL()
	}
	callCtx, cancel := p.stageCtx(ctx)
	selection, err := p.deps.Vision.SelectBest(callCtx, crop, urls)
	cancel()
	if err != nil {
		return "", err
	}
	if selection.BestIndex < 0 || selection.BestIndex >= len(identical) {
		logger.Info("disambiguation picked no candidate")
		return "", nil
	}
	return identical[selection.BestIndex].Product.ID, nil
}

// finishWithoutMatch closes out a detection that legitimately ends with no
// selected candidate.
func (p *Pipeline) finishWithoutMatch(ctx context.Context, run *batchRun, det *store.Detection, logger *slog.Logger, from store.Status, reason string) itemOutcome {
	if err := p.store.MarkFullyAnalyzed(ctx, det.ID); err != nil {
		return p.failItem(ctx, run, det, logger, string(from),
			services.Wrap(services.ErrPersistence, "", "mark fully analyzed", "", err))
	}
	if _, err := p.store.TransitionStatus(ctx, det.ID, from, store.StatusDone); err != nil {
		return p.failItem(ctx, run, det, logger, string(from),
			services.Wrap(services.ErrPersistence, "", "finish detection", "transition to done", err))
	}
	det.Status = store.StatusDone
	p.emit(run, det, string(from), store.StatusDone, nil)
	logger.Info("detection completed without match", logging.String("reason", reason))

	if from == store.StatusExtracting {
		return itemOutcome{kind: outcomeSkipped}
	}
	return itemOutcome{kind: outcomeSuccess}
}

// transition advances the detection's status and emits the event. A false
// return carries the outcome the caller should propagate.
func (p *Pipeline) transition(ctx context.Context, run *batchRun, det *store.Detection, logger *slog.Logger, stage string, from, to store.Status) (itemOutcome, bool) {
	moved, err := p.store.TransitionStatus(ctx, det.ID, from, to)
	if err != nil {
		return p.failItem(ctx, run, det, logger, stage,
			services.Wrap(services.ErrPersistence, "", "advance detection", fmt.Sprintf("%s to %s", from, to), err)), false
	}
	if !moved {
		return p.failItem(ctx, run, det, logger, stage,
			services.Wrap(services.ErrPersistence, "", "advance detection", fmt.Sprintf("detection left %s unexpectedly", from), nil)), false
	}
	det.Status = to
	p.emit(run, det, stage, to, nil)
	return itemOutcome{}, true
}

// failItem records a per-detection failure. Cancellation is not persisted
// here; the post-run sweep owns aborted detections.
func (p *Pipeline) failItem(ctx context.Context, run *batchRun, det *store.Detection, logger *slog.Logger, stage string, err error) itemOutcome {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return itemOutcome{kind: outcomeCanceled}
	}

	message := strings.TrimSpace(err.Error())
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if markErr := p.store.MarkErrored(markCtx, det.ID, message); markErr != nil {
		logger.Error("failed to persist detection failure", logging.Error(markErr))
	}
	det.Status = store.StatusErrored
	det.ErrorMessage = message
	p.emit(run, det, stage, store.StatusErrored, err)
	logger.Error("detection failed",
		logging.String(logging.FieldStage, stage),
		logging.Error(err),
		logging.String(logging.FieldEventType, "item_failure"),
	)
	return itemOutcome{kind: outcomeErrored, reason: failureReason(err)}
}

func (p *Pipeline) emit(run *batchRun, det *store.Detection, stage string, status store.Status, err error) {
	p.sink.ItemTransition(Event{
		BatchID:     run.id,
		DetectionID: det.ID,
		ImageID:     det.ImageID,
		Stage:       stage,
		Status:      status,
		Err:         err,
	})
}

func matchStatusFor(verdict vision.Verdict) store.MatchStatus {
	switch verdict {
	case vision.VerdictIdentical:
		return store.MatchIdentical
	case vision.VerdictSimilar:
		return store.MatchSimilar
	case vision.VerdictNoMatch:
		return store.MatchNone
	default:
		return store.MatchPending
	}
}
