package pipeline

import (
	"context"
	"errors"

	"shelfscan/internal/detect"
	"shelfscan/internal/logging"
	"shelfscan/internal/services"
	"shelfscan/internal/store"
)

// IngestResult summarizes one ingestion pass.
type IngestResult struct {
	Images     int
	Detections int
	Filtered   int
	Skipped    int
}

// Ingest runs the object detector over the given shelf photos and enqueues
// every region that clears the confidence threshold. Photos already ingested
// are skipped, so repeated calls with the same paths do not duplicate
// detections. A non-empty retailer is recorded on each photo and later biases
// candidate scoring toward products listed by that retailer.
func (p *Pipeline) Ingest(ctx context.Context, retailer string, imagePaths ...string) (IngestResult, error) {
	var result IngestResult
	if p.deps.Detector == nil {
		return result, errors.New("pipeline: detector is required for ingestion")
	}
	logger := logging.WithContext(ctx, p.logger)

	for _, path := range imagePaths {
		img, err := p.store.NewImage(ctx, path, retailer)
		if err != nil {
			return result, services.Wrap(services.ErrPersistence, "", "ingest image", path, err)
		}
		if img.DetectionCompleted {
			logger.Debug("image already ingested", logging.String("source_file", path))
			result.Skipped++
			continue
		}

		callCtx, cancel := p.stageCtx(ctx)
		raw, err := p.deps.Detector.Detect(callCtx, path)
		cancel()
		if err != nil {
			return result, services.Wrap(services.ErrExtraction, "", "detect products", path, err)
		}

		kept := detect.Filter(raw, p.cfg.Detector.ConfidenceThreshold)
		result.Filtered += len(raw) - len(kept)

		for _, region := range kept {
			box := store.Box{X1: region.Box.X1, Y1: region.Box.Y1, X2: region.Box.X2, Y2: region.Box.Y2}
			if _, err := p.store.NewDetection(ctx, img.ID, box, region.Label, region.Confidence); err != nil {
				return result, services.Wrap(services.ErrPersistence, "", "ingest detection", path, err)
			}
			result.Detections++
		}
		if err := p.store.MarkDetectionCompleted(ctx, img.ID); err != nil {
			return result, services.Wrap(services.ErrPersistence, "", "ingest image", "mark detection completed", err)
		}
		result.Images++

		logger.Info("image ingested",
			logging.Int64(logging.FieldImageID, img.ID),
			logging.String("source_file", path),
			logging.Int("raw_detections", len(raw)),
			logging.Int("kept_detections", len(kept)),
		)
	}
	return result, nil
}
