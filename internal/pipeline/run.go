package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"shelfscan/internal/logging"
	"shelfscan/internal/services"
	"shelfscan/internal/store"
)

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeSkipped
	outcomeErrored
	outcomeCanceled
)

type itemOutcome struct {
	kind   outcomeKind
	reason string
}

type batchRun struct {
	id     string
	cancel context.CancelFunc
}

// Run processes every pending detection through the full enrichment pipeline
// and returns the batch summary. A catalog authentication failure cancels
// the run and force-errors every detection that has not yet reached a
// terminal status; all other failures are recorded per detection and leave
// the rest of the batch untouched.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	batchID := uuid.NewString()
	ctx = services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(ctx, p.logger)
	start := time.Now()

	if reclaimed, err := p.store.ResetStuckProcessing(ctx); err != nil {
		return Summary{BatchID: batchID}, services.Wrap(services.ErrPersistence, "", "run batch", "reset stuck detections", err)
	} else if reclaimed > 0 {
		logger.Info("reset stranded detections to pending", logging.Int64("count", reclaimed))
	}

	pending, err := p.store.ListByStatus(ctx, store.StatusPending)
	if err != nil {
		return Summary{BatchID: batchID}, services.Wrap(services.ErrPersistence, "", "run batch", "list pending detections", err)
	}

	summary := Summary{
		BatchID: batchID,
		Total:   len(pending),
		Reasons: make(map[string]int),
	}
	if len(pending) == 0 {
		summary.Duration = time.Since(start)
		p.sink.BatchDone(summary)
		return summary, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &batchRun{id: batchID, cancel: cancel}

	logger.Info("batch started",
		logging.Int("pending", len(pending)),
		logging.Int("workers", p.workers),
		logging.String(logging.FieldEventType, "batch_start"),
	)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	jobs := make(chan *store.Detection)
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for det := range jobs {
				outcome := p.processDetection(runCtx, run, det)
				mu.Lock()
				switch outcome.kind {
				case outcomeSuccess:
					summary.Successful++
				case outcomeSkipped:
					summary.Skipped++
				case outcomeErrored:
					summary.Errored++
					summary.Reasons[outcome.reason]++
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, det := range pending {
		select {
		case <-runCtx.Done():
			break dispatch
		case jobs <- det:
		}
	}
	close(jobs)
	wg.Wait()

	var runErr error
	if cause, aborted := p.aborted(); aborted {
		swept, sweepErr := p.failUnfinished(ctx, run, pending, cause)
		if sweepErr != nil {
			logger.Error("failed to mark aborted detections", logging.Error(sweepErr))
		}
		summary.Errored += swept
		if swept > 0 {
			summary.Reasons[reasonAuth] += swept
		}
		runErr = services.Wrap(services.ErrAuth, "", "run batch", cause, nil)
	}

	summary.Duration = time.Since(start)
	p.sink.BatchDone(summary)
	logger.Info("batch finished",
		logging.Int("total", summary.Total),
		logging.Int("successful", summary.Successful),
		logging.Int("skipped", summary.Skipped),
		logging.Int("errored", summary.Errored),
		logging.Duration(logging.FieldDuration, summary.Duration),
		logging.String(logging.FieldEventType, "batch_finish"),
	)
	return summary, runErr
}

// failUnfinished marks every non-terminal detection from the batch errored
// with the shared abort cause. It uses the parent context because the run
// context is already cancelled.
func (p *Pipeline) failUnfinished(ctx context.Context, run *batchRun, pending []*store.Detection, cause string) (int, error) {
	var (
		swept   int
		lastErr error
	)
	for _, det := range pending {
		current, err := p.store.GetByID(ctx, det.ID)
		if err != nil {
			lastErr = err
			continue
		}
		if current == nil || current.Status.IsTerminal() {
			continue
		}
		if err := p.store.MarkErrored(ctx, det.ID, cause); err != nil {
			lastErr = err
			continue
		}
		swept++
		p.sink.ItemTransition(Event{
			BatchID:     run.id,
			DetectionID: det.ID,
			ImageID:     det.ImageID,
			Stage:       "batch",
			Status:      store.StatusErrored,
			Err:         errors.New(cause),
		})
	}
	return swept, lastErr
}

const (
	reasonAuth        = "auth"
	reasonRateLimited = "rate_limited"
	reasonExtraction  = "extraction"
	reasonSearch      = "search"
	reasonVisualMatch = "visual_match"
	reasonPersistence = "persistence"
	reasonTimeout     = "timeout"
	reasonOther       = "other"
)

func failureReason(err error) string {
	switch {
	case err == nil:
		return reasonOther
	case errors.Is(err, services.ErrAuth):
		return reasonAuth
	case errors.Is(err, services.ErrRateLimited):
		return reasonRateLimited
	case errors.Is(err, services.ErrExtraction):
		return reasonExtraction
	case errors.Is(err, services.ErrSearch):
		return reasonSearch
	case errors.Is(err, services.ErrVisualMatch):
		return reasonVisualMatch
	case errors.Is(err, services.ErrPersistence):
		return reasonPersistence
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return reasonTimeout
	default:
		return reasonOther
	}
}
