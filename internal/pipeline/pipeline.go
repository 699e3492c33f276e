package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shelfscan/internal/catalog"
	"shelfscan/internal/config"
	"shelfscan/internal/detect"
	"shelfscan/internal/logging"
	"shelfscan/internal/store"
	"shelfscan/internal/vision"
)

const (
	defaultWorkers      = 4
	defaultStageTimeout = 120 * time.Second
)

// VisionService bundles the multimodal calls the pipeline issues. Satisfied
// by *vision.Client.
type VisionService interface {
	Extract(ctx context.Context, cropJPEG []byte) (vision.ExtractedInfo, error)
	Compare(ctx context.Context, cropJPEG []byte, candidateImageURL string) (vision.Comparison, error)
	SelectBest(ctx context.Context, cropJPEG []byte, candidateImageURLs []string) (vision.Selection, error)
}

// Deps collects the external collaborators the pipeline drives.
type Deps struct {
	Detector detect.Detector
	Vision   VisionService
	Catalog  catalog.Searcher
}

// Pipeline runs the enrichment stages over pending detections with a bounded
// worker pool. One Pipeline instance serves one batch at a time.
type Pipeline struct {
	cfg          *config.Config
	store        *store.Store
	deps         Deps
	logger       *slog.Logger
	sink         Sink
	workers      int
	stageTimeout time.Duration

	mu         sync.Mutex
	abortCause string
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithSink directs progress events to the given sink.
func WithSink(sink Sink) Option {
	return func(p *Pipeline) {
		if sink != nil {
			p.sink = sink
		}
	}
}

// New constructs a pipeline from configuration and collaborators.
func New(cfg *config.Config, st *store.Store, deps Deps, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if st == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.Vision == nil {
		return nil, errors.New("pipeline: vision service is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("pipeline: catalog searcher is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	workers := cfg.Pipeline.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	stageTimeout := time.Duration(cfg.Pipeline.StageTimeoutSeconds) * time.Second
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}

	p := &Pipeline{
		cfg:          cfg,
		store:        st,
		deps:         deps,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		sink:         NopSink{},
		workers:      workers,
		stageTimeout: stageTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// abortBatch records the batch-fatal cause once. Later callers keep the
// first cause.
func (p *Pipeline) abortBatch(cause string, cancel context.CancelFunc) {
	p.mu.Lock()
	first := p.abortCause == ""
	if first {
		p.abortCause = cause
	}
	p.mu.Unlock()
	if first {
		cancel()
	}
}

func (p *Pipeline) aborted() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.abortCause, p.abortCause != ""
}

// stageCtx bounds one adapter call so a stuck upstream cannot hold a worker
// past the configured timeout.
func (p *Pipeline) stageCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.stageTimeout)
}
