package pipeline

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"shelfscan/internal/logging"
	"shelfscan/internal/store"
)

// Event describes one detection status transition inside a batch run.
type Event struct {
	BatchID     string
	DetectionID int64
	ImageID     int64
	Stage       string
	Status      store.Status
	Err         error
}

// Summary aggregates the outcome of a batch run. Reasons groups errored
// detections by failure subtype so operators can tell a wall of auth
// failures from scattered transient errors.
type Summary struct {
	BatchID    string
	Total      int
	Successful int
	Skipped    int
	Errored    int
	Reasons    map[string]int
	Duration   time.Duration
}

// Sink receives progress events as the batch advances. Implementations must
// tolerate concurrent calls from multiple workers.
type Sink interface {
	ItemTransition(Event)
	BatchDone(Summary)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) ItemTransition(Event) {}
func (NopSink) BatchDone(Summary)    {}

// LogSink writes progress events to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink wraps a logger as an event sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) ItemTransition(event Event) {
	attrs := []logging.Attr{
		logging.String(logging.FieldBatchID, event.BatchID),
		logging.Int64(logging.FieldDetectionID, event.DetectionID),
		logging.Int64(logging.FieldImageID, event.ImageID),
		logging.String(logging.FieldStage, event.Stage),
		logging.String("status", string(event.Status)),
		logging.String(logging.FieldEventType, "item_transition"),
	}
	if event.Err != nil {
		attrs = append(attrs, logging.Error(event.Err))
		s.logger.Warn("detection errored", logging.Args(attrs...)...)
		return
	}
	s.logger.Info("detection advanced", logging.Args(attrs...)...)
}

func (s *LogSink) BatchDone(summary Summary) {
	attrs := []logging.Attr{
		logging.String(logging.FieldBatchID, summary.BatchID),
		logging.Int("total", summary.Total),
		logging.Int("successful", summary.Successful),
		logging.Int("skipped", summary.Skipped),
		logging.Int("errored", summary.Errored),
		logging.Duration(logging.FieldDuration, summary.Duration),
		logging.String(logging.FieldEventType, "batch_done"),
	}
	if len(summary.Reasons) > 0 {
		parts := make([]string, 0, len(summary.Reasons))
		for reason, count := range summary.Reasons {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, count))
		}
		sort.Strings(parts)
		attrs = append(attrs, logging.String("error_reasons", strings.Join(parts, " ")))
	}
	s.logger.Info("batch completed", logging.Args(attrs...)...)
}
