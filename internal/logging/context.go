package logging

import (
	"context"
	"log/slog"

	"shelfscan/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldImageID is the standardized structured logging key for shelf image identifiers.
	FieldImageID = "image_id"
	// FieldDetectionID is the standardized structured logging key for detection identifiers.
	FieldDetectionID = "detection_id"
	// FieldBatchID is the standardized structured logging key for enrichment batch identifiers.
	FieldBatchID = "batch_id"
	// FieldStage is the standardized structured logging key for pipeline stage names.
	FieldStage = "stage"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType is the standardized structured logging key for pipeline event categories.
	FieldEventType = "event_type"
	// FieldErrorHint flags warnings or anomalies that should stand out in structured logs.
	FieldErrorHint = "error_hint"
	// FieldDuration is the standardized structured logging key for elapsed stage time.
	FieldDuration = "duration"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.ImageIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldImageID, id))
	}
	if id, ok := services.DetectionIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldDetectionID, id))
	}
	if batch, ok := services.BatchIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldBatchID, batch))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
