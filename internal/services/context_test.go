package services_test

import (
	"context"
	"testing"

	"shelfscan/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithImageID(ctx, 12)
	ctx = services.WithDetectionID(ctx, 34)
	ctx = services.WithBatchID(ctx, "batch-7")
	ctx = services.WithStage(ctx, "visual_matching")
	ctx = services.WithRequestID(ctx, "req-1")

	if id, ok := services.ImageIDFromContext(ctx); !ok || id != 12 {
		t.Fatalf("expected image id 12, got %d ok=%v", id, ok)
	}
	if id, ok := services.DetectionIDFromContext(ctx); !ok || id != 34 {
		t.Fatalf("expected detection id 34, got %d ok=%v", id, ok)
	}
	if batch, ok := services.BatchIDFromContext(ctx); !ok || batch != "batch-7" {
		t.Fatalf("expected batch id, got %q ok=%v", batch, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "visual_matching" {
		t.Fatalf("expected stage, got %q ok=%v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-1" {
		t.Fatalf("expected request id, got %q ok=%v", rid, ok)
	}
}

func TestContextMissingValues(t *testing.T) {
	ctx := context.Background()
	if _, ok := services.ImageIDFromContext(ctx); ok {
		t.Fatal("expected missing image id")
	}
	if _, ok := services.DetectionIDFromContext(ctx); ok {
		t.Fatal("expected missing detection id")
	}
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected missing stage")
	}
}

func TestContextIgnoresEmptyStrings(t *testing.T) {
	ctx := services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected empty stage to be dropped")
	}
	ctx = services.WithBatchID(context.Background(), "")
	if _, ok := services.BatchIDFromContext(ctx); ok {
		t.Fatal("expected empty batch id to be dropped")
	}
}
