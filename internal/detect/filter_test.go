package detect_test

import (
	"testing"

	"shelfscan/internal/detect"
)

func TestFilterKeepsThresholdAndAbove(t *testing.T) {
	raw := []detect.RawDetection{
		{Box: detect.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, Label: "low", Confidence: 0.49},
		{Box: detect.Box{X1: 100, Y1: 0, X2: 200, Y2: 100}, Label: "exact", Confidence: 0.5},
		{Box: detect.Box{X1: 200, Y1: 0, X2: 300, Y2: 100}, Label: "high", Confidence: 0.93},
	}

	kept := detect.Filter(raw, 0.5)
	if len(kept) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(kept))
	}
	if kept[0].Label != "exact" || kept[1].Label != "high" {
		t.Fatalf("expected order preserved, got %q then %q", kept[0].Label, kept[1].Label)
	}
}

func TestFilterEmptyInputYieldsEmptyResult(t *testing.T) {
	if kept := detect.Filter(nil, 0.5); len(kept) != 0 {
		t.Fatalf("expected no detections, got %d", len(kept))
	}
}

func TestFilterDefaultsThreshold(t *testing.T) {
	raw := []detect.RawDetection{
		{Box: detect.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, Confidence: 0.4},
		{Box: detect.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, Confidence: 0.6},
	}
	kept := detect.Filter(raw, 0)
	if len(kept) != 1 || kept[0].Confidence != 0.6 {
		t.Fatalf("expected only the 0.6 detection with the default threshold, got %#v", kept)
	}
}

func TestFilterDropsInvalidBoxes(t *testing.T) {
	raw := []detect.RawDetection{
		{Box: detect.Box{X1: 200, Y1: 0, X2: 100, Y2: 100}, Confidence: 0.9},
		{Box: detect.Box{X1: 0, Y1: 0, X2: 1200, Y2: 100}, Confidence: 0.9},
		{Box: detect.Box{X1: -5, Y1: 0, X2: 100, Y2: 100}, Confidence: 0.9},
		{Box: detect.Box{X1: 0, Y1: 0, X2: 1000, Y2: 1000}, Confidence: 0.9},
	}
	kept := detect.Filter(raw, 0.5)
	if len(kept) != 1 {
		t.Fatalf("expected only the full-frame box to survive, got %#v", kept)
	}
}
