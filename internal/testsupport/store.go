package testsupport

import (
	"context"
	"testing"

	"shelfscan/internal/config"
	"shelfscan/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewImage registers a shelf image for tests using the provided store.
func NewImage(t testing.TB, st *store.Store, sourcePath string) *store.Image {
	t.Helper()

	img, err := st.NewImage(context.Background(), sourcePath, "")
	if err != nil {
		t.Fatalf("store.NewImage: %v", err)
	}
	return img
}

// NewDetection inserts a pending detection for tests.
func NewDetection(t testing.TB, st *store.Store, imageID int64, confidence float64) *store.Detection {
	t.Helper()

	det, err := st.NewDetection(context.Background(), imageID, store.Box{X1: 100, Y1: 100, X2: 300, Y2: 400}, "product", confidence)
	if err != nil {
		t.Fatalf("store.NewDetection: %v", err)
	}
	return det
}
