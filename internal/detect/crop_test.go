package detect_test

import (
	"bytes"
	"image/jpeg"
	"path/filepath"
	"testing"

	"shelfscan/internal/detect"
	"shelfscan/internal/testsupport"
)

func TestCropProjectsGridOntoPixels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelf.png")
	testsupport.WritePNG(t, path, 200, 100)

	img, err := detect.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}

	crop, err := detect.Crop(img, detect.Box{X1: 0, Y1: 0, X2: 500, Y2: 500})
	if err != nil {
		t.Fatalf("Crop failed: %v", err)
	}
	bounds := crop.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 50 {
		t.Fatalf("expected 100x50 crop, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestCropRejectsInvalidBox(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelf.png")
	testsupport.WritePNG(t, path, 50, 50)

	img, err := detect.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if _, err := detect.Crop(img, detect.Box{X1: 300, Y1: 0, X2: 100, Y2: 100}); err == nil {
		t.Fatal("expected error for inverted box")
	}
}

func TestCropJPEGProducesDecodableImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelf.png")
	testsupport.WritePNG(t, path, 400, 300)

	img, err := detect.LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}

	data, err := detect.CropJPEG(img, detect.Box{X1: 100, Y1: 100, X2: 900, Y2: 900})
	if err != nil {
		t.Fatalf("CropJPEG failed: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode crop: %v", err)
	}
	if decoded.Bounds().Dx() == 0 {
		t.Fatal("expected non-empty crop")
	}
}
