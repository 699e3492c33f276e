package detect

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// maxCropDimension bounds the longest edge of encoded crops so vision
// payloads stay small.
const maxCropDimension = 768

// LoadImage reads a shelf photo from disk.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return img, nil
}

// Crop extracts the region a detection box covers from the source photo.
func Crop(img image.Image, box Box) (image.Image, error) {
	bounds := img.Bounds()
	rect, err := box.PixelRect(bounds.Dx(), bounds.Dy())
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, rect.Add(bounds.Min)), nil
}

// CropJPEG extracts a detection crop and encodes it as JPEG, downscaling so
// the longest edge stays within the vision payload budget.
func CropJPEG(img image.Image, box Box) ([]byte, error) {
	crop, err := Crop(img, box)
	if err != nil {
		return nil, err
	}
	crop = shrinkToFit(crop, maxCropDimension)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, crop, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

func shrinkToFit(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= maxDim && bounds.Dy() <= maxDim {
		return img
	}
	if bounds.Dx() >= bounds.Dy() {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}
