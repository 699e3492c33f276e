package detect

import (
	"fmt"
	"image"
)

// coordScale is the normalized coordinate grid detections arrive on. Boxes
// use 0-1000 regardless of the source photo's pixel dimensions.
const coordScale = 1000

// Box is a bounding box on the normalized 0-1000 coordinate grid.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Valid reports whether the box lies on the grid with positive area.
func (b Box) Valid() bool {
	if b.X1 < 0 || b.Y1 < 0 || b.X2 > coordScale || b.Y2 > coordScale {
		return false
	}
	return b.X2 > b.X1 && b.Y2 > b.Y1
}

// PixelRect projects the box onto an image of the given dimensions.
func (b Box) PixelRect(width, height int) (image.Rectangle, error) {
	if !b.Valid() {
		return image.Rectangle{}, fmt.Errorf("box %+v is not on the 0-%d grid", b, coordScale)
	}
	if width <= 0 || height <= 0 {
		return image.Rectangle{}, fmt.Errorf("image dimensions %dx%d are not positive", width, height)
	}
	rect := image.Rect(
		b.X1*width/coordScale,
		b.Y1*height/coordScale,
		b.X2*width/coordScale,
		b.Y2*height/coordScale,
	)
	if rect.Dx() < 1 {
		rect.Max.X = rect.Min.X + 1
	}
	if rect.Dy() < 1 {
		rect.Max.Y = rect.Min.Y + 1
	}
	return rect, nil
}

// RawDetection is a single detector output before confidence filtering.
type RawDetection struct {
	Box        Box     `json:"box"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}
