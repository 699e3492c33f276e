package vision

import (
	"context"
	"errors"
	"strings"

	"shelfscan/internal/services"
)

// ExtractedInfo is the structured result of reading a shelf crop.
type ExtractedInfo struct {
	IsProduct       bool               `json:"is_product"`
	DetailsVisible  bool               `json:"details_visible"`
	BrandName       string             `json:"brand_name"`
	ProductName     string             `json:"product_name"`
	Category        string             `json:"category"`
	Size            string             `json:"size"`
	Description     string             `json:"description"`
	FieldConfidence map[string]float64 `json:"field_confidence"`
	Notes           string             `json:"notes"`
	Raw             string             `json:"-"`
}

// HasSearchableText reports whether extraction produced anything a catalog
// query could use.
func (e ExtractedInfo) HasSearchableText() bool {
	return strings.TrimSpace(e.BrandName) != "" || strings.TrimSpace(e.ProductName) != ""
}

// Extract reads product details from a JPEG crop. A crop showing something
// other than a product is a successful extraction with IsProduct false, not
// an error.
func (c *Client) Extract(ctx context.Context, cropJPEG []byte) (ExtractedInfo, error) {
	var empty ExtractedInfo
	if len(cropJPEG) == 0 {
		return empty, errors.New("vision extract: crop is empty")
	}

	content, err := c.completeJSON(ctx, "vision extract", ExtractionPrompt,
		[]contentPart{
			textPart("Extract the product details from this shelf crop."),
			imagePart(cropJPEG),
		})
	if err != nil {
		return empty, err
	}

	var parsed ExtractedInfo
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return empty, services.Wrap(services.ErrExtraction, "", "vision extract", "parse payload", err)
	}
	parsed.Raw = content
	parsed.BrandName = strings.TrimSpace(parsed.BrandName)
	parsed.ProductName = strings.TrimSpace(parsed.ProductName)
	parsed.Category = strings.TrimSpace(parsed.Category)
	parsed.Size = strings.TrimSpace(parsed.Size)
	parsed.Description = strings.TrimSpace(parsed.Description)
	parsed.Notes = strings.TrimSpace(parsed.Notes)
	for field, confidence := range parsed.FieldConfidence {
		if confidence < 0 {
			parsed.FieldConfidence[field] = 0
		}
		if confidence > 1 {
			parsed.FieldConfidence[field] = 1
		}
	}
	if !parsed.IsProduct {
		parsed.DetailsVisible = false
	}
	return parsed, nil
}
