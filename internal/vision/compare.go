package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shelfscan/internal/services"
)

// Verdict is the visual comparison outcome for a candidate image.
type Verdict string

const (
	VerdictNoMatch   Verdict = "no_match"
	VerdictSimilar   Verdict = "similar"
	VerdictIdentical Verdict = "identical"
)

func parseVerdict(value string) (Verdict, bool) {
	verdict := Verdict(strings.TrimSpace(strings.ToLower(value)))
	switch verdict {
	case VerdictNoMatch, VerdictSimilar, VerdictIdentical:
		return verdict, true
	}
	return "", false
}

// Comparison is the result of judging a shelf crop against one catalog photo.
type Comparison struct {
	Verdict    Verdict `json:"match_status"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
	Raw        string  `json:"-"`
}

// Compare judges whether the shelf crop and the catalog image at the given
// URL show the same product.
func (c *Client) Compare(ctx context.Context, cropJPEG []byte, candidateImageURL string) (Comparison, error) {
	var empty Comparison
	if len(cropJPEG) == 0 {
		return empty, errors.New("vision compare: crop is empty")
	}
	candidateImageURL = strings.TrimSpace(candidateImageURL)
	if candidateImageURL == "" {
		return empty, errors.New("vision compare: candidate image url required")
	}

	content, err := c.completeJSON(ctx, "vision compare", ComparisonPrompt,
		[]contentPart{
			textPart("Compare the shelf crop with the catalog photo."),
			imagePart(cropJPEG),
			imageURLPart(candidateImageURL),
		})
	if err != nil {
		return empty, err
	}

	var parsed struct {
		MatchStatus string  `json:"match_status"`
		Similarity  float64 `json:"similarity"`
		Reason      string  `json:"reason"`
	}
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return empty, services.Wrap(services.ErrVisualMatch, "", "vision compare", "parse payload", err)
	}
	verdict, ok := parseVerdict(parsed.MatchStatus)
	if !ok {
		return empty, services.Wrap(services.ErrVisualMatch, "", "vision compare",
			fmt.Sprintf("unknown match_status %q", parsed.MatchStatus), nil)
	}
	return Comparison{
		Verdict:    verdict,
		Similarity: clampUnit(parsed.Similarity),
		Reason:     strings.TrimSpace(parsed.Reason),
		Raw:        content,
	}, nil
}

// Selection is the result of an N-way pick among candidate images.
type Selection struct {
	BestIndex  int // 0-based index into the submitted candidates, -1 when none match
	Verdict    Verdict
	Similarity float64
	Reason     string
	Raw        string
}

// SelectBest shows the shelf crop next to every candidate image in one call
// and asks for the best match. Candidate order is preserved, so BestIndex
// refers back to the input slice.
func (c *Client) SelectBest(ctx context.Context, cropJPEG []byte, candidateImageURLs []string) (Selection, error) {
	var empty Selection
	if len(cropJPEG) == 0 {
		return empty, errors.New("vision select: crop is empty")
	}
	if len(candidateImageURLs) == 0 {
		return empty, errors.New("vision select: candidates required")
	}

	parts := make([]contentPart, 0, len(candidateImageURLs)+2)
	parts = append(parts, textPart(fmt.Sprintf("Pick the best match for the shelf crop from %d candidates.", len(candidateImageURLs))))
	parts = append(parts, imagePart(cropJPEG))
	for i, url := range candidateImageURLs {
		url = strings.TrimSpace(url)
		if url == "" {
			return empty, fmt.Errorf("vision select: candidate %d has no image url", i+1)
		}
		parts = append(parts, textPart(fmt.Sprintf("Candidate %d:", i+1)))
		parts = append(parts, imageURLPart(url))
	}

	content, err := c.completeJSON(ctx, "vision select", SelectionPrompt, parts)
	if err != nil {
		return empty, err
	}

	var parsed struct {
		BestIndex   int     `json:"best_index"`
		MatchStatus string  `json:"match_status"`
		Similarity  float64 `json:"similarity"`
		Reason      string  `json:"reason"`
	}
	if err := DecodeModelJSON(content, &parsed); err != nil {
		return empty, services.Wrap(services.ErrVisualMatch, "", "vision select", "parse payload", err)
	}
	verdict, ok := parseVerdict(parsed.MatchStatus)
	if !ok {
		return empty, services.Wrap(services.ErrVisualMatch, "", "vision select",
			fmt.Sprintf("unknown match_status %q", parsed.MatchStatus), nil)
	}

	selection := Selection{
		BestIndex:  parsed.BestIndex - 1,
		Verdict:    verdict,
		Similarity: clampUnit(parsed.Similarity),
		Reason:     strings.TrimSpace(parsed.Reason),
		Raw:        content,
	}
	if parsed.BestIndex <= 0 || verdict == VerdictNoMatch {
		selection.BestIndex = -1
		selection.Verdict = VerdictNoMatch
		return selection, nil
	}
	if selection.BestIndex >= len(candidateImageURLs) {
		return empty, services.Wrap(services.ErrVisualMatch, "", "vision select",
			fmt.Sprintf("best_index %d out of range for %d candidates", parsed.BestIndex, len(candidateImageURLs)), nil)
	}
	return selection, nil
}

func clampUnit(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
