package detect

// DefaultConfidenceThreshold is applied when configuration leaves the
// threshold unset.
const DefaultConfidenceThreshold = 0.5

// Filter keeps detections whose confidence meets the threshold. A detection
// exactly at the threshold survives. Boxes that do not lie on the coordinate
// grid are dropped regardless of confidence. The input order is preserved and
// an empty input yields an empty result.
func Filter(raw []RawDetection, threshold float64) []RawDetection {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	kept := make([]RawDetection, 0, len(raw))
	for _, det := range raw {
		if det.Confidence < threshold {
			continue
		}
		if !det.Box.Valid() {
			continue
		}
		kept = append(kept, det)
	}
	return kept
}
