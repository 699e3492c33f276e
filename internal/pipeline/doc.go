// Package pipeline orchestrates the enrichment of detected shelf products.
//
// A batch run pulls every pending detection from the store and drives each
// one through a fixed stage sequence: crop extraction via the vision model,
// catalog search, local pre-filter scoring, and visual matching. A bounded
// worker pool processes detections concurrently; failures are recorded per
// detection and never stop sibling work, with the single exception of
// catalog authentication failures, which abort the whole batch.
package pipeline
