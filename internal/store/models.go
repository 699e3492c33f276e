package store

import (
	"strings"
	"time"
)

// Status represents the enrichment lifecycle of a detection.
type Status string

const (
	StatusPending        Status = "pending"
	StatusExtracting     Status = "extracting"
	StatusSearching      Status = "searching"
	StatusPreFiltering   Status = "pre_filtering"
	StatusVisualMatching Status = "visual_matching"
	StatusDone           Status = "done"
	StatusErrored        Status = "errored"
)

var allStatuses = []Status{
	StatusPending,
	StatusExtracting,
	StatusSearching,
	StatusPreFiltering,
	StatusVisualMatching,
	StatusDone,
	StatusErrored,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// processingStatuses are the in-flight states a crash can strand a
// detection in. Recovery resets them to pending since every stage is
// idempotent from the start.
var processingStatuses = map[Status]struct{}{
	StatusExtracting:     {},
	StatusSearching:      {},
	StatusPreFiltering:   {},
	StatusVisualMatching: {},
}

// ParseStatus validates a raw status string.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.TrimSpace(strings.ToLower(value)))
	_, ok := statusSet[status]
	return status, ok
}

// IsProcessing reports whether the status marks an in-flight stage.
func (s Status) IsProcessing() bool {
	_, ok := processingStatuses[s]
	return ok
}

// IsTerminal reports whether the status ends the pipeline for a detection.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusErrored
}

// Stage identifies which pipeline phase produced a candidate result row.
type Stage string

const (
	StageSearch      Stage = "search"
	StagePreFilter   Stage = "pre_filter"
	StageVisualMatch Stage = "visual_match"
)

// MatchStatus is the visual comparison verdict for a candidate.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchNone      MatchStatus = "no_match"
	MatchSimilar   MatchStatus = "similar"
	MatchIdentical MatchStatus = "identical"
)

// matchStrength orders verdicts so concurrent upserts keep the strongest one.
var matchStrength = map[MatchStatus]int{
	MatchPending:   0,
	MatchNone:      1,
	MatchSimilar:   2,
	MatchIdentical: 3,
}

// StrongerMatch returns the higher-confidence of two verdicts.
func StrongerMatch(a, b MatchStatus) MatchStatus {
	if matchStrength[b] > matchStrength[a] {
		return b
	}
	return a
}

// Image is a source shelf photo registered for processing. Retailer is an
// optional hint recorded at ingest time and used to bias candidate scoring.
type Image struct {
	ID                 int64
	SourcePath         string
	Retailer           string
	IngestedAt         time.Time
	DetectionCompleted bool
}

// Box is a detection bounding box on the normalized 0-1000 coordinate grid.
type Box struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

// Detection is a single detected product region persisted in SQLite.
type Detection struct {
	ID                  int64
	ImageID             int64
	Box                 Box
	Label               string
	Confidence          float64
	Status              Status
	BrandName           string
	ProductName         string
	Category            string
	Size                string
	Description         string
	FieldConfidenceJSON string
	IsProduct           bool
	DetailsVisible      bool
	ExtractionNotes     string
	SelectedCandidateID string
	FullyAnalyzed       bool
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CandidateResult is one catalog product tied to a detection at a given stage.
type CandidateResult struct {
	ID               int64
	DetectionID      int64
	CandidateID      string
	Name             string
	Brand            string
	Retailer         string
	ImageURL         string
	Score            float64
	Stage            Stage
	MatchStatus      MatchStatus
	VisualSimilarity float64
	Selected         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HealthSummary describes aggregated detection counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Errored    int
	Done       int
}
