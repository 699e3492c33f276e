package store

import (
	"database/sql"
	"errors"
	"time"
)

const detectionColumns = "id, image_id, box_x1, box_y1, box_x2, box_y2, label, confidence, status, brand_name, product_name, category, size, description, field_confidence_json, is_product, details_visible, extraction_notes, selected_candidate_id, fully_analyzed, error_message, created_at, updated_at"

const candidateColumns = "id, detection_id, candidate_id, name, brand, retailer, image_url, score, stage, match_status, visual_similarity, selected, created_at, updated_at"

func scanDetection(scanner interface{ Scan(dest ...any) error }) (*Detection, error) {
	var (
		id              int64
		imageID         int64
		x1, y1, x2, y2  int
		label           sql.NullString
		confidence      float64
		statusStr       string
		brandName       sql.NullString
		productName     sql.NullString
		category        sql.NullString
		size            sql.NullString
		description     sql.NullString
		fieldConfidence sql.NullString
		isProduct       sql.NullInt64
		detailsVisible  sql.NullInt64
		extractionNotes sql.NullString
		selectedID      sql.NullString
		fullyAnalyzed   sql.NullInt64
		errorMessage    sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&imageID,
		&x1,
		&y1,
		&x2,
		&y2,
		&label,
		&confidence,
		&statusStr,
		&brandName,
		&productName,
		&category,
		&size,
		&description,
		&fieldConfidence,
		&isProduct,
		&detailsVisible,
		&extractionNotes,
		&selectedID,
		&fullyAnalyzed,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	det := &Detection{
		ID:                  id,
		ImageID:             imageID,
		Box:                 Box{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Label:               label.String,
		Confidence:          confidence,
		Status:              Status(statusStr),
		BrandName:           brandName.String,
		ProductName:         productName.String,
		Category:            category.String,
		Size:                size.String,
		Description:         description.String,
		FieldConfidenceJSON: fieldConfidence.String,
		ExtractionNotes:     extractionNotes.String,
		SelectedCandidateID: selectedID.String,
		ErrorMessage:        errorMessage.String,
	}
	if isProduct.Valid {
		det.IsProduct = isProduct.Int64 != 0
	}
	if detailsVisible.Valid {
		det.DetailsVisible = detailsVisible.Int64 != 0
	}
	if fullyAnalyzed.Valid {
		det.FullyAnalyzed = fullyAnalyzed.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		det.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		det.UpdatedAt = updated
	}
	return det, nil
}

func scanCandidate(scanner interface{ Scan(dest ...any) error }) (*CandidateResult, error) {
	var (
		id          int64
		detectionID int64
		candidateID string
		name        sql.NullString
		brand       sql.NullString
		retailer    sql.NullString
		imageURL    sql.NullString
		score       float64
		stage       string
		matchStatus string
		similarity  float64
		selected    sql.NullInt64
		createdRaw  sql.NullString
		updatedRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&detectionID,
		&candidateID,
		&name,
		&brand,
		&retailer,
		&imageURL,
		&score,
		&stage,
		&matchStatus,
		&similarity,
		&selected,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	cand := &CandidateResult{
		ID:               id,
		DetectionID:      detectionID,
		CandidateID:      candidateID,
		Name:             name.String,
		Brand:            brand.String,
		Retailer:         retailer.String,
		ImageURL:         imageURL.String,
		Score:            score,
		Stage:            Stage(stage),
		MatchStatus:      MatchStatus(matchStatus),
		VisualSimilarity: similarity,
	}
	if selected.Valid {
		cand.Selected = selected.Int64 != 0
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		cand.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		cand.UpdatedAt = updated
	}
	return cand, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
