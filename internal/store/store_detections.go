package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewDetection inserts a detection produced by the confidence filter. It starts
// in the pending state awaiting enrichment.
func (s *Store) NewDetection(ctx context.Context, imageID int64, box Box, label string, confidence float64) (*Detection, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO detections (
            image_id, box_x1, box_y1, box_x2, box_y2, label, confidence,
            status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		imageID,
		box.X1,
		box.Y1,
		box.X2,
		box.Y2,
		nullableString(label),
		confidence,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert detection: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a detection by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Detection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+detectionColumns+` FROM detections WHERE id = ?`, id)
	det, err := scanDetection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get detection: %w", err)
	}
	return det, nil
}

// Update persists changes to an existing detection.
func (s *Store) Update(ctx context.Context, det *Detection) error {
	if det == nil {
		return errors.New("detection is nil")
	}
	det.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE detections
         SET image_id = ?, box_x1 = ?, box_y1 = ?, box_x2 = ?, box_y2 = ?,
             label = ?, confidence = ?, status = ?, brand_name = ?, product_name = ?,
             category = ?, size = ?, description = ?, field_confidence_json = ?,
             is_product = ?, details_visible = ?, extraction_notes = ?,
             selected_candidate_id = ?, fully_analyzed = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		det.ImageID,
		det.Box.X1,
		det.Box.Y1,
		det.Box.X2,
		det.Box.Y2,
		nullableString(det.Label),
		det.Confidence,
		det.Status,
		nullableString(det.BrandName),
		nullableString(det.ProductName),
		nullableString(det.Category),
		nullableString(det.Size),
		nullableString(det.Description),
		nullableString(det.FieldConfidenceJSON),
		boolToInt(det.IsProduct),
		boolToInt(det.DetailsVisible),
		nullableString(det.ExtractionNotes),
		nullableString(det.SelectedCandidateID),
		boolToInt(det.FullyAnalyzed),
		nullableString(det.ErrorMessage),
		det.UpdatedAt.Format(time.RFC3339Nano),
		det.ID,
	); err != nil {
		return fmt.Errorf("update detection: %w", err)
	}
	return nil
}

// TransitionStatus moves a detection from one status to another atomically.
// It returns false when the detection was not in the expected status, which
// lets concurrent workers race for the same item without double-processing.
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE detections SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("transition detection %d %s -> %s: %w", id, from, to, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkErrored records a failure message and moves the detection to errored.
func (s *Store) MarkErrored(ctx context.Context, id int64, message string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE detections SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		StatusErrored,
		nullableString(message),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("mark errored: %w", err)
	}
	return nil
}

// ListByStatus returns detections matching a status ordered by creation time.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]*Detection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+detectionColumns+` FROM detections WHERE status = ? ORDER BY created_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()
	return collectDetections(rows)
}

// ListForImage returns all detections belonging to an image.
func (s *Store) ListForImage(ctx context.Context, imageID int64) ([]*Detection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+detectionColumns+` FROM detections WHERE image_id = ? ORDER BY id`, imageID)
	if err != nil {
		return nil, fmt.Errorf("query by image: %w", err)
	}
	defer rows.Close()
	return collectDetections(rows)
}

// List returns detections filtered by status set (or all detections when no
// status is provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Detection, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + detectionColumns + ` FROM detections`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()
	return collectDetections(rows)
}

func collectDetections(rows *sql.Rows) ([]*Detection, error) {
	var detections []*Detection
	for rows.Next() {
		det, err := scanDetection(rows)
		if err != nil {
			return nil, err
		}
		detections = append(detections, det)
	}
	return detections, rows.Err()
}
