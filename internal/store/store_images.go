package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewImage registers a shelf photo for processing. Re-ingesting the same path
// returns the existing row; a non-empty retailer hint replaces the stored one.
func (s *Store) NewImage(ctx context.Context, sourcePath, retailer string) (*Image, error) {
	if sourcePath == "" {
		return nil, errors.New("source path is empty")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO images (source_path, retailer, ingested_at) VALUES (?, ?, ?)
         ON CONFLICT(source_path) DO UPDATE SET retailer = excluded.retailer
         WHERE excluded.retailer != ''`,
		sourcePath,
		nullableString(retailer),
		timestamp,
	); err != nil {
		return nil, fmt.Errorf("insert image: %w", err)
	}

	return s.ImageByPath(ctx, sourcePath)
}

// ImageByID fetches a registered image by identifier.
func (s *Store) ImageByID(ctx context.Context, id int64) (*Image, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_path, retailer, ingested_at, detection_completed FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return img, nil
}

// ImageByPath fetches a registered image by source path.
func (s *Store) ImageByPath(ctx context.Context, sourcePath string) (*Image, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_path, retailer, ingested_at, detection_completed FROM images WHERE source_path = ?`, sourcePath)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get image by path: %w", err)
	}
	return img, nil
}

// ListImages returns all registered images ordered by ingestion time.
func (s *Store) ListImages(ctx context.Context) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_path, retailer, ingested_at, detection_completed FROM images ORDER BY ingested_at`)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// MarkDetectionCompleted records that the detector has run for an image.
func (s *Store) MarkDetectionCompleted(ctx context.Context, imageID int64) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE images SET detection_completed = 1 WHERE id = ?`, imageID); err != nil {
		return fmt.Errorf("mark detection completed: %w", err)
	}
	return nil
}

func scanImage(scanner interface{ Scan(dest ...any) error }) (*Image, error) {
	var (
		id          int64
		sourcePath  string
		retailer    sql.NullString
		ingestedRaw sql.NullString
		completed   sql.NullInt64
	)
	if err := scanner.Scan(&id, &sourcePath, &retailer, &ingestedRaw, &completed); err != nil {
		return nil, err
	}
	img := &Image{ID: id, SourcePath: sourcePath, Retailer: retailer.String}
	if completed.Valid {
		img.DetectionCompleted = completed.Int64 != 0
	}
	if ingested, err := parseTimeString(ingestedRaw.String); err == nil {
		img.IngestedAt = ingested
	}
	return img, nil
}
