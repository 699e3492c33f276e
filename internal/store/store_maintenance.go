package store

import (
	"context"
	"fmt"
	"time"
)

// Stats returns a count of detections grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM detections GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("detection stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates detection state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusErrored:
			health.Errored += count
		case StatusDone:
			health.Done += count
		default:
			if status.IsProcessing() {
				health.Processing += count
			}
		}
	}
	return health, nil
}

// ResetStuckProcessing returns detections stranded in processing states back
// to pending. Every stage is idempotent from the start, so a rerun only costs
// repeated external calls.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE detections
         SET status = ?, updated_at = ?
         WHERE status IN (?, ?, ?, ?)`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusExtracting,
		StatusSearching,
		StatusPreFiltering,
		StatusVisualMatching,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck detections: %w", err)
	}
	return res.RowsAffected()
}

// RetryErrored moves errored detections back to pending for reprocessing.
// With ids it retries only those detections; without, every errored one.
func (s *Store) RetryErrored(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE detections SET status = ?, error_message = NULL, updated_at = ? WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusErrored,
		)
		if err != nil {
			return 0, fmt.Errorf("retry errored detections: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, timestamp, StatusErrored)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE detections SET status = ?, error_message = NULL, updated_at = ?
         WHERE status = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected detections: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all images, detections, and candidate rows.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM detections`)
	if err != nil {
		return 0, fmt.Errorf("clear detections: %w", err)
	}
	if err := s.execWithoutResultRetry(ctx, `DELETE FROM images`); err != nil {
		return 0, fmt.Errorf("clear images: %w", err)
	}
	return res.RowsAffected()
}
