package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// UpsertCandidateResult inserts or refreshes a candidate row for a detection
// and stage. Concurrent writers for the same key converge on the stronger
// match verdict and the higher similarity, so retried stages never downgrade
// a finished comparison.
func (s *Store) UpsertCandidateResult(ctx context.Context, cand *CandidateResult) error {
	if cand == nil {
		return errors.New("candidate is nil")
	}
	if cand.DetectionID == 0 || cand.CandidateID == "" {
		return errors.New("candidate requires detection id and candidate id")
	}
	if cand.Stage == "" {
		return errors.New("candidate requires a stage")
	}
	if cand.MatchStatus == "" {
		cand.MatchStatus = MatchPending
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO candidate_results (
            detection_id, candidate_id, name, brand, retailer, image_url,
            score, stage, match_status, visual_similarity, selected,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(detection_id, candidate_id, stage) DO UPDATE SET
            name = excluded.name,
            brand = excluded.brand,
            retailer = excluded.retailer,
            image_url = excluded.image_url,
            score = excluded.score,
            match_status = CASE
                WHEN excluded.match_status = 'identical' THEN excluded.match_status
                WHEN excluded.match_status = 'similar' AND candidate_results.match_status NOT IN ('identical') THEN excluded.match_status
                WHEN excluded.match_status = 'no_match' AND candidate_results.match_status NOT IN ('identical', 'similar') THEN excluded.match_status
                ELSE candidate_results.match_status
            END,
            visual_similarity = MAX(candidate_results.visual_similarity, excluded.visual_similarity),
            updated_at = excluded.updated_at`,
		cand.DetectionID,
		cand.CandidateID,
		nullableString(cand.Name),
		nullableString(cand.Brand),
		nullableString(cand.Retailer),
		nullableString(cand.ImageURL),
		cand.Score,
		cand.Stage,
		cand.MatchStatus,
		cand.VisualSimilarity,
		boolToInt(cand.Selected),
		timestamp,
		timestamp,
	); err != nil {
		return fmt.Errorf("upsert candidate: %w", err)
	}
	return nil
}

// CandidatesForStage returns a detection's candidates at a stage ordered by
// descending score.
func (s *Store) CandidatesForStage(ctx context.Context, detectionID int64, stage Stage) ([]*CandidateResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidate_results
         WHERE detection_id = ? AND stage = ?
         ORDER BY score DESC, candidate_id`,
		detectionID, stage)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*CandidateResult
	for rows.Next() {
		cand, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	return candidates, rows.Err()
}

// SelectCandidate marks one visual-match candidate as the final pick. Any
// previously selected row for the detection is cleared in the same
// transaction so at most one row stays selected.
func (s *Store) SelectCandidate(ctx context.Context, detectionID int64, candidateID string) error {
	if candidateID == "" {
		return errors.New("candidate id is empty")
	}
	ctx = ensureContext(ctx)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin select tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		timestamp := time.Now().UTC().Format(time.RFC3339Nano)

		if _, err := tx.ExecContext(ctx,
			`UPDATE candidate_results SET selected = 0, updated_at = ?
             WHERE detection_id = ? AND selected = 1`,
			timestamp, detectionID); err != nil {
			return fmt.Errorf("clear previous selection: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE candidate_results SET selected = 1, updated_at = ?
             WHERE detection_id = ? AND candidate_id = ? AND stage = ?`,
			timestamp, detectionID, candidateID, StageVisualMatch)
		if err != nil {
			return fmt.Errorf("mark selection: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("candidate %s has no visual_match row for detection %d", candidateID, detectionID)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE detections SET selected_candidate_id = ?, updated_at = ? WHERE id = ?`,
			candidateID, timestamp, detectionID); err != nil {
			return fmt.Errorf("record selection on detection: %w", err)
		}

		return tx.Commit()
	})
}

// MarkFullyAnalyzed flags a detection whose visual matching finished with a
// selected candidate. It is safe to call more than once.
func (s *Store) MarkFullyAnalyzed(ctx context.Context, detectionID int64) error {
	if err := s.execWithoutResultRetry(ctx,
		`UPDATE detections SET fully_analyzed = 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), detectionID); err != nil {
		return fmt.Errorf("mark fully analyzed: %w", err)
	}
	return nil
}

// SelectedCandidate returns the selected candidate for a detection, or nil
// when no selection has been made.
func (s *Store) SelectedCandidate(ctx context.Context, detectionID int64) (*CandidateResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidate_results
         WHERE detection_id = ? AND selected = 1 LIMIT 1`,
		detectionID)
	if err != nil {
		return nil, fmt.Errorf("query selected candidate: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	cand, err := scanCandidate(rows)
	if err != nil {
		return nil, err
	}
	return cand, rows.Err()
}
