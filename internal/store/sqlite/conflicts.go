package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jbcrane13/jubileesync/internal/models"
	"github.com/jbcrane13/jubileesync/internal/store"
)

// SaveConflict inserts or updates a conflict record.
func (s *Store) SaveConflict(ctx context.Context, rec *models.ConflictRecord) error {
	local, err := json.Marshal(rec.Local)
	if err != nil {
		return fmt.Errorf("failed to encode local snapshot: %w", err)
	}
	remote, err := json.Marshal(rec.Remote)
	if err != nil {
		return fmt.Errorf("failed to encode remote snapshot: %w", err)
	}

	var resolvedAt sql.NullInt64
	if rec.ResolvedAt != nil {
		resolvedAt = sql.NullInt64{Int64: rec.ResolvedAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, entity_id, local_snapshot, remote_snapshot, detected_at, strategy, outcome, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			outcome = excluded.outcome,
			resolved_at = excluded.resolved_at`,
		rec.ID, rec.EntityID, string(local), string(remote),
		rec.DetectedAt.UnixNano(), string(rec.Strategy), string(rec.Outcome), resolvedAt)
	if err != nil {
		return fmt.Errorf("failed to save conflict %s: %w", rec.ID, err)
	}
	return nil
}

// GetConflict returns one record by id, or store.ErrNotFound.
func (s *Store) GetConflict(ctx context.Context, id string) (*models.ConflictRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, entity_id, local_snapshot, remote_snapshot, detected_at, strategy, outcome, resolved_at
		FROM conflicts WHERE id = ?`, id)
	rec, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict %s: %w", id, err)
	}
	return rec, nil
}

// ListConflicts returns conflict history, newest first. With
// includeResolved false only open records are returned.
func (s *Store) ListConflicts(ctx context.Context, includeResolved bool) ([]*models.ConflictRecord, error) {
	query := `
		SELECT id, entity_id, local_snapshot, remote_snapshot, detected_at, strategy, outcome, resolved_at
		FROM conflicts`
	if !includeResolved {
		query += ` WHERE resolved_at IS NULL`
	}
	query += ` ORDER BY detected_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.ConflictRecord
	for rows.Next() {
		rec, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict row: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conflict rows: %w", err)
	}
	return result, nil
}

func scanConflict(row rowScanner) (*models.ConflictRecord, error) {
	var (
		rec        models.ConflictRecord
		local      string
		remote     string
		detectedAt int64
		strategy   string
		outcome    string
		resolvedAt sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.EntityID, &local, &remote, &detectedAt, &strategy, &outcome, &resolvedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(local), &rec.Local); err != nil {
		return nil, fmt.Errorf("decoding local snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(remote), &rec.Remote); err != nil {
		return nil, fmt.Errorf("decoding remote snapshot: %w", err)
	}
	rec.DetectedAt = time.Unix(0, detectedAt)
	rec.Strategy = models.Strategy(strategy)
	rec.Outcome = models.Outcome(outcome)
	if resolvedAt.Valid {
		t := time.Unix(0, resolvedAt.Int64)
		rec.ResolvedAt = &t
	}
	return &rec, nil
}
