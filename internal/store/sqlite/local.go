package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jbcrane13/jubileesync/internal/dbx"
	"github.com/jbcrane13/jubileesync/internal/models"
	"github.com/jbcrane13/jubileesync/internal/store"
)

// Get returns the entity with the given id, or store.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, last_modified, status, deleted, fields, base_last_modified, base_fields
		FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	return e, nil
}

// Upsert writes the entity, replacing any previous row.
func (s *Store) Upsert(ctx context.Context, e *models.Entity) error {
	fields, baseModified, baseFields, err := encodeEntity(e)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (id, kind, last_modified, status, deleted, fields, base_last_modified, base_fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			last_modified = excluded.last_modified,
			status = excluded.status,
			deleted = excluded.deleted,
			fields = excluded.fields,
			base_last_modified = excluded.base_last_modified,
			base_fields = excluded.base_fields`,
		e.ID, e.Kind, e.LastModified.UnixNano(), string(e.Status), boolToInt(e.Deleted),
		fields, baseModified, baseFields)
	if err != nil {
		return fmt.Errorf("failed to upsert entity %s: %w", e.ID, err)
	}
	return nil
}

// CompareAndUpsert updates the entity only when the stored row still has the
// expected last_modified revision. Reports whether the write applied.
func (s *Store) CompareAndUpsert(ctx context.Context, e *models.Entity, expected time.Time) (bool, error) {
	fields, baseModified, baseFields, err := encodeEntity(e)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE entities SET
			kind = ?,
			last_modified = ?,
			status = ?,
			deleted = ?,
			fields = ?,
			base_last_modified = ?,
			base_fields = ?
		WHERE id = ? AND last_modified = ?`,
		e.Kind, e.LastModified.UnixNano(), string(e.Status), boolToInt(e.Deleted),
		fields, baseModified, baseFields,
		e.ID, expected.UnixNano())
	if err != nil {
		return false, fmt.Errorf("failed to conditionally upsert entity %s: %w", e.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check conditional upsert of %s: %w", e.ID, err)
	}
	return n > 0, nil
}

func encodeEntity(e *models.Entity) (fields string, baseModified sql.NullInt64, baseFields any, err error) {
	raw, err := json.Marshal(e.Fields)
	if err != nil {
		return "", sql.NullInt64{}, nil, fmt.Errorf("failed to encode fields for %s: %w", e.ID, err)
	}
	fields = string(raw)

	var rawBase []byte
	if e.Base != nil {
		baseModified = sql.NullInt64{Int64: e.Base.LastModified.UnixNano(), Valid: true}
		rawBase, err = json.Marshal(e.Base.Fields)
		if err != nil {
			return "", sql.NullInt64{}, nil, fmt.Errorf("failed to encode base fields for %s: %w", e.ID, err)
		}
	}
	return fields, baseModified, nullableBytes(rawBase), nil
}

// UpdateStatus sets only the sync status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	res, err := s.db.ExecContext(ctx, `UPDATE entities SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete purges an entity together with its open conflict records.
func (s *Store) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete entity %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM conflicts WHERE entity_id = ? AND resolved_at IS NULL`, id); err != nil {
			return fmt.Errorf("failed to drop open conflicts of %s: %w", id, err)
		}
		return nil
	})
}

// FetchPending returns entities awaiting upload, oldest change first.
func (s *Store) FetchPending(ctx context.Context) ([]*models.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, last_modified, status, deleted, fields, base_last_modified, base_fields
		FROM entities
		WHERE status IN (?, ?, ?)
		ORDER BY last_modified ASC`,
		string(models.StatusPending), string(models.StatusPendingUpload), string(models.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending entities: %w", err)
	}
	defer rows.Close()

	var result []*models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entity rows: %w", err)
	}
	return result, nil
}

// PendingCount counts entities awaiting upload without loading them.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entities WHERE status IN (?, ?, ?)`,
		string(models.StatusPending), string(models.StatusPendingUpload), string(models.StatusFailed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending entities: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var (
		e            models.Entity
		status       string
		deleted      int
		lastModified int64
		fields       string
		baseModified sql.NullInt64
		baseFields   sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Kind, &lastModified, &status, &deleted, &fields, &baseModified, &baseFields); err != nil {
		return nil, err
	}
	e.LastModified = time.Unix(0, lastModified)
	e.Status = models.Status(status)
	e.Deleted = deleted != 0
	if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
		return nil, fmt.Errorf("decoding fields: %w", err)
	}
	if baseModified.Valid {
		base := models.Snapshot{LastModified: time.Unix(0, baseModified.Int64)}
		if baseFields.Valid {
			if err := json.Unmarshal([]byte(baseFields.String), &base.Fields); err != nil {
				return nil, fmt.Errorf("decoding base fields: %w", err)
			}
		}
		e.Base = &base
	}
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
