package sqlite

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcrane13/jubileesync/internal/models"
	"github.com/jbcrane13/jubileesync/internal/store"
)

var t0 = time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleEntity(id string, status models.Status, modified time.Time) *models.Entity {
	return &models.Entity{
		ID:           id,
		Kind:         "report",
		LastModified: modified,
		Status:       status,
		Fields:       map[string]string{"species": "flounder", "count": "3"},
	}
}

func TestGet_NotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertGet_RoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	e := sampleEntity("e1", models.StatusPending, t0)
	e.Base = &models.Snapshot{
		LastModified: t0.Add(-time.Hour),
		Fields:       map[string]string{"species": "flounder"},
	}
	require.NoError(t, s.Upsert(ctx, e))

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)

	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Kind, got.Kind)
	assert.Equal(t, e.Status, got.Status)
	assert.False(t, got.Deleted)
	assert.Equal(t, e.Fields, got.Fields)
	assert.WithinDuration(t, e.LastModified, got.LastModified, 0)
	require.NotNil(t, got.Base)
	assert.WithinDuration(t, e.Base.LastModified, got.Base.LastModified, 0)
	assert.Equal(t, e.Base.Fields, got.Base.Fields)
}

func TestUpsert_NoBase(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleEntity("e1", models.StatusPending, t0)))

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, got.Base)
}

func TestUpsert_ReplacesExistingRow(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleEntity("e1", models.StatusPending, t0)))

	updated := sampleEntity("e1", models.StatusSynced, t0.Add(time.Minute))
	updated.Fields["count"] = "9"
	updated.Deleted = true
	require.NoError(t, s.Upsert(ctx, updated))

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	assert.Equal(t, "9", got.Fields["count"])
	assert.True(t, got.Deleted)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCompareAndUpsert(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleEntity("e1", models.StatusPending, t0)))

	synced := sampleEntity("e1", models.StatusSynced, t0)
	synced.Base = &models.Snapshot{LastModified: t0, Fields: synced.Fields}

	ok, err := s.CompareAndUpsert(ctx, synced, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.Status)
	require.NotNil(t, got.Base)

	// A row that moved on since the expected revision is left alone.
	require.NoError(t, s.Upsert(ctx, sampleEntity("e1", models.StatusPending, t0.Add(time.Minute))))

	ok, err = s.CompareAndUpsert(ctx, synced, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err = s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	// Missing rows never match.
	ok, err = s.CompareAndUpsert(ctx, sampleEntity("ghost", models.StatusSynced, t0), t0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateStatus(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleEntity("e1", models.StatusPending, t0)))
	require.NoError(t, s.UpdateStatus(ctx, "e1", models.StatusFailed))

	got, err := s.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)

	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", models.StatusFailed), store.ErrNotFound)
}

func TestFetchPending_FiltersAndOrders(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleEntity("newest", models.StatusPending, t0.Add(2*time.Minute))))
	require.NoError(t, s.Upsert(ctx, sampleEntity("oldest", models.StatusFailed, t0)))
	require.NoError(t, s.Upsert(ctx, sampleEntity("middle", models.StatusPendingUpload, t0.Add(time.Minute))))
	require.NoError(t, s.Upsert(ctx, sampleEntity("clean", models.StatusSynced, t0)))
	require.NoError(t, s.Upsert(ctx, sampleEntity("parked", models.StatusConflict, t0)))

	pending, err := s.FetchPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "oldest", pending[0].ID)
	assert.Equal(t, "middle", pending[1].ID)
	assert.Equal(t, "newest", pending[2].ID)

	n, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDelete_PurgesEntityAndOpenConflicts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleEntity("e1", models.StatusPending, t0)))

	open := models.NewConflictRecord("e1", models.Snapshot{}, models.Snapshot{}, models.StrategyManual, t0)
	require.NoError(t, s.SaveConflict(ctx, open))

	closed := models.NewConflictRecord("e1", models.Snapshot{}, models.Snapshot{}, models.StrategyManual, t0.Add(-time.Hour))
	closed.Close(models.OutcomeUseRemote, t0)
	require.NoError(t, s.SaveConflict(ctx, closed))

	require.NoError(t, s.Delete(ctx, "e1"))

	_, err := s.Get(ctx, "e1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Open conflicts go with the entity, resolved history stays.
	_, err = s.GetConflict(ctx, open.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	kept, err := s.GetConflict(ctx, closed.ID)
	require.NoError(t, err)
	assert.True(t, kept.Resolved())
}

func TestSaveConflict_RoundTripAndResolution(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	rec := models.NewConflictRecord("e1",
		models.Snapshot{LastModified: t0, Fields: map[string]string{"species": "mullet"}},
		models.Snapshot{LastModified: t0.Add(time.Minute), Fields: map[string]string{"species": "flounder"}},
		models.StrategyManual, t0.Add(2*time.Minute))
	require.NoError(t, s.SaveConflict(ctx, rec))

	got, err := s.GetConflict(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "e1", got.EntityID)
	assert.Equal(t, models.StrategyManual, got.Strategy)
	assert.Equal(t, map[string]string{"species": "mullet"}, got.Local.Fields)
	assert.Equal(t, map[string]string{"species": "flounder"}, got.Remote.Fields)
	assert.False(t, got.Resolved())

	// Closing the record updates outcome and resolved_at in place.
	rec.Close(models.OutcomeUseLocal, t0.Add(time.Hour))
	require.NoError(t, s.SaveConflict(ctx, rec))

	got, err = s.GetConflict(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUseLocal, got.Outcome)
	require.NotNil(t, got.ResolvedAt)
	assert.WithinDuration(t, t0.Add(time.Hour), *got.ResolvedAt, 0)
}

func TestListConflicts(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	older := models.NewConflictRecord("e1", models.Snapshot{}, models.Snapshot{}, models.StrategyManual, t0)
	older.Close(models.OutcomeUseRemote, t0.Add(time.Minute))
	newer := models.NewConflictRecord("e2", models.Snapshot{}, models.Snapshot{}, models.StrategyManual, t0.Add(time.Hour))

	require.NoError(t, s.SaveConflict(ctx, older))
	require.NoError(t, s.SaveConflict(ctx, newer))

	open, err := s.ListConflicts(ctx, false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, newer.ID, open[0].ID)

	all, err := s.ListConflicts(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Equal(t, older.ID, all[1].ID)
}

func TestMetadata_RoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	got, err := s.GetValue(ctx, "last_sync_date")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.SetValue(ctx, "last_sync_date", []byte("2025-07-20")))
	require.NoError(t, s.SetValue(ctx, "last_sync_date", []byte("2025-07-21")))

	got, err = s.GetValue(ctx, "last_sync_date")
	require.NoError(t, err)
	assert.Equal(t, []byte("2025-07-21"), got)
}
