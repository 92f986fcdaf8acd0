// Package store defines the collaborator boundaries of the sync core: a
// local persistent store and a remote keyed record store. Implementations
// live in the sqlite and s3 subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jbcrane13/jubileesync/internal/models"
)

var ErrNotFound = errors.New("not found")

// AccountStatus mirrors the remote system's account precondition.
type AccountStatus int

const (
	AccountUnknown AccountStatus = iota
	AccountAvailable
	AccountNoAccount
	AccountRestricted
)

func (s AccountStatus) String() string {
	switch s {
	case AccountAvailable:
		return "available"
	case AccountNoAccount:
		return "no_account"
	case AccountRestricted:
		return "restricted"
	}
	return "unknown"
}

// Record is the remote-wire representation of an entity. The remote store
// is opaque beyond this keyed shape.
type Record struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	LastModified time.Time         `json:"last_modified"`
	Deleted      bool              `json:"deleted"`
	Fields       map[string]string `json:"fields"`
}

// RecordFromEntity strips bookkeeping state down to the wire shape.
func RecordFromEntity(e *models.Entity) Record {
	fields := make(map[string]string, len(e.Fields))
	for k, v := range e.Fields {
		fields[k] = v
	}
	return Record{
		ID:           e.ID,
		Kind:         e.Kind,
		LastModified: e.LastModified,
		Deleted:      e.Deleted,
		Fields:       fields,
	}
}

// Entity converts a downloaded record into a local entity marked synced,
// with the record itself captured as the new merge base.
func (r Record) Entity() *models.Entity {
	e := &models.Entity{
		ID:           r.ID,
		Kind:         r.Kind,
		LastModified: r.LastModified,
		Status:       models.StatusSynced,
		Deleted:      r.Deleted,
		Fields:       r.Fields,
	}
	base := e.Snapshot()
	e.Base = &base
	return e
}

// RecordResult is the per-record outcome of a save or delete call.
type RecordResult struct {
	ID  string
	Err error
}

// Remote is the remote multi-device store. Calls block on network I/O;
// timeout and retry are the implementation's concern, the core only reacts
// to per-record success or error.
type Remote interface {
	// AccountStatus checks the account precondition before any I/O.
	AccountStatus(ctx context.Context) (AccountStatus, error)

	// Query returns records modified since the given watermark.
	Query(ctx context.Context, since time.Time) ([]Record, error)

	// Save writes records and reports a result per record. One record's
	// rejection never fails the call.
	Save(ctx context.Context, records []Record) ([]RecordResult, error)

	// Delete removes records by id, one result per id.
	Delete(ctx context.Context, ids []string) ([]RecordResult, error)
}

// Local is the local persistent store, the sole source of truth between
// passes. Implementations must be safe for concurrent use so application
// writers and a running pass never block each other.
type Local interface {
	Get(ctx context.Context, id string) (*models.Entity, error)
	Upsert(ctx context.Context, e *models.Entity) error

	// CompareAndUpsert writes e only when the stored row still carries the
	// expected last-modified revision, reporting whether the write applied.
	// Lets a sync pass commit results without clobbering a concurrent
	// application write.
	CompareAndUpsert(ctx context.Context, e *models.Entity, expected time.Time) (bool, error)

	UpdateStatus(ctx context.Context, id string, status models.Status) error

	// Delete purges an entity, used once a tombstone has been acknowledged
	// by the remote store.
	Delete(ctx context.Context, id string) error

	// FetchPending returns entities awaiting upload (pending or failed),
	// oldest first.
	FetchPending(ctx context.Context) ([]*models.Entity, error)

	// PendingCount is the cheap form of FetchPending used for gating.
	PendingCount(ctx context.Context) (int, error)

	// Conflict history, kept so the app layer can present it.
	SaveConflict(ctx context.Context, rec *models.ConflictRecord) error
	GetConflict(ctx context.Context, id string) (*models.ConflictRecord, error)
	ListConflicts(ctx context.Context, includeResolved bool) ([]*models.ConflictRecord, error)
}
