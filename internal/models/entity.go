// Package models defines the types the sync core moves between the local
// store, the remote store and the conflict resolver.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks where an entity is in the sync lifecycle.
type Status string

const (
	StatusPending       Status = "pending"
	StatusSynced        Status = "synced"
	StatusPendingUpload Status = "pending_upload"
	StatusConflict      Status = "conflict"
	StatusFailed        Status = "failed"
)

// Priority is the queue tier of a pending change. Lower values drain first.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// Snapshot is an immutable copy of an entity's domain fields at a point in
// time. The snapshot taken at the last successful sync serves as the common
// ancestor for three-way merges.
type Snapshot struct {
	LastModified time.Time         `json:"last_modified"`
	Fields       map[string]string `json:"fields"`
}

// Entity is the unit of synchronization. Domain fields are opaque to the
// core beyond equality and merge comparison; bookkeeping fields (Status,
// Base) never take part in conflict detection.
type Entity struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	LastModified time.Time         `json:"last_modified"`
	Status       Status            `json:"status"`
	Deleted      bool              `json:"deleted"`
	Fields       map[string]string `json:"fields"`
	Base         *Snapshot         `json:"base,omitempty"`
}

// NewEntity creates an entity with a fresh id, marked pending.
func NewEntity(kind string, fields map[string]string, now time.Time) *Entity {
	return &Entity{
		ID:           uuid.NewString(),
		Kind:         kind,
		LastModified: now,
		Status:       StatusPending,
		Fields:       copyFields(fields),
	}
}

// Snapshot captures the entity's current domain state.
func (e *Entity) Snapshot() Snapshot {
	return Snapshot{
		LastModified: e.LastModified,
		Fields:       copyFields(e.Fields),
	}
}

// Clone returns a deep copy so resolver outcomes never alias caller state.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Fields = copyFields(e.Fields)
	if e.Base != nil {
		b := Snapshot{LastModified: e.Base.LastModified, Fields: copyFields(e.Base.Fields)}
		c.Base = &b
	}
	return &c
}

// FieldsEqual reports whether two entities carry the same domain fields.
func (e *Entity) FieldsEqual(other *Entity) bool {
	if other == nil {
		return false
	}
	return fieldsEqual(e.Fields, other.Fields)
}

func fieldsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func copyFields(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
