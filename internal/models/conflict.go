package models

import (
	"time"

	"github.com/google/uuid"
)

// Strategy selects how a detected conflict is resolved. The caller picks
// the strategy; it is never auto-detected.
type Strategy string

const (
	StrategyServerWins     Strategy = "server_wins"
	StrategyClientWins     Strategy = "client_wins"
	StrategyMostRecentWins Strategy = "most_recent_wins"
	StrategyFieldMerge     Strategy = "field_merge"
	StrategyThreeWayMerge  Strategy = "three_way_merge"
	StrategyManual         Strategy = "manual"
)

// Outcome is the decision produced by the resolver.
type Outcome string

const (
	OutcomeUseLocal  Outcome = "use_local"
	OutcomeUseRemote Outcome = "use_remote"
	OutcomeMerged    Outcome = "merged"
	OutcomeManual    Outcome = "manual"
)

// ConflictRecord documents one detected conflict. Automatic resolutions set
// ResolvedAt immediately; manual ones leave it nil until an external
// decision closes the record.
type ConflictRecord struct {
	ID         string
	EntityID   string
	Local      Snapshot
	Remote     Snapshot
	DetectedAt time.Time
	Strategy   Strategy
	Outcome    Outcome
	ResolvedAt *time.Time
}

// NewConflictRecord starts an open record for the given pair of snapshots.
func NewConflictRecord(entityID string, local, remote Snapshot, strategy Strategy, detectedAt time.Time) *ConflictRecord {
	return &ConflictRecord{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		Local:      local,
		Remote:     remote,
		DetectedAt: detectedAt,
		Strategy:   strategy,
	}
}

// Close marks the record resolved with the given outcome.
func (r *ConflictRecord) Close(outcome Outcome, at time.Time) {
	r.Outcome = outcome
	r.ResolvedAt = &at
}

// Resolved reports whether the record has been closed.
func (r *ConflictRecord) Resolved() bool {
	return r.ResolvedAt != nil
}
