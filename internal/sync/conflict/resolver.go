// Package conflict implements conflict detection and resolution for
// multi-device synchronization. Resolution is a pure decision: the resolver
// never writes to a store, it only produces an outcome and a record of it.
package conflict

import (
	"time"

	"github.com/jbcrane13/jubileesync/internal/models"
)

// FieldState classifies one field of a three-way comparison.
type FieldState int

const (
	FieldUnchanged FieldState = iota
	FieldChangedLocal
	FieldChangedRemote
	FieldChangedBoth
)

// Resolution is the resolver's decision for one conflicting pair. Merged is
// set only when Outcome is OutcomeMerged.
type Resolution struct {
	Outcome models.Outcome
	Merged  *models.Entity
}

// Resolver applies a configured strategy to conflicting entity pairs.
type Resolver struct {
	strategy models.Strategy
	clock    func() time.Time
}

// NewResolver returns a resolver using the given strategy. A nil clock
// defaults to time.Now.
func NewResolver(strategy models.Strategy, clock func() time.Time) *Resolver {
	if clock == nil {
		clock = time.Now
	}
	return &Resolver{strategy: strategy, clock: clock}
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() models.Strategy {
	return r.strategy
}

// Detect reports whether local and remote are in conflict. A conflict
// requires the domain fields to differ and both sides to have been mutated
// independently: each lastModified strictly newer than the common base, or
// no common base known. A change on only one side is a plain update.
func Detect(local, remote *models.Entity) bool {
	if local == nil || remote == nil {
		return false
	}
	if local.FieldsEqual(remote) {
		return false
	}
	base := local.Base
	if base == nil {
		return true
	}
	localChanged := local.LastModified.After(base.LastModified)
	remoteChanged := remote.LastModified.After(base.LastModified)
	return localChanged && remoteChanged
}

// Resolve decides the outcome for a conflicting pair and documents it in a
// ConflictRecord. Every outcome except manual closes the record
// immediately; manual leaves it open for an external decision.
func (r *Resolver) Resolve(local, remote *models.Entity) (Resolution, *models.ConflictRecord) {
	now := r.clock()
	rec := models.NewConflictRecord(local.ID, local.Snapshot(), remote.Snapshot(), r.strategy, now)

	var res Resolution
	switch r.strategy {
	case models.StrategyServerWins:
		res = Resolution{Outcome: models.OutcomeUseRemote}
	case models.StrategyClientWins:
		res = Resolution{Outcome: models.OutcomeUseLocal}
	case models.StrategyMostRecentWins:
		res = r.resolveMostRecent(local, remote)
	case models.StrategyFieldMerge:
		res = Resolution{Outcome: models.OutcomeMerged, Merged: mergeByRecency(local, remote)}
	case models.StrategyThreeWayMerge:
		res = Resolution{Outcome: models.OutcomeMerged, Merged: mergeThreeWay(local, remote)}
	case models.StrategyManual:
		res = Resolution{Outcome: models.OutcomeManual}
	default:
		res = r.resolveMostRecent(local, remote)
	}

	if res.Outcome != models.OutcomeManual {
		rec.Close(res.Outcome, now)
	}
	return res, rec
}

// resolveMostRecent compares whole-record timestamps. An exact tie resolves
// to the remote side, which is treated as authoritative.
func (r *Resolver) resolveMostRecent(local, remote *models.Entity) Resolution {
	if local.LastModified.After(remote.LastModified) {
		return Resolution{Outcome: models.OutcomeUseLocal}
	}
	return Resolution{Outcome: models.OutcomeUseRemote}
}

// mergeByRecency builds a merged entity taking every field from whichever
// side carries the more recent record timestamp, keeping fields only the
// other side has.
func mergeByRecency(local, remote *models.Entity) *models.Entity {
	winner, loser := remote, local
	if local.LastModified.After(remote.LastModified) {
		winner, loser = local, remote
	}

	merged := winner.Clone()
	for k, v := range loser.Fields {
		if _, ok := merged.Fields[k]; !ok {
			merged.Fields[k] = v
		}
	}
	merged.LastModified = laterOf(local.LastModified, remote.LastModified)
	return merged
}

// mergeThreeWay merges against the local base snapshot. Fields changed on
// one side take that side's value; fields changed on both sides fall back
// to whole-record recency. Without a base every differing field is treated
// as changed by both.
func mergeThreeWay(local, remote *models.Entity) *models.Entity {
	states := classifyFields(local, remote)

	recent := remote
	if local.LastModified.After(remote.LastModified) {
		recent = local
	}

	merged := local.Clone()
	merged.Fields = make(map[string]string, len(states))
	for name, state := range states {
		var value string
		var ok bool
		switch state {
		case FieldChangedLocal:
			value, ok = local.Fields[name]
		case FieldChangedRemote:
			value, ok = remote.Fields[name]
		case FieldChangedBoth:
			value, ok = recent.Fields[name]
		default:
			value, ok = local.Fields[name]
		}
		if ok {
			merged.Fields[name] = value
		}
	}
	merged.LastModified = laterOf(local.LastModified, remote.LastModified)
	return merged
}

// classifyFields computes the per-field state once per merge, over the
// union of base, local and remote field names.
func classifyFields(local, remote *models.Entity) map[string]FieldState {
	var baseFields map[string]string
	if local.Base != nil {
		baseFields = local.Base.Fields
	}

	names := make(map[string]struct{})
	for k := range baseFields {
		names[k] = struct{}{}
	}
	for k := range local.Fields {
		names[k] = struct{}{}
	}
	for k := range remote.Fields {
		names[k] = struct{}{}
	}

	states := make(map[string]FieldState, len(names))
	for name := range names {
		bv, hasBase := baseFields[name]
		lv, hasLocal := local.Fields[name]
		rv, hasRemote := remote.Fields[name]

		localChanged := hasLocal != hasBase || lv != bv
		remoteChanged := hasRemote != hasBase || rv != bv
		if local.Base == nil {
			// No ancestor to compare against.
			localChanged = true
			remoteChanged = true
		}

		switch {
		case localChanged && remoteChanged:
			states[name] = FieldChangedBoth
		case localChanged:
			states[name] = FieldChangedLocal
		case remoteChanged:
			states[name] = FieldChangedRemote
		default:
			states[name] = FieldUnchanged
		}
	}
	return states
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
