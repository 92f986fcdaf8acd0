// Package sync orchestrates one synchronization pass between the local and
// remote stores: pull remote changes, detect and resolve conflicts, push
// pending local changes, update sync status and emit lifecycle events.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/jbcrane13/jubileesync/internal/logging"
	"github.com/jbcrane13/jubileesync/internal/models"
	"github.com/jbcrane13/jubileesync/internal/store"
	"github.com/jbcrane13/jubileesync/internal/sync/conflict"
	"github.com/jbcrane13/jubileesync/internal/sync/queue"
)

// DefaultBatchSize bounds one upload round-trip. Keeping batches small
// avoids memory and network spikes and keeps each remote call inside
// typical background-execution time budgets.
const DefaultBatchSize = 50

// Watermarks persists the pull watermark between passes.
type Watermarks interface {
	LastSyncDate(ctx context.Context) (time.Time, error)
	SetLastSyncDate(ctx context.Context, t time.Time) error
}

// Options tune an Engine. Zero values fall back to defaults.
type Options struct {
	BatchSize int
	Clock     func() time.Time
	Logger    logging.Logger
}

// Engine runs sync passes. Only one pass may run at a time; a second
// invocation is rejected with ErrAlreadySyncing. The engine contains no
// internal parallel fan-out: a pass is a single logical task.
type Engine struct {
	local    store.Local
	remote   store.Remote
	queue    *queue.Queue
	resolver *conflict.Resolver
	marks    Watermarks
	log      logging.Logger
	clock    func() time.Time

	batchSize int

	mu      stdsync.Mutex
	syncing bool

	events notifier
}

// New wires an engine from its collaborators.
func New(local store.Local, remote store.Remote, q *queue.Queue, resolver *conflict.Resolver, marks Watermarks, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop{}
	}
	return &Engine{
		local:     local,
		remote:    remote,
		queue:     q,
		resolver:  resolver,
		marks:     marks,
		log:       opts.Logger,
		clock:     opts.Clock,
		batchSize: opts.BatchSize,
	}
}

// Subscribe registers an observer for lifecycle events and returns an
// unsubscribe function. Observers run synchronously in registration order.
func (e *Engine) Subscribe(fn func(Event)) func() {
	return e.events.subscribe(fn)
}

// Syncing reports whether a pass is currently running.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// Sync runs one full pass. Precondition failures abort before any I/O and
// are returned as whole-pass errors; per-record failures are aggregated
// into the result instead. Cancellation is cooperative: it is checked
// between batches, never mid-record, so no entity is left in an ambiguous
// state.
func (e *Engine) Sync(ctx context.Context) (*models.SyncResult, error) {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return nil, ErrAlreadySyncing
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	e.events.emit(Event{Kind: EventStarted})

	result := &models.SyncResult{StartedAt: e.clock()}

	if err := e.checkPreconditions(ctx); err != nil {
		e.log.Warn(ctx, "sync pass aborted", "reason", err)
		e.events.emit(Event{Kind: EventFailed, Err: err})
		return nil, err
	}

	since, err := e.marks.LastSyncDate(ctx)
	if err != nil {
		err = fmt.Errorf("reading watermark: %w", err)
		e.events.emit(Event{Kind: EventFailed, Err: err})
		return nil, err
	}

	// Pull is fully processed before any upload so conflict detection sees
	// the freshest remote state.
	handled, err := e.pull(ctx, since, result)
	if err != nil {
		e.events.emit(Event{Kind: EventFailed, Err: err})
		return nil, err
	}

	if err := e.drain(ctx, handled, result); err != nil {
		e.events.emit(Event{Kind: EventFailed, Err: err})
		return nil, err
	}

	result.FinishedAt = e.clock()
	if err := e.marks.SetLastSyncDate(ctx, result.FinishedAt); err != nil {
		err = fmt.Errorf("storing watermark: %w", err)
		e.events.emit(Event{Kind: EventFailed, Err: err})
		return nil, err
	}

	e.log.Info(ctx, "sync pass finished",
		"uploaded", result.Uploaded,
		"downloaded", result.Downloaded,
		"conflicts", result.Conflicts,
		"errors", len(result.Errors))
	e.events.emit(Event{Kind: EventCompleted, Result: result})
	return result, nil
}

// checkPreconditions fails fast before any partial work is attempted.
func (e *Engine) checkPreconditions(ctx context.Context) error {
	status, err := e.remote.AccountStatus(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	if status != store.AccountAvailable {
		return fmt.Errorf("%w: account status %s", ErrAuthenticationRequired, status)
	}
	return nil
}

// pull downloads remote changes since the watermark and reconciles each one
// against its local counterpart. Returns the set of entity ids that need no
// further handling during the upload drain.
func (e *Engine) pull(ctx context.Context, since time.Time, result *models.SyncResult) (map[string]bool, error) {
	records, err := e.remote.Query(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("pulling remote changes: %w", err)
	}

	handled := make(map[string]bool, len(records))
	for _, rec := range records {
		if err := e.applyRemote(ctx, rec, result, handled); err != nil {
			result.Errors = append(result.Errors, models.RecordError{EntityID: rec.ID, Message: err.Error()})
			e.log.Warn(ctx, "failed to apply remote record", "id", rec.ID, "err", err)
		}
	}
	return handled, nil
}

// applyRemote reconciles one incoming record.
func (e *Engine) applyRemote(ctx context.Context, rec store.Record, result *models.SyncResult, handled map[string]bool) error {
	local, err := e.local.Get(ctx, rec.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if rec.Deleted {
			// Tombstone for a record we never had.
			handled[rec.ID] = true
			return nil
		}
		if err := e.local.Upsert(ctx, rec.Entity()); err != nil {
			return err
		}
		result.Downloaded++
		handled[rec.ID] = true
		return nil
	case err != nil:
		return err
	}

	if local.Status == models.StatusSynced {
		// Clean local copy: the remote side simply wins.
		if rec.Deleted {
			if err := e.local.Delete(ctx, rec.ID); err != nil {
				return err
			}
		} else if err := e.local.Upsert(ctx, rec.Entity()); err != nil {
			return err
		}
		result.Downloaded++
		handled[rec.ID] = true
		return nil
	}

	if local.Status == models.StatusConflict {
		// Blocked on an earlier manual decision; leave untouched.
		handled[rec.ID] = true
		return nil
	}

	remoteEnt := rec.Entity()

	if !conflict.Detect(local, remoteEnt) {
		return e.applyPlainUpdate(ctx, local, remoteEnt, result, handled)
	}

	resolution, conflictRec := e.resolver.Resolve(local, remoteEnt)
	if err := e.local.SaveConflict(ctx, conflictRec); err != nil {
		return err
	}
	result.Conflicts++

	switch resolution.Outcome {
	case models.OutcomeUseRemote:
		if err := e.local.Upsert(ctx, remoteEnt); err != nil {
			return err
		}
		handled[rec.ID] = true
	case models.OutcomeUseLocal:
		// Local copy stands and still needs uploading; refresh its base so
		// the next pass does not re-detect the same conflict.
		kept := local.Clone()
		base := remoteEnt.Snapshot()
		kept.Base = &base
		kept.Status = models.StatusPending
		if err := e.local.Upsert(ctx, kept); err != nil {
			return err
		}
		e.queue.Enqueue(kept.ID, models.PriorityHigh)
	case models.OutcomeMerged:
		merged := resolution.Merged
		base := remoteEnt.Snapshot()
		merged.Base = &base
		merged.Status = models.StatusPending
		if err := e.local.Upsert(ctx, merged); err != nil {
			return err
		}
		e.queue.Enqueue(merged.ID, models.PriorityHigh)
	case models.OutcomeManual:
		if err := e.local.UpdateStatus(ctx, local.ID, models.StatusConflict); err != nil {
			return err
		}
		handled[rec.ID] = true
	}
	return nil
}

// applyPlainUpdate handles a dirty local copy that is not in conflict with
// the incoming record: either both sides already agree, only the remote
// side changed, or only the local side changed.
func (e *Engine) applyPlainUpdate(ctx context.Context, local, remoteEnt *models.Entity, result *models.SyncResult, handled map[string]bool) error {
	if local.FieldsEqual(remoteEnt) {
		// Same content on both sides; just align bookkeeping.
		if err := e.local.Upsert(ctx, remoteEnt); err != nil {
			return err
		}
		handled[local.ID] = true
		return nil
	}

	base := local.Base
	localChanged := base == nil || local.LastModified.After(base.LastModified)
	if !localChanged {
		// Only the remote side moved: plain overwrite.
		if err := e.local.Upsert(ctx, remoteEnt); err != nil {
			return err
		}
		result.Downloaded++
		handled[local.ID] = true
		return nil
	}

	// Only the local side moved; keep it pending for the upload drain.
	return nil
}

// drain uploads locally pending changes in batches. One record's rejection
// never aborts the batch or the pass. Cancellation is honored between
// batches only.
func (e *Engine) drain(ctx context.Context, handled map[string]bool, result *models.SyncResult) error {
	total := e.queue.Len()
	processed := 0

	// An entity may be queued more than once, e.g. an app enqueue plus a
	// conflict re-enqueue. Only the first entry is acted on.
	seen := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := e.queue.DequeueBatch(e.batchSize)
		if len(batch) == 0 {
			return nil
		}

		var upload []*models.Entity
		var deletions []*models.Entity
		selected := make(map[string]queue.Entry)
		for _, entry := range batch {
			processed++
			if handled[entry.EntityID] || seen[entry.EntityID] {
				continue
			}
			seen[entry.EntityID] = true
			ent, err := e.local.Get(ctx, entry.EntityID)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				result.Errors = append(result.Errors, models.RecordError{EntityID: entry.EntityID, Message: err.Error()})
				continue
			}
			switch ent.Status {
			case models.StatusPending, models.StatusPendingUpload, models.StatusFailed:
				selected[ent.ID] = entry
				if ent.Deleted {
					deletions = append(deletions, ent)
				} else {
					upload = append(upload, ent)
				}
			}
		}

		st := &pushState{acked: make(map[string]bool)}
		if err := e.push(ctx, upload, result, st); err != nil {
			e.requeueUnacked(selected, st.acked)
			return err
		}
		// Entities edited while the batch was on the wire go back on the
		// queue so the new revision uploads before the pass ends.
		for _, id := range st.stale {
			delete(seen, id)
			e.queue.Enqueue(id, selected[id].Priority)
		}
		if err := e.pushDeletes(ctx, deletions, result, st); err != nil {
			e.requeueUnacked(selected, st.acked)
			return err
		}

		if total > 0 {
			progress := float64(processed) / float64(total)
			if progress > 1 {
				progress = 1
			}
			e.events.emit(Event{Kind: EventProgress, Progress: progress})
		}
	}
}

// pushState tracks how far one batch got: which entries the remote
// acknowledged (success or per-record rejection, either way committed
// locally) and which were edited locally while the batch was in flight.
type pushState struct {
	acked map[string]bool
	stale []string
}

// requeueUnacked returns entries the remote never acknowledged to the queue
// at their prior priority. A transport failure mid-pass defers the work, it
// never drops it.
func (e *Engine) requeueUnacked(selected map[string]queue.Entry, acked map[string]bool) {
	for id, entry := range selected {
		if !acked[id] {
			e.queue.Enqueue(id, entry.Priority)
		}
	}
}

// push saves one batch and commits status transitions per confirmed record.
// The synced image is committed conditionally on the revision captured at
// dequeue time, so an application write landing during the network call is
// never clobbered.
func (e *Engine) push(ctx context.Context, entities []*models.Entity, result *models.SyncResult, st *pushState) error {
	if len(entities) == 0 {
		return nil
	}

	byID := make(map[string]*models.Entity, len(entities))
	records := make([]store.Record, 0, len(entities))
	for _, ent := range entities {
		byID[ent.ID] = ent
		records = append(records, store.RecordFromEntity(ent))
	}

	results, err := e.remote.Save(ctx, records)
	if err != nil {
		return fmt.Errorf("pushing batch: %w", err)
	}

	for _, rr := range results {
		ent := byID[rr.ID]
		if ent == nil {
			continue
		}
		if rr.Err != nil {
			result.Errors = append(result.Errors, models.RecordError{EntityID: rr.ID, Message: rr.Err.Error()})
			if err := e.local.UpdateStatus(ctx, rr.ID, models.StatusFailed); err != nil {
				return err
			}
			st.acked[rr.ID] = true
			continue
		}
		synced := ent.Clone()
		synced.Status = models.StatusSynced
		base := synced.Snapshot()
		synced.Base = &base
		ok, err := e.local.CompareAndUpsert(ctx, synced, ent.LastModified)
		if err != nil {
			return err
		}
		if !ok {
			// Edited while the batch was in flight; the newer revision
			// stays pending and is retried by the caller.
			e.log.Debug(ctx, "entity changed during upload", "id", rr.ID)
			st.stale = append(st.stale, rr.ID)
		}
		result.Uploaded++
		st.acked[rr.ID] = true
	}
	return nil
}

// pushDeletes propagates tombstones and purges entities the remote store
// acknowledged.
func (e *Engine) pushDeletes(ctx context.Context, entities []*models.Entity, result *models.SyncResult, st *pushState) error {
	if len(entities) == 0 {
		return nil
	}

	ids := make([]string, 0, len(entities))
	for _, ent := range entities {
		ids = append(ids, ent.ID)
	}

	results, err := e.remote.Delete(ctx, ids)
	if err != nil {
		return fmt.Errorf("pushing deletions: %w", err)
	}

	for _, rr := range results {
		if rr.Err != nil {
			result.Errors = append(result.Errors, models.RecordError{EntityID: rr.ID, Message: rr.Err.Error()})
			if err := e.local.UpdateStatus(ctx, rr.ID, models.StatusFailed); err != nil {
				return err
			}
			st.acked[rr.ID] = true
			continue
		}
		if err := e.local.Delete(ctx, rr.ID); err != nil {
			return err
		}
		result.Uploaded++
		st.acked[rr.ID] = true
	}
	return nil
}

// ResolveManualConflict closes an open conflict record with an external
// decision and re-marks the entity for upload when the local side wins.
func (e *Engine) ResolveManualConflict(ctx context.Context, conflictID string, outcome models.Outcome) error {
	rec, err := e.local.GetConflict(ctx, conflictID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrConflictNotFound
	}
	if err != nil {
		return err
	}
	if rec.Resolved() {
		return ErrConflictNotFound
	}

	ent, err := e.local.Get(ctx, rec.EntityID)
	if err != nil {
		return err
	}

	switch outcome {
	case models.OutcomeUseLocal:
		kept := ent.Clone()
		kept.Fields = rec.Local.Fields
		kept.LastModified = e.clock()
		kept.Status = models.StatusPending
		if err := e.local.Upsert(ctx, kept); err != nil {
			return err
		}
		e.queue.Enqueue(kept.ID, models.PriorityHigh)
	case models.OutcomeUseRemote:
		kept := ent.Clone()
		kept.Fields = rec.Remote.Fields
		kept.LastModified = rec.Remote.LastModified
		kept.Status = models.StatusSynced
		base := kept.Snapshot()
		kept.Base = &base
		if err := e.local.Upsert(ctx, kept); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported manual outcome %q", outcome)
	}

	rec.Close(outcome, e.clock())
	return e.local.SaveConflict(ctx, rec)
}
