// Package queue provides the in-memory tiered work queue feeding upload
// batches to the sync engine. It is a transport structure only: entries
// reference entities by id and the queue never touches stored state.
package queue

import (
	"sync"
	"time"

	"github.com/jbcrane13/jubileesync/internal/models"
)

// Entry is one queued pending change.
type Entry struct {
	EntityID   string
	Priority   models.Priority
	EnqueuedAt time.Time
}

// Queue is a thread-safe priority queue with three tiers. Dequeue order is
// tier-major and FIFO within a tier. The queue is bounded only by memory.
type Queue struct {
	mu    sync.Mutex
	tiers [3][]Entry
	clock func() time.Time
}

// New returns an empty queue. A nil clock defaults to time.Now.
func New(clock func() time.Time) *Queue {
	if clock == nil {
		clock = time.Now
	}
	return &Queue{clock: clock}
}

// Enqueue adds an entity reference at the given priority. It never blocks
// beyond the internal lock and is safe from concurrent callers.
func (q *Queue) Enqueue(entityID string, priority models.Priority) {
	if priority < models.PriorityHigh || priority > models.PriorityLow {
		priority = models.PriorityNormal
	}
	entry := Entry{EntityID: entityID, Priority: priority, EnqueuedAt: q.clock()}

	q.mu.Lock()
	q.tiers[priority] = append(q.tiers[priority], entry)
	q.mu.Unlock()
}

// DequeueBatch atomically removes and returns up to max entries, draining
// higher tiers first. An empty queue yields an empty batch, not an error.
func (q *Queue) DequeueBatch(max int) []Entry {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	batch := make([]Entry, 0, max)
	for tier := range q.tiers {
		if len(batch) == max {
			break
		}
		take := max - len(batch)
		if take > len(q.tiers[tier]) {
			take = len(q.tiers[tier])
		}
		batch = append(batch, q.tiers[tier][:take]...)
		q.tiers[tier] = q.tiers[tier][take:]
	}
	return batch
}

// Len is the exact number of entries across all tiers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tiers[0]) + len(q.tiers[1]) + len(q.tiers[2])
}

// TierLen reports the number of entries waiting at one priority.
func (q *Queue) TierLen(priority models.Priority) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if priority < models.PriorityHigh || priority > models.PriorityLow {
		return 0
	}
	return len(q.tiers[priority])
}

// Clear drops all entries.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for tier := range q.tiers {
		q.tiers[tier] = nil
	}
}
