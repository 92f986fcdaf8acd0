package sync

import (
	stdsync "sync"

	"github.com/jbcrane13/jubileesync/internal/models"
)

// EventKind identifies a lifecycle event of a sync pass.
type EventKind int

const (
	EventStarted EventKind = iota
	EventProgress
	EventCompleted
	EventFailed
)

// Event is delivered to subscribed observers. Result is set on
// EventCompleted, Err on EventFailed, Progress (0..1) on EventProgress.
type Event struct {
	Kind     EventKind
	Progress float64
	Result   *models.SyncResult
	Err      error
}

// notifier is an explicit observer registry. Observers are invoked
// synchronously in subscription order, so event ordering matches pass
// lifecycle ordering.
type notifier struct {
	mu        stdsync.Mutex
	nextID    int
	observers []observer
}

type observer struct {
	id int
	fn func(Event)
}

// subscribe registers fn and returns a function that removes it again.
func (n *notifier) subscribe(fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers = append(n.observers, observer{id: id, fn: fn})

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, o := range n.observers {
			if o.id == id {
				n.observers = append(n.observers[:i], n.observers[i+1:]...)
				return
			}
		}
	}
}

func (n *notifier) emit(ev Event) {
	n.mu.Lock()
	obs := make([]observer, len(n.observers))
	copy(obs, n.observers)
	n.mu.Unlock()

	for _, o := range obs {
		o.fn(ev)
	}
}
