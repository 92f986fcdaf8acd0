// Package scheduler decides when to trigger a sync pass: a periodic
// foreground timer, explicit manual calls, and OS background-task
// callbacks, gated by pending-work volume and device resources. It depends
// on the engine, never the other way around.
package scheduler

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/jbcrane13/jubileesync/internal/logging"
	"github.com/jbcrane13/jubileesync/internal/models"
	"github.com/jbcrane13/jubileesync/internal/sensors"
	"github.com/jbcrane13/jubileesync/internal/store"
	"github.com/jbcrane13/jubileesync/internal/sync/queue"
)

const (
	// DefaultInterval drives foreground auto-sync.
	DefaultInterval = 300 * time.Second

	// DefaultBackgroundFloor is the earliest-begin floor for OS-level
	// background execution.
	DefaultBackgroundFloor = 6 * time.Hour

	// DefaultPendingThreshold gates background submission: below this many
	// pending changes the periodic foreground path is sufficient and the
	// background execution budget is conserved.
	DefaultPendingThreshold = 50

	// lowBatteryLevel is the charge fraction below which non-high-priority
	// work is deferred unless the device is charging.
	lowBatteryLevel = 0.2
)

// Syncer is the slice of the engine the scheduler invokes.
type Syncer interface {
	Sync(ctx context.Context) (*models.SyncResult, error)
	Syncing() bool
}

// Preferences are the externally persisted scheduler settings.
type Preferences interface {
	AutoSyncEnabled(ctx context.Context) (bool, error)
	AutoSyncInterval(ctx context.Context) (time.Duration, error)
	AllowCellularSync(ctx context.Context) (bool, error)
}

// TaskRequest asks the OS to run the registered handler no earlier than
// EarliestBeginDate, within whatever time budget the OS grants.
type TaskRequest struct {
	TaskID            string
	EarliestBeginDate time.Time
	RequiresNetwork   bool
}

// BackgroundRunner is the consumed OS background-execution facility. The
// handler receives a context that is cancelled when the OS expires the
// task, and reports success exactly once by returning.
type BackgroundRunner interface {
	Register(taskID string, handler func(ctx context.Context) bool)
	Submit(req TaskRequest) error
}

// Config tunes a Scheduler. Zero values fall back to defaults.
type Config struct {
	TaskID           string
	Interval         time.Duration
	BackgroundFloor  time.Duration
	PendingThreshold int
	Clock            func() time.Time
	Logger           logging.Logger
}

// Scheduler owns the trigger policy around a Syncer.
type Scheduler struct {
	syncer  Syncer
	local   store.Local
	queue   *queue.Queue
	prefs   Preferences
	runner  BackgroundRunner
	battery sensors.Battery
	network sensors.Network
	log     logging.Logger
	clock   func() time.Time

	taskID           string
	interval         time.Duration
	backgroundFloor  time.Duration
	pendingThreshold int

	mu      stdsync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New wires a scheduler. The background runner, battery and network sensors
// may be nil; the corresponding triggers and gates are then skipped.
func New(syncer Syncer, local store.Local, q *queue.Queue, prefs Preferences, runner BackgroundRunner, battery sensors.Battery, network sensors.Network, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BackgroundFloor <= 0 {
		cfg.BackgroundFloor = DefaultBackgroundFloor
	}
	if cfg.PendingThreshold <= 0 {
		cfg.PendingThreshold = DefaultPendingThreshold
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop{}
	}

	s := &Scheduler{
		syncer:           syncer,
		local:            local,
		queue:            q,
		prefs:            prefs,
		runner:           runner,
		battery:          battery,
		network:          network,
		log:              cfg.Logger,
		clock:            cfg.Clock,
		taskID:           cfg.TaskID,
		interval:         cfg.Interval,
		backgroundFloor:  cfg.BackgroundFloor,
		pendingThreshold: cfg.PendingThreshold,
	}
	if runner != nil && s.taskID != "" {
		runner.Register(s.taskID, s.runBackgroundTask)
	}
	return s
}

// Start launches the periodic foreground trigger. It is a no-op when
// already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	interval := s.interval
	if d, err := s.prefs.AutoSyncInterval(ctx); err == nil && d > 0 {
		interval = d
	}

	go s.loop(ctx, interval, stop, done)
	s.log.Info(ctx, "scheduler started", "interval", interval)
}

// Stop halts the periodic trigger and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.onTick(ctx)
		}
	}
}

func (s *Scheduler) onTick(ctx context.Context) {
	enabled, err := s.prefs.AutoSyncEnabled(ctx)
	if err != nil {
		s.log.Error(ctx, "reading auto-sync preference", "err", err)
		return
	}
	if !enabled || s.syncer.Syncing() {
		return
	}
	if allowed, reason := s.resourcesAllow(ctx); !allowed {
		// Deferred, never dropped: pending entities stay queued.
		s.log.Debug(ctx, "periodic sync deferred", "reason", reason)
		return
	}
	s.requeueFailed(ctx)
	if _, err := s.syncer.Sync(ctx); err != nil {
		s.log.Warn(ctx, "periodic sync failed", "err", err)
	}
}

// requeueFailed puts entities that failed a previous upload back on the
// queue at low priority, so rejected records are retried on later passes
// within the same session, not just after a restart.
func (s *Scheduler) requeueFailed(ctx context.Context) {
	if s.local == nil || s.queue == nil {
		return
	}
	pending, err := s.local.FetchPending(ctx)
	if err != nil {
		s.log.Error(ctx, "fetching pending entities", "err", err)
		return
	}
	for _, ent := range pending {
		if ent.Status == models.StatusFailed {
			s.queue.Enqueue(ent.ID, models.PriorityLow)
		}
	}
}

// SyncNow is the explicit manual trigger. It bypasses resource gating and
// runs synchronously.
func (s *Scheduler) SyncNow(ctx context.Context) (*models.SyncResult, error) {
	return s.syncer.Sync(ctx)
}

// ScheduleBackground submits an OS background job if the pending-change
// volume justifies spending background budget. Returns whether a job was
// submitted.
func (s *Scheduler) ScheduleBackground(ctx context.Context) (bool, error) {
	if s.runner == nil || s.taskID == "" {
		return false, nil
	}

	pending, err := s.local.PendingCount(ctx)
	if err != nil {
		return false, err
	}
	if pending < s.pendingThreshold {
		s.log.Debug(ctx, "skipping background submission", "pending", pending, "threshold", s.pendingThreshold)
		return false, nil
	}

	req := TaskRequest{
		TaskID:            s.taskID,
		EarliestBeginDate: s.clock().Add(s.backgroundFloor),
		RequiresNetwork:   true,
	}
	if err := s.runner.Submit(req); err != nil {
		return false, err
	}
	s.log.Info(ctx, "background sync submitted", "earliest_begin", req.EarliestBeginDate)
	return true, nil
}

// runBackgroundTask is the registered OS callback. The context is cancelled
// on expiration; the engine checks it between batches, so a terminated job
// leaves every touched entity in a committed state.
func (s *Scheduler) runBackgroundTask(ctx context.Context) bool {
	if allowed, reason := s.resourcesAllow(ctx); !allowed {
		s.log.Info(ctx, "background sync deferred", "reason", reason)
		// Re-arm for a later window; the work is still pending.
		if _, err := s.ScheduleBackground(ctx); err != nil {
			s.log.Error(ctx, "rescheduling background sync", "err", err)
		}
		return false
	}

	s.requeueFailed(ctx)
	_, err := s.syncer.Sync(ctx)
	if err != nil {
		s.log.Warn(ctx, "background sync failed", "err", err)
		return false
	}
	return true
}

// resourcesAllow applies the battery and network gates. High-priority work
// waiting in the queue bypasses deferral.
func (s *Scheduler) resourcesAllow(ctx context.Context) (bool, string) {
	if s.network != nil && s.network.Class() == sensors.NetworkUnavailable {
		return false, "network unavailable"
	}

	if s.queue != nil && s.queue.TierLen(models.PriorityHigh) > 0 {
		return true, ""
	}

	if s.battery != nil && !s.battery.Charging() && s.battery.Level() < lowBatteryLevel {
		return false, "battery low"
	}

	if s.network != nil && (s.network.Class() == sensors.NetworkCellular || s.network.Expensive()) {
		allowCellular, err := s.prefs.AllowCellularSync(ctx)
		if err != nil {
			s.log.Error(ctx, "reading cellular preference", "err", err)
			return false, "cellular preference unavailable"
		}
		if !allowCellular {
			return false, "expensive network"
		}
	}

	return true, ""
}
