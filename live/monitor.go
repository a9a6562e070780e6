package live

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// PositionWaiter blocks until the playhead reaches a stop position and
// playback has been stopped. Song implements it.
type PositionWaiter interface {
	WaitForPosition(ctx context.Context, stopPos float64) error
}

// WatchState is the lifecycle state of a playhead watch.
type WatchState string

const (
	WatchMonitoring WatchState = "monitoring"
	WatchStopped    WatchState = "stopped"
	WatchCancelled  WatchState = "cancelled"
	WatchFailed     WatchState = "failed"
)

// WatchStatus is a point-in-time snapshot of a Watch.
type WatchStatus struct {
	ID         string     `json:"id"`
	StopPos    float64    `json:"stop_pos"`
	State      WatchState `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Watch is a handle on one background playhead watch.
type Watch struct {
	id        string
	stopPos   float64
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}

	mu         sync.Mutex
	state      WatchState
	finishedAt time.Time
	err        error
}

// ID returns the unique watch identifier.
func (w *Watch) ID() string { return w.id }

// StopPos returns the position the watch stops playback at.
func (w *Watch) StopPos() float64 { return w.stopPos }

// Done is closed once the watch has finished for any reason.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Cancel ends the watch without stopping playback.
func (w *Watch) Cancel() { w.cancel() }

// Err returns the failure of a finished watch, or nil.
func (w *Watch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// State returns the current lifecycle state.
func (w *Watch) State() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns a snapshot of the watch.
func (w *Watch) Status() WatchStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	status := WatchStatus{
		ID:        w.id,
		StopPos:   w.stopPos,
		State:     w.state,
		StartedAt: w.startedAt,
	}
	if !w.finishedAt.IsZero() {
		finished := w.finishedAt
		status.FinishedAt = &finished
	}
	if w.err != nil {
		status.Error = w.err.Error()
	}
	return status
}

func (w *Watch) finish(state WatchState, err error) {
	w.mu.Lock()
	w.state = state
	w.err = err
	w.finishedAt = time.Now()
	w.mu.Unlock()
	close(w.done)
}

// Monitor runs playhead watches in the background so callers can wait on,
// poll or cancel them. At most one watch is active at a time.
type Monitor struct {
	waiter PositionWaiter
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *Watch
}

// NewMonitor creates a Monitor driving waiter.
func NewMonitor(waiter PositionWaiter) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		waiter: waiter,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins watching for stopPos. An active watch for the same position
// is joined instead of restarted; an active watch for another position is
// cancelled.
func (m *Monitor) Start(stopPos float64) *Watch {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current; cur != nil && cur.State() == WatchMonitoring {
		if cur.stopPos == stopPos {
			log.Debugf("Joining active playhead watch %s", cur.id)
			return cur
		}
		log.Infof("Replacing playhead watch %s (stop at %.2f)", cur.id, cur.stopPos)
		cur.Cancel()
	}

	ctx, cancel := context.WithCancel(m.ctx)
	w := &Watch{
		id:        uuid.NewString(),
		stopPos:   stopPos,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     WatchMonitoring,
	}
	m.current = w
	watchesTotal.Inc()

	m.wg.Add(1)
	go m.run(ctx, w)

	log.Info("Monitoring playhead", "watch", w.id, "stop", stopPos)
	return w
}

func (m *Monitor) run(ctx context.Context, w *Watch) {
	defer m.wg.Done()
	defer w.cancel()

	err := m.waiter.WaitForPosition(ctx, w.stopPos)
	switch {
	case err == nil:
		w.finish(WatchStopped, nil)
		log.Info("Playhead reached stop position", "watch", w.id, "stop", w.stopPos)
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		w.finish(WatchCancelled, nil)
		log.Debugf("Playhead watch %s cancelled", w.id)
	default:
		w.finish(WatchFailed, err)
		log.Error("Playhead watch failed", "watch", w.id, "error", err)
	}
}

// Current returns the most recent watch, or nil if none was started.
func (m *Monitor) Current() *Watch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Cancel cancels the active watch and reports whether there was one.
func (m *Monitor) Cancel() bool {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()

	if cur == nil || cur.State() != WatchMonitoring {
		return false
	}
	cur.Cancel()
	<-cur.Done()
	return true
}

// Close cancels every watch and waits for them to exit.
func (m *Monitor) Close() {
	m.cancel()
	m.wg.Wait()
}
