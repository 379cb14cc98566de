package mode

import (
	"sync"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
)

// IdleWatcher transitions the Manager to RESTING after a period with no
// recorded activity, and back to LISTENING on the next Touch call. Spec
// section 4.9: "RESTING (no activity in N minutes; reduces polling)".
type IdleWatcher struct {
	manager    *Manager
	idleAfter  time.Duration
	tickEvery  time.Duration
	mu         sync.Mutex
	lastActive time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewIdleWatcher creates a watcher that rests the manager after idleAfter
// with no Touch calls, polling at tickEvery.
func NewIdleWatcher(manager *Manager, idleAfter, tickEvery time.Duration) *IdleWatcher {
	if tickEvery <= 0 {
		tickEvery = idleAfter / 4
	}
	if tickEvery <= 0 {
		tickEvery = time.Second
	}
	return &IdleWatcher{
		manager:    manager,
		idleAfter:  idleAfter,
		tickEvery:  tickEvery,
		lastActive: time.Now(),
		stop:       make(chan struct{}),
	}
}

// Touch records activity, waking the manager back to LISTENING if it was RESTING.
func (w *IdleWatcher) Touch() {
	w.mu.Lock()
	w.lastActive = time.Now()
	w.mu.Unlock()

	if w.manager.Current() == models.ModeResting {
		_ = w.manager.Transition(models.ModeListening)
	}
}

// Run polls until Stop is called, resting the manager when idle.
func (w *IdleWatcher) Run() {
	ticker := time.NewTicker(w.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			idleFor := time.Since(w.lastActive)
			w.mu.Unlock()

			if idleFor >= w.idleAfter && w.manager.CanTransition(models.ModeResting) {
				_ = w.manager.Transition(models.ModeResting)
			}
		}
	}
}

// Stop terminates Run's polling loop. Idempotent.
func (w *IdleWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
