// Package mode implements the orchestrator's coarse-grained operational
// state machine (spec section 4.9): LISTENING, WORKING, WAITING, GUARDING,
// RESTING. Every outgoing chat message is prefixed with the current mode's
// glyph.
package mode

import (
	"errors"
	"sync"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
)

// ErrInvalidTransition is returned when a transition is not present in the
// allowed-transitions table.
var ErrInvalidTransition = errors.New("mode: invalid transition")

// transitions enumerates the allowed from->to moves. Self-transitions are
// always allowed (re-entering WORKING while already WORKING, etc.) and are
// not listed explicitly.
var transitions = map[models.Mode]map[models.Mode]bool{
	models.ModeListening: {
		models.ModeWorking:  true,
		models.ModeWaiting:  true,
		models.ModeGuarding: true,
		models.ModeResting:  true,
	},
	models.ModeWorking: {
		models.ModeListening: true,
		models.ModeWaiting:   true,
		models.ModeGuarding:  true,
	},
	models.ModeWaiting: {
		models.ModeListening: true,
		models.ModeWorking:   true,
		models.ModeGuarding:  true,
	},
	models.ModeGuarding: {
		models.ModeListening: true,
		models.ModeWorking:   true,
	},
	models.ModeResting: {
		models.ModeListening: true,
		models.ModeWorking:   true,
	},
}

// OnTransition is called (synchronously) after every successful transition.
type OnTransition func(from, to models.Mode)

// Store persists the mode singleton so it survives process restarts.
type Store interface {
	LoadMode() (*models.ModeState, error)
	SaveMode(state *models.ModeState) error
}

// Manager guards the current mode with a mutex and validates transitions
// against the allowed-transitions table, the same shape as the resilience
// layer's circuit breaker transitions state under a lock and invokes a hook.
type Manager struct {
	mu    sync.RWMutex
	state models.ModeState
	store Store

	onTransition OnTransition
}

// NewManager creates a Manager defaulting to LISTENING, restoring persisted
// state from store if present.
func NewManager(store Store) *Manager {
	m := &Manager{
		state: models.ModeState{Mode: models.ModeListening, Since: time.Now()},
		store: store,
	}
	if store != nil {
		if saved, err := store.LoadMode(); err == nil && saved != nil && saved.Mode != "" {
			m.state = *saved
		}
	}
	return m
}

// SetOnTransition registers a callback invoked after each successful transition.
func (m *Manager) SetOnTransition(fn OnTransition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Current returns the current mode.
func (m *Manager) Current() models.Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Mode
}

// State returns a copy of the full persisted mode state.
func (m *Manager) State() models.ModeState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Transition moves to the target mode, validating against the allowed table.
// Invalid transitions are rejected with ErrInvalidTransition rather than
// silently clamped, matching the config package's fail-fast validation style.
func (m *Manager) Transition(to models.Mode) error {
	m.mu.Lock()

	from := m.state.Mode
	if from != to {
		allowed, ok := transitions[from]
		if !ok || !allowed[to] {
			m.mu.Unlock()
			return ErrInvalidTransition
		}
	}

	m.state.Previous = from
	m.state.Mode = to
	m.state.Since = time.Now()
	m.state.TransitionCount++

	snapshot := m.state
	hook := m.onTransition
	store := m.store
	m.mu.Unlock()

	if store != nil {
		if err := store.SaveMode(&snapshot); err != nil {
			return err
		}
	}
	if hook != nil && from != to {
		hook(from, to)
	}
	return nil
}

// CanTransition reports whether moving from the current mode to `to` is allowed.
func (m *Manager) CanTransition(to models.Mode) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	from := m.state.Mode
	if from == to {
		return true
	}
	allowed, ok := transitions[from]
	return ok && allowed[to]
}

// Prefix formats a chat line with the current mode's glyph, per spec section 4.9.
func (m *Manager) Prefix(text string) string {
	return m.Current().Glyph() + " " + text
}
