package mode

import (
	"testing"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
)

func TestManager_InitialState(t *testing.T) {
	m := NewManager(nil)

	if m.Current() != models.ModeListening {
		t.Errorf("expected initial mode LISTENING, got %s", m.Current())
	}
}

func TestManager_ValidTransition(t *testing.T) {
	m := NewManager(nil)

	if err := m.Transition(models.ModeWorking); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Current() != models.ModeWorking {
		t.Errorf("expected WORKING, got %s", m.Current())
	}
	if m.State().Previous != models.ModeListening {
		t.Errorf("expected previous LISTENING, got %s", m.State().Previous)
	}
	if m.State().TransitionCount != 1 {
		t.Errorf("expected transition count 1, got %d", m.State().TransitionCount)
	}
}

func TestManager_InvalidTransitionRejected(t *testing.T) {
	m := NewManager(nil)
	if err := m.Transition(models.ModeGuarding); err != nil {
		t.Fatalf("LISTENING->GUARDING should be allowed: %v", err)
	}
	// GUARDING only permits ->LISTENING or ->WORKING.
	if err := m.Transition(models.ModeResting); err != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if m.Current() != models.ModeGuarding {
		t.Errorf("mode should be unchanged after rejected transition, got %s", m.Current())
	}
}

func TestManager_SelfTransitionAlwaysAllowed(t *testing.T) {
	m := NewManager(nil)
	if err := m.Transition(models.ModeListening); err != nil {
		t.Fatalf("self-transition should be allowed: %v", err)
	}
	if m.State().TransitionCount != 1 {
		t.Errorf("self-transition still counts, got %d", m.State().TransitionCount)
	}
}

func TestManager_OnTransitionHook(t *testing.T) {
	m := NewManager(nil)
	var gotFrom, gotTo models.Mode
	m.SetOnTransition(func(from, to models.Mode) {
		gotFrom, gotTo = from, to
	})

	if err := m.Transition(models.ModeWorking); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFrom != models.ModeListening || gotTo != models.ModeWorking {
		t.Errorf("hook got (%s, %s), want (LISTENING, WORKING)", gotFrom, gotTo)
	}
}

func TestManager_PrefixUsesGlyph(t *testing.T) {
	m := NewManager(nil)
	if got := m.Prefix("hello"); got != "🟢 hello" {
		t.Errorf("Prefix() = %q, want %q", got, "🟢 hello")
	}
	_ = m.Transition(models.ModeWorking)
	if got := m.Prefix("hello"); got != "🔵 hello" {
		t.Errorf("Prefix() = %q, want %q", got, "🔵 hello")
	}
}

type memModeStore struct {
	state *models.ModeState
}

func (s *memModeStore) LoadMode() (*models.ModeState, error) { return s.state, nil }
func (s *memModeStore) SaveMode(state *models.ModeState) error {
	cp := *state
	s.state = &cp
	return nil
}

func TestManager_PersistsAcrossRestart(t *testing.T) {
	store := &memModeStore{}
	m1 := NewManager(store)
	if err := m1.Transition(models.ModeWorking); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m2 := NewManager(store)
	if m2.Current() != models.ModeWorking {
		t.Errorf("expected restored mode WORKING, got %s", m2.Current())
	}
}

func TestIdleWatcher_RestsAfterIdle(t *testing.T) {
	m := NewManager(nil)
	w := NewIdleWatcher(m, 20*time.Millisecond, 5*time.Millisecond)
	go w.Run()
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	if m.Current() != models.ModeResting {
		t.Errorf("expected RESTING after idle period, got %s", m.Current())
	}

	w.Touch()
	if m.Current() != models.ModeListening {
		t.Errorf("expected LISTENING after Touch, got %s", m.Current())
	}
}
