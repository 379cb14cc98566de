package reflex

import (
	"context"
	"testing"

	"github.com/fetchctl/fetch/pkg/models"
)

func TestRegistry_PriorityOrder(t *testing.T) {
	r := NewRegistry()
	var called []string

	r.Register(&Reflex{
		Name:     "low",
		Triggers: []string{"ping"},
		Priority: 1,
		Handler: func(ctx context.Context, rc *Context) Response {
			called = append(called, "low")
			return Response{Matched: true, Text: "low"}
		},
	})
	r.Register(&Reflex{
		Name:     "high",
		Triggers: []string{"ping"},
		Priority: 100,
		Handler: func(ctx context.Context, rc *Context) Response {
			called = append(called, "high")
			return Response{Matched: true, Text: "high"}
		},
	})

	resp, ok := r.Match(context.Background(), "ping", nil, "u1")
	if !ok || resp.Text != "high" {
		t.Fatalf("expected high-priority reflex to win, got %+v (ok=%v)", resp, ok)
	}
	if len(called) != 1 || called[0] != "high" {
		t.Errorf("low-priority handler should not have run once high matched, got %v", called)
	}
}

func TestRegistry_TieBreaksByRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&Reflex{
		Name:     "first",
		Triggers: []string{"x"},
		Priority: 10,
		Handler:  func(ctx context.Context, rc *Context) Response { return Response{Matched: true, Text: "first"} },
	})
	r.Register(&Reflex{
		Name:     "second",
		Triggers: []string{"x"},
		Priority: 10,
		Handler:  func(ctx context.Context, rc *Context) Response { return Response{Matched: true, Text: "second"} },
	})

	resp, ok := r.Match(context.Background(), "x", nil, "u1")
	if !ok || resp.Text != "first" {
		t.Fatalf("expected stable sort to preserve registration order, got %+v", resp)
	}
}

func TestRegistry_CaseInsensitiveTrimmed(t *testing.T) {
	r := NewRegistry()
	r.Register(&Reflex{
		Name:     "stop",
		Triggers: []string{"stop"},
		Priority: 90,
		Handler:  func(ctx context.Context, rc *Context) Response { return Response{Matched: true, Text: "stopped"} },
	})

	resp, ok := r.Match(context.Background(), "  STOP  ", nil, "u1")
	if !ok || resp.Text != "stopped" {
		t.Fatalf("expected case/whitespace-insensitive match, got %+v (ok=%v)", resp, ok)
	}
}

func TestRegistry_NoMatchFallsThrough(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, Deps{})

	_, ok := r.Match(context.Background(), "please refactor the parser module", nil, "u1")
	if ok {
		t.Error("expected a long free-form sentence not to match any reflex")
	}
}

func TestRegistry_HandlerCanDeclineDespiteTriggerMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(&Reflex{
		Name:     "maybe",
		Triggers: []string{"go"},
		Priority: 50,
		Handler:  func(ctx context.Context, rc *Context) Response { return Response{Matched: false} },
	})
	r.Register(&Reflex{
		Name:     "fallback",
		Triggers: []string{"go"},
		Priority: 1,
		Handler:  func(ctx context.Context, rc *Context) Response { return Response{Matched: true, Text: "fallback"} },
	})

	resp, ok := r.Match(context.Background(), "go", nil, "u1")
	if !ok || resp.Text != "fallback" {
		t.Fatalf("expected declining handler to fall through to the next match, got %+v", resp)
	}
}

func TestBuiltins_StopActionRequiresActiveTask(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, Deps{})

	resp, ok := r.Match(context.Background(), "stop", &models.Session{}, "u1")
	if !ok {
		t.Fatal("expected stop to match")
	}
	if resp.Action != nil {
		t.Errorf("expected no stop action without an active task, got %+v", resp.Action)
	}

	resp, ok = r.Match(context.Background(), "stop", &models.Session{ActiveTaskID: "tsk_1"}, "u1")
	if !ok {
		t.Fatal("expected stop to match")
	}
	if resp.Action == nil || resp.Action.Type != ActionStop {
		t.Errorf("expected stop action with an active task, got %+v", resp.Action)
	}
}

func TestBuiltins_UndoRequestsGitReset(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r, Deps{})

	resp, ok := r.Match(context.Background(), "undo", &models.Session{GitStartCommit: "abc123"}, "u1")
	if !ok || resp.Action == nil || resp.Action.Type != ActionUndo {
		t.Fatalf("expected undo action, got %+v (ok=%v)", resp, ok)
	}
}
