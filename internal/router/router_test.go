package router

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/fetchctl/fetch/internal/agent"
	"github.com/fetchctl/fetch/internal/cache"
	"github.com/fetchctl/fetch/internal/commands"
	"github.com/fetchctl/fetch/internal/mode"
	"github.com/fetchctl/fetch/internal/ratelimit"
	"github.com/fetchctl/fetch/internal/reflex"
	"github.com/fetchctl/fetch/internal/sessions"
	"github.com/fetchctl/fetch/pkg/models"
)

type memModeStore struct{ state *models.ModeState }

func (s *memModeStore) LoadMode() (*models.ModeState, error) { return s.state, nil }
func (s *memModeStore) SaveMode(state *models.ModeState) error {
	s.state = state
	return nil
}

func newTestRouter(t *testing.T, authorize AuthFunc, runtime *agent.Runtime) (*Router, sessions.Store) {
	t.Helper()
	store := sessions.NewMemoryStore()

	cmdRegistry := commands.NewRegistry(slog.Default())
	commands.RegisterBuiltins(cmdRegistry, commands.Deps{Sessions: store})
	parser := commands.NewParser(cmdRegistry, commands.DefaultPrefixes...)

	reflexRegistry := reflex.NewRegistry()
	reflex.RegisterBuiltins(reflexRegistry, reflex.Deps{})

	modeManager := mode.NewManager(&memModeStore{})

	return New(Config{
		Sessions:  store,
		Commands:  cmdRegistry,
		Parser:    parser,
		Reflexes:  reflexRegistry,
		Mode:      modeManager,
		Runtime:   runtime,
		Authorize: authorize,
		Dedupe:    cache.NewDedupeCache(cache.DedupeCacheOptions{TTL: time.Minute, MaxSize: 100}),
		Limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: 100, BurstSize: 100, Enabled: true}),
		Logger:    slog.Default(),
	}), store
}

func TestHandleMessage_Unauthorized(t *testing.T) {
	r, _ := newTestRouter(t, func(context.Context, string) bool { return false }, nil)

	out, err := r.HandleMessage(context.Background(), "u1", "hello", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Path != PathUnauthorized {
		t.Errorf("expected unauthorized path, got %v", out.Path)
	}
	if len(out.Responses) != 0 {
		t.Errorf("expected no responses, got %v", out.Responses)
	}
}

func TestHandleMessage_Duplicate(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)
	ctx := context.Background()

	if _, err := r.HandleMessage(ctx, "u1", "status", nil); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	out, err := r.HandleMessage(ctx, "u1", "status", nil)
	if err != nil {
		t.Fatalf("second message failed: %v", err)
	}
	if out.Path != PathDuplicate {
		t.Errorf("expected duplicate path, got %v", out.Path)
	}
}

func TestHandleMessage_RateLimited(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)
	r.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerSecond: 0, BurstSize: 1, Enabled: true})
	ctx := context.Background()

	if _, err := r.HandleMessage(ctx, "u1", "status", nil); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	out, err := r.HandleMessage(ctx, "u1", "status two", nil)
	if err != nil {
		t.Fatalf("second message failed: %v", err)
	}
	if out.Path != PathRateLimited {
		t.Errorf("expected rate_limited path, got %v", out.Path)
	}
}

func TestHandleMessage_Command(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	out, err := r.HandleMessage(context.Background(), "u1", "/whoami", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Path != PathCommand {
		t.Errorf("expected command path, got %v", out.Path)
	}
	if len(out.Responses) != 1 {
		t.Fatalf("expected one response, got %v", out.Responses)
	}
}

func TestHandleMessage_Reflex(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	out, err := r.HandleMessage(context.Background(), "u1", "status", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Path != PathReflex {
		t.Errorf("expected reflex path, got %v", out.Path)
	}
}

func TestHandleMessage_ReflexClearStartsNewThread(t *testing.T) {
	r, store := newTestRouter(t, nil, nil)
	ctx := context.Background()

	session, err := store.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	originalThread := session.ActiveThreadID

	out, err := r.HandleMessage(ctx, "u1", "clear", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Path != PathReflex {
		t.Fatalf("expected reflex path, got %v", out.Path)
	}

	updated, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if updated.ActiveThreadID == originalThread {
		t.Error("expected clear to start a new active thread")
	}
}

func TestHandleMessage_Approval(t *testing.T) {
	r, store := newTestRouter(t, nil, nil)
	ctx := context.Background()

	session, err := store.GetOrCreate(ctx, "u1")
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	session.PendingApproval = &models.PendingApproval{ToolName: "write_file"}
	if err := store.Update(ctx, session); err != nil {
		t.Fatalf("failed to persist pending approval: %v", err)
	}
	if err := r.mode.Transition(models.ModeWaiting); err != nil {
		t.Fatalf("failed to enter WAITING: %v", err)
	}

	out, err := r.HandleMessage(ctx, "u1", "yes", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Path != PathApproval {
		t.Errorf("expected approval path, got %v", out.Path)
	}

	updated, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("failed to reload session: %v", err)
	}
	if updated.PendingApproval != nil {
		t.Error("expected pending approval to be cleared")
	}
}

// fakeProvider is a minimal agent.LLMProvider that answers with a single
// fixed completion, enough to exercise the agent dispatch path end to end.
type fakeProvider struct{}

func (fakeProvider) Name() string          { return "fake" }
func (fakeProvider) Models() []agent.Model { return []agent.Model{{ID: "fake-model"}} }
func (fakeProvider) SupportsTools() bool   { return false }
func (fakeProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	ch := make(chan *agent.CompletionChunk, 1)
	ch <- &agent.CompletionChunk{Text: "pong", Done: true}
	close(ch)
	return ch, nil
}

func TestHandleMessage_Agent(t *testing.T) {
	store := sessions.NewMemoryStore()
	runtime := agent.NewRuntime(fakeProvider{}, store)

	cmdRegistry := commands.NewRegistry(slog.Default())
	commands.RegisterBuiltins(cmdRegistry, commands.Deps{Sessions: store})
	parser := commands.NewParser(cmdRegistry, commands.DefaultPrefixes...)
	reflexRegistry := reflex.NewRegistry()
	reflex.RegisterBuiltins(reflexRegistry, reflex.Deps{})
	modeManager := mode.NewManager(&memModeStore{})

	r := New(Config{
		Sessions: store,
		Commands: cmdRegistry,
		Parser:   parser,
		Reflexes: reflexRegistry,
		Mode:     modeManager,
		Runtime:  runtime,
		Logger:   slog.Default(),
	})

	out, err := r.HandleMessage(context.Background(), "u1", "please refactor the parser module", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Path != PathAgent {
		t.Errorf("expected agent path, got %v", out.Path)
	}
	if len(out.Responses) != 1 || out.Responses[0] == "" {
		t.Errorf("expected a non-empty agent response, got %v", out.Responses)
	}
}
