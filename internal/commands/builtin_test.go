package commands

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fetchctl/fetch/internal/schedule"
	"github.com/fetchctl/fetch/internal/workspace"
	"github.com/fetchctl/fetch/pkg/models"
)

// fakeSessions is a minimal in-memory SessionStore for exercising builtin
// command handlers without pulling in internal/sessions.
type fakeSessions struct {
	sessions map[string]*models.Session
	threads  map[string]*models.Thread
	nextID   int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]*models.Session{}, threads: map[string]*models.Thread{}}
}

func (f *fakeSessions) Update(ctx context.Context, s *models.Session) error {
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeSessions) CreateThread(ctx context.Context, sessionID string) (*models.Thread, error) {
	f.nextID++
	t := &models.Thread{ID: models.NewThreadID(), SessionID: sessionID, Status: models.ThreadActive, CreatedAt: time.Now()}
	f.threads[t.ID] = t
	return t, nil
}

func (f *fakeSessions) GetThread(ctx context.Context, threadID string) (*models.Thread, error) {
	t, ok := f.threads[threadID]
	if !ok {
		return nil, errors.New("thread not found")
	}
	return t, nil
}

func (f *fakeSessions) ListThreads(ctx context.Context, sessionID string) ([]*models.Thread, error) {
	var out []*models.Thread
	for _, t := range f.threads {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeSessions) AddActiveFile(ctx context.Context, sessionID, path string) error {
	s := f.sessions[sessionID]
	for _, existing := range s.ActiveFiles {
		if existing == path {
			return nil
		}
	}
	s.ActiveFiles = append(s.ActiveFiles, path)
	return nil
}

func (f *fakeSessions) RemoveActiveFile(ctx context.Context, sessionID, path string) error {
	s := f.sessions[sessionID]
	out := s.ActiveFiles[:0]
	for _, existing := range s.ActiveFiles {
		if existing != path {
			out = append(out, existing)
		}
	}
	s.ActiveFiles = out
	return nil
}

// fakeScheduleStore is a minimal in-memory schedule.Store.
type fakeScheduleStore struct {
	tasks map[string]*schedule.ScheduledTask
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{tasks: map[string]*schedule.ScheduledTask{}}
}

func (f *fakeScheduleStore) CreateTask(ctx context.Context, t *schedule.ScheduledTask) error {
	f.tasks[t.ID] = t
	return nil
}
func (f *fakeScheduleStore) GetTask(ctx context.Context, id string) (*schedule.ScheduledTask, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return t, nil
}
func (f *fakeScheduleStore) UpdateTask(ctx context.Context, t *schedule.ScheduledTask) error {
	f.tasks[t.ID] = t
	return nil
}
func (f *fakeScheduleStore) DeleteTask(ctx context.Context, id string) error {
	delete(f.tasks, id)
	return nil
}
func (f *fakeScheduleStore) ListTasks(ctx context.Context, opts schedule.ListTasksOptions) ([]*schedule.ScheduledTask, error) {
	out := make([]*schedule.ScheduledTask, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	return out, nil
}
func (f *fakeScheduleStore) CreateExecution(ctx context.Context, e *schedule.TaskExecution) error {
	return nil
}
func (f *fakeScheduleStore) GetExecution(ctx context.Context, id string) (*schedule.TaskExecution, error) {
	return nil, errors.New("not found")
}
func (f *fakeScheduleStore) UpdateExecution(ctx context.Context, e *schedule.TaskExecution) error {
	return nil
}
func (f *fakeScheduleStore) ListExecutions(ctx context.Context, taskID string, opts schedule.ListExecutionsOptions) ([]*schedule.TaskExecution, error) {
	return nil, nil
}
func (f *fakeScheduleStore) GetDueTasks(ctx context.Context, now time.Time, limit int) ([]*schedule.ScheduledTask, error) {
	return nil, nil
}
func (f *fakeScheduleStore) AcquireExecution(ctx context.Context, workerID string, lockDuration time.Duration) (*schedule.TaskExecution, error) {
	return nil, nil
}
func (f *fakeScheduleStore) ReleaseExecution(ctx context.Context, executionID string) error {
	return nil
}
func (f *fakeScheduleStore) CompleteExecution(ctx context.Context, executionID string, status schedule.ExecutionStatus, response, errMsg string) error {
	return nil
}
func (f *fakeScheduleStore) GetRunningExecutions(ctx context.Context, taskID string) ([]*schedule.TaskExecution, error) {
	return nil, nil
}
func (f *fakeScheduleStore) CleanupStaleExecutions(ctx context.Context, timeout time.Duration) (int, error) {
	return 0, nil
}

type fakeWorkspaces struct {
	list []*models.Workspace
}

func (f *fakeWorkspaces) List(ctx context.Context) ([]*models.Workspace, error) { return f.list, nil }
func (f *fakeWorkspaces) Status(ctx context.Context, id string) (*models.Workspace, error) {
	for _, w := range f.list {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, errors.New("not found")
}
func (f *fakeWorkspaces) Create(ctx context.Context, id string, tmpl models.WorkspaceTemplate) (*models.Workspace, error) {
	w := &models.Workspace{ID: id, ProjectType: models.ProjectUnknown}
	f.list = append(f.list, w)
	return w, nil
}
func (f *fakeWorkspaces) Delete(ctx context.Context, id string) error { return nil }

func newTestDeps() (Deps, *fakeSessions, *models.Session) {
	fs := newFakeSessions()
	session := &models.Session{ID: "ses_1", UserID: "user-1", ActiveThreadID: "thr_initial"}
	fs.sessions[session.ID] = session
	deps := Deps{
		Sessions:  fs,
		Schedules: newFakeScheduleStore(),
		Workspace: &fakeWorkspaces{list: []*models.Workspace{{ID: "app", ProjectType: models.ProjectGo, IsActive: true}}},
		Identity:  &workspace.Identity{Name: "Fetch", Creature: "retriever", Vibe: "helpful", Emoji: "🐾"},
	}
	return deps, fs, session
}

func TestRegisterBuiltins(t *testing.T) {
	r := NewRegistry(nil)
	deps, _, _ := newTestDeps()
	RegisterBuiltins(r, deps)

	expected := []string{
		"add", "drop", "files", "clear", "workspace", "thread",
		"skill", "tool", "remind", "schedule", "cron", "identity",
	}
	for _, name := range expected {
		if _, found := r.Get(name); !found {
			t.Errorf("builtin command %q not registered", name)
		}
	}

	aliases := map[string]string{
		"ws":      "workspace",
		"threads": "thread",
		"skills":  "skill",
		"tools":   "tool",
		"whoami":  "identity",
	}
	for alias, want := range aliases {
		cmd, found := r.Get(alias)
		if !found {
			t.Errorf("alias %q not registered", alias)
			continue
		}
		if cmd.Name != want {
			t.Errorf("alias %q maps to %q, want %q", alias, cmd.Name, want)
		}
	}
}

func TestBuiltinHandlers_AddDropFiles(t *testing.T) {
	r := NewRegistry(nil)
	deps, _, session := newTestDeps()
	RegisterBuiltins(r, deps)
	ctx := context.Background()

	if _, err := r.Execute(ctx, &Invocation{Name: "add", Args: "main.go util.go", Session: session}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(session.ActiveFiles) != 2 {
		t.Fatalf("expected 2 active files, got %v", session.ActiveFiles)
	}

	result, err := r.Execute(ctx, &Invocation{Name: "files", Session: session})
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if !strings.Contains(result.Text, "main.go") {
		t.Errorf("files result missing main.go: %s", result.Text)
	}

	if _, err := r.Execute(ctx, &Invocation{Name: "drop", Args: "main.go", Session: session}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if len(session.ActiveFiles) != 1 || session.ActiveFiles[0] != "util.go" {
		t.Errorf("expected only util.go left, got %v", session.ActiveFiles)
	}
}

func TestBuiltinHandlers_Clear(t *testing.T) {
	r := NewRegistry(nil)
	deps, _, session := newTestDeps()
	RegisterBuiltins(r, deps)
	ctx := context.Background()

	session.ActiveFiles = []string{"a.go"}
	oldThread := session.ActiveThreadID

	result, err := r.Execute(ctx, &Invocation{Name: "clear", Session: session})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if session.ActiveThreadID == oldThread {
		t.Error("clear should start a new thread")
	}
	if len(session.ActiveFiles) != 0 {
		t.Errorf("clear should wipe active files, got %v", session.ActiveFiles)
	}
	if result.Text == "" {
		t.Error("expected confirmation text")
	}
}

func TestBuiltinHandlers_Thread(t *testing.T) {
	r := NewRegistry(nil)
	deps, _, session := newTestDeps()
	RegisterBuiltins(r, deps)
	ctx := context.Background()

	if _, err := r.Execute(ctx, &Invocation{Name: "thread", Args: "new", Session: session}); err != nil {
		t.Fatalf("thread new: %v", err)
	}
	newID := session.ActiveThreadID

	result, err := r.Execute(ctx, &Invocation{Name: "thread", Args: "list", Session: session})
	if err != nil {
		t.Fatalf("thread list: %v", err)
	}
	if !strings.Contains(result.Text, newID) {
		t.Errorf("thread list missing active thread: %s", result.Text)
	}
}

func TestBuiltinHandlers_Workspace(t *testing.T) {
	r := NewRegistry(nil)
	deps, _, session := newTestDeps()
	RegisterBuiltins(r, deps)
	ctx := context.Background()

	result, err := r.Execute(ctx, &Invocation{Name: "workspace", Args: "list", Session: session})
	if err != nil {
		t.Fatalf("workspace list: %v", err)
	}
	if !strings.Contains(result.Text, "app") {
		t.Errorf("workspace list missing app: %s", result.Text)
	}

	if _, err := r.Execute(ctx, &Invocation{Name: "workspace", Args: "select app", Session: session}); err != nil {
		t.Fatalf("workspace select: %v", err)
	}
	if session.ActiveWorkspaceID != "app" {
		t.Errorf("expected active workspace app, got %q", session.ActiveWorkspaceID)
	}

	result, err = r.Execute(ctx, &Invocation{Name: "workspace", Args: "delete app", Session: session})
	if err != nil {
		t.Fatalf("workspace delete: %v", err)
	}
	if result.Error == "" {
		t.Error("expected refusal to delete the active workspace")
	}
}

func TestBuiltinHandlers_Remind(t *testing.T) {
	r := NewRegistry(nil)
	deps, _, session := newTestDeps()
	RegisterBuiltins(r, deps)
	ctx := context.Background()

	result, err := r.Execute(ctx, &Invocation{Name: "remind", Args: "10m take a break", Session: session, UserID: session.UserID})
	if err != nil {
		t.Fatalf("remind: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("remind returned error: %s", result.Error)
	}

	store := deps.Schedules.(*fakeScheduleStore)
	if len(store.tasks) != 1 {
		t.Fatalf("expected one scheduled task, got %d", len(store.tasks))
	}
	for _, task := range store.tasks {
		if task.Prompt != "take a break" {
			t.Errorf("prompt = %q, want %q", task.Prompt, "take a break")
		}
	}
}

func TestBuiltinHandlers_Schedule(t *testing.T) {
	r := NewRegistry(nil)
	deps, _, session := newTestDeps()
	RegisterBuiltins(r, deps)
	ctx := context.Background()

	if _, err := r.Execute(ctx, &Invocation{Name: "schedule", Args: "0 9 * * * morning standup notes", Session: session, UserID: session.UserID}); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	result, err := r.Execute(ctx, &Invocation{Name: "cron", Args: "list", Session: session})
	if err != nil {
		t.Fatalf("cron list: %v", err)
	}
	if result.Text == "No scheduled tasks." {
		t.Error("expected the scheduled task to show up")
	}
}

func TestBuiltinHandlers_Identity(t *testing.T) {
	r := NewRegistry(nil)
	deps, _, session := newTestDeps()
	RegisterBuiltins(r, deps)

	result, err := r.Execute(context.Background(), &Invocation{Name: "identity", Session: session})
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if !strings.Contains(result.Text, "Fetch") {
		t.Errorf("identity missing name: %s", result.Text)
	}
}
