// Package tasks implements the coding-task lifecycle: a single-slot queue
// of at most one running task per process, backed by a harness execution
// (spec section 4.6).
package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
)

// ErrNotFound is returned when a task id has no matching row.
var ErrNotFound = errors.New("tasks: not found")

// Store is the interface for task persistence (spec section 4.6's
// "every transition writes the task row + progress ring").
type Store interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	List(ctx context.Context, sessionID string, limit int) ([]*models.Task, error)

	// NonTerminal returns every task not yet in a terminal state, used by
	// the restart-resume pass on process start.
	NonTerminal(ctx context.Context) ([]*models.Task, error)
}

// MemoryStore is an in-memory Store implementation for tests and local runs,
// grounded on internal/sessions.MemoryStore's clone-on-read/write shape.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
}

// NewMemoryStore creates a new in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: map[string]*models.Task{}}
}

func cloneTask(t *models.Task) *models.Task {
	clone := *t
	if t.ProgressLog != nil {
		clone.ProgressLog = append([]models.ProgressEntry(nil), t.ProgressLog...)
	}
	if t.AdapterAttempts != nil {
		clone.AdapterAttempts = append([]models.Agent(nil), t.AdapterAttempts...)
	}
	if t.FilesModified.Created != nil {
		clone.FilesModified.Created = append([]string(nil), t.FilesModified.Created...)
	}
	if t.FilesModified.Modified != nil {
		clone.FilesModified.Modified = append([]string(nil), t.FilesModified.Modified...)
	}
	if t.FilesModified.Deleted != nil {
		clone.FilesModified.Deleted = append([]string(nil), t.FilesModified.Deleted...)
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	if t.EndedAt != nil {
		ended := *t.EndedAt
		clone.EndedAt = &ended
	}
	if t.ExitCode != nil {
		exitCode := *t.ExitCode
		clone.ExitCode = &exitCode
	}
	return &clone
}

func (m *MemoryStore) Create(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.New("tasks: task is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if task.ID == "" {
		task.ID = models.NewTaskID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTask(task), nil
}

func (m *MemoryStore) Update(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.New("tasks: task is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, sessionID string, limit int) ([]*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Task, 0)
	for _, task := range m.tasks {
		if sessionID != "" && task.SessionID != sessionID {
			continue
		}
		out = append(out, cloneTask(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) NonTerminal(ctx context.Context) ([]*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Task, 0)
	for _, task := range m.tasks {
		if !task.Status.IsTerminal() {
			out = append(out, cloneTask(task))
		}
	}
	return out, nil
}
