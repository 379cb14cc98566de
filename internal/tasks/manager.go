package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fetchctl/fetch/internal/format"
	"github.com/fetchctl/fetch/internal/harness"
	"github.com/fetchctl/fetch/pkg/models"
)

// Engine is the slice of internal/harness.Engine the manager needs, narrowed
// so this package can be tested without a real sandbox backend.
type Engine interface {
	Spawn(ctx context.Context, taskID string, agent models.Agent, goal, cwd string, timeoutMs int) (*harness.Run, error)
	Wait(run *harness.Run) harness.Result
}

// ProgressFunc is called whenever a task's state changes in a way the
// session should see (spec 4.6's "notifies the session" / "emits a chat
// message on onProgress").
type ProgressFunc func(sessionID string, event models.TaskLifecycleEvent, task *models.Task)

// Manager enforces the single-slot queue invariant: at most one task runs
// at a time per process (spec section 4.6).
type Manager struct {
	store  Store
	engine Engine
	logger *slog.Logger

	mu      sync.Mutex
	current *models.Task
	run     *harness.Run

	onProgress ProgressFunc
}

// NewManager builds a task manager bound to a store and harness engine.
func NewManager(store Store, engine Engine, onProgress ProgressFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default().With("component", "task-manager")
	}
	if onProgress == nil {
		onProgress = func(string, models.TaskLifecycleEvent, *models.Task) {}
	}
	return &Manager{store: store, engine: engine, onProgress: onProgress, logger: logger}
}

// Resume implements the restart-resume pass of spec section 4.6: any
// non-terminal task found on process start is marked failed, since the
// child process that was running it is gone.
func (m *Manager) Resume(ctx context.Context) error {
	stale, err := m.store.NonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("tasks: list non-terminal on resume: %w", err)
	}
	for _, task := range stale {
		m.mu.Lock()
		m.current = task
		m.mu.Unlock()

		now := time.Now()
		task.Status = models.TaskFailed
		task.Error = "process restarted"
		task.EndedAt = &now
		if err := m.store.Update(ctx, task); err != nil {
			m.logger.Error("resume: mark stale task failed", "task_id", task.ID, "err", err)
		}
		m.onProgress(task.SessionID, models.EventHarnessFailed, task)

		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()
	}
	return nil
}

// GetCurrent returns the single in-flight task, if any.
func (m *Manager) GetCurrent() (*models.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, false
	}
	t := *m.current
	return &t, true
}

// CreateTask enqueues a coding task. Since the queue is single-slot, it
// fails fast if a task is already running rather than actually queuing —
// the caller (Command Parser / reflex) is expected to check GetCurrent
// first and surface "a task is already running" to the user.
func (m *Manager) CreateTask(ctx context.Context, sessionID, goal string, agent models.Agent, workspaceID string, timeoutMs int) (*models.Task, error) {
	m.mu.Lock()
	if m.current != nil && !m.current.Status.IsTerminal() {
		busy := m.current.ID
		m.mu.Unlock()
		return nil, fmt.Errorf("tasks: a task is already running (%s)", busy)
	}
	m.mu.Unlock()

	if timeoutMs <= 0 {
		timeoutMs = 10 * 60 * 1000
	}

	task := &models.Task{
		ID:          models.NewTaskID(),
		SessionID:   sessionID,
		Goal:        goal,
		Agent:       agent,
		WorkspaceID: workspaceID,
		Status:      models.TaskPending,
		CreatedAt:   time.Now(),
		TimeoutMs:   timeoutMs,
	}
	if err := m.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("tasks: create: %w", err)
	}

	m.mu.Lock()
	m.current = task
	m.mu.Unlock()

	if err := m.start(ctx, task, workspaceID); err != nil {
		now := time.Now()
		task.Status = models.TaskFailed
		task.Error = err.Error()
		task.EndedAt = &now
		_ = m.store.Update(ctx, task)
		m.clearCurrent(task.ID)
		m.onProgress(task.SessionID, models.EventHarnessFailed, task)
		return task, nil
	}

	return task, nil
}

// start transitions pending -> running by spawning the harness, then runs
// the event-processing loop in a background goroutine.
func (m *Manager) start(ctx context.Context, task *models.Task, cwd string) error {
	task.AdapterAttempts = append(task.AdapterAttempts, task.Agent)
	run, err := m.engine.Spawn(ctx, task.ID, task.Agent, task.Goal, cwd, task.TimeoutMs)
	if err != nil {
		return fmt.Errorf("harness_spawn_failed: %w", err)
	}

	now := time.Now()
	task.Status = models.TaskRunning
	task.StartedAt = &now
	task.HarnessID = run.HarnessID
	if err := m.store.Update(ctx, task); err != nil {
		return err
	}

	m.mu.Lock()
	m.run = run
	m.mu.Unlock()

	m.onProgress(task.SessionID, models.EventHarnessStarted, task)
	go m.pump(context.Background(), task, run)
	return nil
}

// pump drains a run's events, applying state transitions to the task until
// the harness's process exits (spec section 4.6's transition table).
func (m *Manager) pump(ctx context.Context, task *models.Task, run *harness.Run) {
	for ev := range run.Events {
		switch ev.Type {
		case models.HarnessProgress, models.HarnessLine:
			text := ev.Progress
			if text == "" {
				text = ev.Line
			}
			if text == "" {
				continue
			}
			task.AppendProgress(ev.At, text)
			_ = m.store.Update(ctx, task)
			m.onProgress(task.SessionID, models.EventHarnessProgress, task)

		case models.HarnessFileOp:
			switch ev.FileOp {
			case models.FileOpCreate:
				task.FilesModified.Created = append(task.FilesModified.Created, ev.Path)
			case models.FileOpModify:
				task.FilesModified.Modified = append(task.FilesModified.Modified, ev.Path)
			case models.FileOpDelete:
				task.FilesModified.Deleted = append(task.FilesModified.Deleted, ev.Path)
			}
			_ = m.store.Update(ctx, task)

		case models.HarnessQuestion:
			task.Status = models.TaskWaitingInput
			task.PendingQuestion = ev.Question
			_ = m.store.Update(ctx, task)
			m.onProgress(task.SessionID, models.EventHarnessQuestion, task)

		case models.HarnessErrorKind:
			if ev.ErrorText == "harness_timeout" {
				m.finish(ctx, task, run, models.TaskTimedOut, ev.ErrorText)
				return
			}
			m.finish(ctx, task, run, models.TaskFailed, ev.ErrorText)
			return

		case models.HarnessComplete:
			// Terminal status decided by the exit code in finish(), once
			// the child process actually exits below.
		}
	}

	m.finishOnExit(ctx, task, run)
}

// finishOnExit waits for the spawned child to exit and records the final
// completed/failed transition (spec 4.6's running -> completed/failed).
func (m *Manager) finishOnExit(ctx context.Context, task *models.Task, run *harness.Run) {
	result := m.engine.Wait(run)

	status := models.TaskCompleted
	if result.TimedOut {
		status = models.TaskTimedOut
	} else if result.Err != nil || result.ExitCode != 0 {
		status = models.TaskFailed
	}

	now := time.Now()
	task.Status = status
	task.EndedAt = &now
	task.ExitCode = &result.ExitCode
	task.Summary = result.Summary
	task.FilesModified = result.FilesModified
	task.PendingQuestion = ""
	if result.Err != nil {
		task.Error = result.Err.Error()
	}
	_ = m.store.Update(ctx, task)
	m.clearCurrent(task.ID)

	event := models.EventHarnessCompleted
	if status != models.TaskCompleted {
		event = models.EventHarnessFailed
	}
	if task.StartedAt != nil {
		elapsedMs := float64(now.Sub(*task.StartedAt).Milliseconds())
		m.logger.Info("task finished", "task_id", task.ID, "status", status, "elapsed", format.FormatDurationSeconds(elapsedMs, nil))
	}
	m.onProgress(task.SessionID, event, task)
}

// finish records a terminal transition driven directly by an error/timeout
// event rather than the child's exit code, then cancels the run so its
// process is reaped (spec 4.6's "* -> timed_out ... child killed").
func (m *Manager) finish(ctx context.Context, task *models.Task, run *harness.Run, status models.TaskStatus, errText string) {
	run.Cancel()
	now := time.Now()
	task.Status = status
	task.EndedAt = &now
	task.Error = errText
	task.PendingQuestion = ""
	_ = m.store.Update(ctx, task)
	m.clearCurrent(task.ID)

	event := models.EventHarnessFailed
	if status == models.TaskTimedOut {
		event = models.EventHarnessTimeout
	}
	m.onProgress(task.SessionID, event, task)
}

// Cancel requests termination of the running task (spec 4.6's
// "running -> cancelled").
func (m *Manager) Cancel(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.ID != taskID {
		return fmt.Errorf("tasks: no running task %q", taskID)
	}
	if m.run == nil {
		return fmt.Errorf("tasks: task %q has no live harness run", taskID)
	}
	m.current.Status = models.TaskCancelled
	m.run.Cancel()
	return nil
}

// Respond forwards a user reply to a paused task's stdin (spec 4.6's
// "waiting_input -> running").
func (m *Manager) Respond(taskID, text string) error {
	m.mu.Lock()
	run := m.run
	cur := m.current
	m.mu.Unlock()

	if cur == nil || cur.ID != taskID {
		return fmt.Errorf("tasks: no waiting task %q", taskID)
	}
	if cur.Status != models.TaskWaitingInput {
		return fmt.Errorf("tasks: task %q is not waiting for input", taskID)
	}
	if run == nil {
		return fmt.Errorf("tasks: task %q has no live harness run", taskID)
	}
	if err := run.Respond(text); err != nil {
		return err
	}

	cur.Status = models.TaskRunning
	cur.PendingQuestion = ""
	return nil
}

func (m *Manager) clearCurrent(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ID == taskID {
		m.current = nil
		m.run = nil
	}
}
