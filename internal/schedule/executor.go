package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
)

// TaskCreator is the slice of the coding-task Task Manager the scheduler
// needs: enough to enqueue a task_create call. Defined here rather than
// imported from internal/tasks to avoid a schedule<->tasks import cycle —
// internal/tasks wires a concrete implementation in at construction time.
type TaskCreator interface {
	CreateTask(ctx context.Context, sessionID, goal string, agent models.Agent, workspaceID string, timeoutMs int) (*models.Task, error)
}

// TaskQueueExecutor is the scheduled-task fire action for this repo: rather
// than invoking an agent directly, it enqueues a task_create call against
// the coding-task queue, keeping that queue the single source of truth for
// the one-task-at-a-time invariant (spec section 4.6 expansion).
type TaskQueueExecutor struct {
	tasks  TaskCreator
	logger *slog.Logger
}

// NewTaskQueueExecutor builds an executor bound to a Task Manager.
func NewTaskQueueExecutor(tasks TaskCreator, logger *slog.Logger) *TaskQueueExecutor {
	if logger == nil {
		logger = slog.Default().With("component", "schedule-executor")
	}
	return &TaskQueueExecutor{tasks: tasks, logger: logger}
}

// Execute enqueues the scheduled task's prompt as a coding task.
func (e *TaskQueueExecutor) Execute(ctx context.Context, task *ScheduledTask, exec *TaskExecution) (string, error) {
	if task == nil {
		return "", fmt.Errorf("task is required")
	}
	if exec == nil {
		return "", fmt.Errorf("execution is required")
	}

	sessionID := task.Config.SessionID
	if sessionID == "" {
		return "", fmt.Errorf("scheduled task %q has no bound session", task.ID)
	}

	agentName := models.Agent(task.Config.Model)
	if agentName == "" {
		agentName = models.AgentAuto
	}

	timeoutMs := int(task.Config.Timeout / time.Millisecond)

	e.logger.Info("firing scheduled task", "task_id", task.ID, "execution_id", exec.ID, "session_id", sessionID)

	created, err := e.tasks.CreateTask(ctx, sessionID, exec.Prompt, agentName, "", timeoutMs)
	if err != nil {
		return "", fmt.Errorf("enqueue coding task: %w", err)
	}

	exec.SessionID = sessionID
	return fmt.Sprintf("enqueued coding task %s", created.ID), nil
}

// NoOpExecutor is a no-operation executor for testing.
type NoOpExecutor struct {
	Response string
	Error    error
	Delay    time.Duration
}

// Execute returns a configured response after an optional delay.
func (e *NoOpExecutor) Execute(ctx context.Context, task *ScheduledTask, exec *TaskExecution) (string, error) {
	if e.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.Delay):
		}
	}
	return e.Response, e.Error
}

// CallbackExecutor wraps a function as an Executor.
type CallbackExecutor struct {
	Fn func(ctx context.Context, task *ScheduledTask, exec *TaskExecution) (string, error)
}

// Execute calls the wrapped function.
func (e *CallbackExecutor) Execute(ctx context.Context, task *ScheduledTask, exec *TaskExecution) (string, error) {
	if e.Fn == nil {
		return "", fmt.Errorf("callback function is nil")
	}
	return e.Fn(ctx, task, exec)
}
