package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
)

type fakeTaskCreator struct {
	lastSessionID   string
	lastGoal        string
	lastAgent       models.Agent
	lastWorkspaceID string
	lastTimeoutMs   int
	ret             *models.Task
	err             error
}

func (f *fakeTaskCreator) CreateTask(ctx context.Context, sessionID, goal string, agent models.Agent, workspaceID string, timeoutMs int) (*models.Task, error) {
	f.lastSessionID = sessionID
	f.lastGoal = goal
	f.lastAgent = agent
	f.lastWorkspaceID = workspaceID
	f.lastTimeoutMs = timeoutMs
	if f.err != nil {
		return nil, f.err
	}
	if f.ret != nil {
		return f.ret, nil
	}
	return &models.Task{ID: "tsk_abc123"}, nil
}

func TestTaskQueueExecutor_EnqueuesCodingTask(t *testing.T) {
	creator := &fakeTaskCreator{ret: &models.Task{ID: "tsk_xyz789"}}
	exec := NewTaskQueueExecutor(creator, nil)

	task := &ScheduledTask{
		ID: "sched-1",
		Config: TaskConfig{
			SessionID: "ses_12345678",
			Model:     string(models.AgentClaudeLike),
			Timeout:   90 * time.Second,
		},
	}
	execution := &TaskExecution{ID: "exec-1", Prompt: "run the nightly report"}

	resp, err := exec.Execute(context.Background(), task, execution)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "enqueued coding task tsk_xyz789" {
		t.Errorf("response = %q, want enqueued coding task tsk_xyz789", resp)
	}
	if creator.lastSessionID != "ses_12345678" {
		t.Errorf("session id = %q, want ses_12345678", creator.lastSessionID)
	}
	if creator.lastGoal != "run the nightly report" {
		t.Errorf("goal = %q, want the execution's prompt", creator.lastGoal)
	}
	if creator.lastAgent != models.AgentClaudeLike {
		t.Errorf("agent = %q, want %q", creator.lastAgent, models.AgentClaudeLike)
	}
	if creator.lastTimeoutMs != 90000 {
		t.Errorf("timeout ms = %d, want 90000", creator.lastTimeoutMs)
	}
	if execution.SessionID != "ses_12345678" {
		t.Errorf("execution session id not set")
	}
}

func TestTaskQueueExecutor_DefaultsAgentToAuto(t *testing.T) {
	creator := &fakeTaskCreator{}
	exec := NewTaskQueueExecutor(creator, nil)

	task := &ScheduledTask{ID: "sched-1", Config: TaskConfig{SessionID: "ses_1"}}
	execution := &TaskExecution{ID: "exec-1", Prompt: "goal"}

	if _, err := exec.Execute(context.Background(), task, execution); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creator.lastAgent != models.AgentAuto {
		t.Errorf("agent = %q, want %q", creator.lastAgent, models.AgentAuto)
	}
}

func TestTaskQueueExecutor_RequiresTaskAndExecution(t *testing.T) {
	exec := NewTaskQueueExecutor(&fakeTaskCreator{}, nil)

	if _, err := exec.Execute(context.Background(), nil, &TaskExecution{}); err == nil {
		t.Error("expected error for nil task")
	}
	if _, err := exec.Execute(context.Background(), &ScheduledTask{}, nil); err == nil {
		t.Error("expected error for nil execution")
	}
}

func TestTaskQueueExecutor_RequiresBoundSession(t *testing.T) {
	exec := NewTaskQueueExecutor(&fakeTaskCreator{}, nil)
	task := &ScheduledTask{ID: "sched-1"}
	execution := &TaskExecution{ID: "exec-1"}

	_, err := exec.Execute(context.Background(), task, execution)
	if err == nil {
		t.Error("expected error for task with no bound session")
	}
}

func TestTaskQueueExecutor_PropagatesCreateTaskError(t *testing.T) {
	expectedErr := errors.New("queue full")
	creator := &fakeTaskCreator{err: expectedErr}
	exec := NewTaskQueueExecutor(creator, nil)

	task := &ScheduledTask{ID: "sched-1", Config: TaskConfig{SessionID: "ses_1"}}
	execution := &TaskExecution{ID: "exec-1"}

	_, err := exec.Execute(context.Background(), task, execution)
	if !errors.Is(err, expectedErr) {
		t.Errorf("error = %v, want wrapping %v", err, expectedErr)
	}
}

func TestNoOpExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("returns configured response", func(t *testing.T) {
		exec := &NoOpExecutor{
			Response: "test response",
		}
		task := &ScheduledTask{ID: "test"}
		execution := &TaskExecution{ID: "exec"}

		resp, err := exec.Execute(ctx, task, execution)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp != "test response" {
			t.Errorf("response = %q, want %q", resp, "test response")
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		expectedErr := errors.New("configured error")
		exec := &NoOpExecutor{
			Error: expectedErr,
		}
		task := &ScheduledTask{ID: "test"}
		execution := &TaskExecution{ID: "exec"}

		_, err := exec.Execute(ctx, task, execution)
		if !errors.Is(err, expectedErr) {
			t.Errorf("error = %v, want %v", err, expectedErr)
		}
	})

	t.Run("respects context cancellation during delay", func(t *testing.T) {
		exec := &NoOpExecutor{
			Response: "test",
			Delay:    1 * time.Second,
		}
		task := &ScheduledTask{ID: "test"}
		execution := &TaskExecution{ID: "exec"}

		ctx, cancel := context.WithCancel(ctx)
		cancel() // Cancel immediately

		_, err := exec.Execute(ctx, task, execution)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("completes after delay", func(t *testing.T) {
		exec := &NoOpExecutor{
			Response: "delayed response",
			Delay:    10 * time.Millisecond,
		}
		task := &ScheduledTask{ID: "test"}
		execution := &TaskExecution{ID: "exec"}

		start := time.Now()
		resp, err := exec.Execute(ctx, task, execution)
		duration := time.Since(start)

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp != "delayed response" {
			t.Errorf("response = %q, want %q", resp, "delayed response")
		}
		if duration < 10*time.Millisecond {
			t.Errorf("expected at least 10ms delay, got %v", duration)
		}
	})
}

func TestCallbackExecutor(t *testing.T) {
	ctx := context.Background()

	t.Run("calls provided function", func(t *testing.T) {
		called := false
		exec := &CallbackExecutor{
			Fn: func(ctx context.Context, task *ScheduledTask, e *TaskExecution) (string, error) {
				called = true
				return "callback response", nil
			},
		}
		task := &ScheduledTask{ID: "test"}
		execution := &TaskExecution{ID: "exec"}

		resp, err := exec.Execute(ctx, task, execution)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called {
			t.Error("callback function was not called")
		}
		if resp != "callback response" {
			t.Errorf("response = %q, want %q", resp, "callback response")
		}
	})

	t.Run("returns error for nil function", func(t *testing.T) {
		exec := &CallbackExecutor{Fn: nil}
		task := &ScheduledTask{ID: "test"}
		execution := &TaskExecution{ID: "exec"}

		_, err := exec.Execute(ctx, task, execution)
		if err == nil {
			t.Error("expected error for nil function")
		}
	})

	t.Run("propagates errors from callback", func(t *testing.T) {
		expectedErr := errors.New("callback error")
		exec := &CallbackExecutor{
			Fn: func(ctx context.Context, task *ScheduledTask, e *TaskExecution) (string, error) {
				return "", expectedErr
			},
		}
		task := &ScheduledTask{ID: "test"}
		execution := &TaskExecution{ID: "exec"}

		_, err := exec.Execute(ctx, task, execution)
		if !errors.Is(err, expectedErr) {
			t.Errorf("error = %v, want %v", err, expectedErr)
		}
	})

	t.Run("receives correct arguments", func(t *testing.T) {
		var receivedTask *ScheduledTask
		var receivedExec *TaskExecution

		exec := &CallbackExecutor{
			Fn: func(ctx context.Context, task *ScheduledTask, e *TaskExecution) (string, error) {
				receivedTask = task
				receivedExec = e
				return "", nil
			},
		}
		task := &ScheduledTask{ID: "task-123", Name: "Test Task"}
		execution := &TaskExecution{ID: "exec-456", TaskID: "task-123"}

		_, err := exec.Execute(ctx, task, execution)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if receivedTask.ID != "task-123" {
			t.Errorf("task ID = %q, want %q", receivedTask.ID, "task-123")
		}
		if receivedExec.ID != "exec-456" {
			t.Errorf("execution ID = %q, want %q", receivedExec.ID, "exec-456")
		}
	})
}
