// Package tasktools exposes the Task Manager's operations (spec section
// 4.6) as agent tools: task_create, task_cancel, task_respond.
package tasktools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fetchctl/fetch/internal/agent"
	"github.com/fetchctl/fetch/pkg/models"
)

// MaxGoalChars bounds task_create's goal field (spec section 6.2).
const MaxGoalChars = 2000

// MaxResponseChars bounds task_respond's text field (spec section 6.2).
const MaxResponseChars = 1000

// Manager is the slice of *tasks.Manager the tools need.
type Manager interface {
	CreateTask(ctx context.Context, sessionID, goal string, agent models.Agent, workspaceID string, timeoutMs int) (*models.Task, error)
	GetCurrent() (*models.Task, bool)
	Cancel(taskID string) error
	Respond(taskID, text string) error
}

// CreateTool enqueues a coding task on the session's current workspace.
type CreateTool struct{ manager Manager }

// NewCreateTool returns the task_create tool.
func NewCreateTool(manager Manager) *CreateTool { return &CreateTool{manager: manager} }

func (t *CreateTool) Name() string { return "task_create" }
func (t *CreateTool) Description() string {
	return "Enqueue a coding task to run in the sandbox via a harness adapter"
}
func (t *CreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"goal":{"type":"string","description":"What the task should accomplish, up to 2000 characters"},"agent":{"type":"string","enum":["claude-like","gemini-like","copilot-like","auto"]},"timeout_ms":{"type":"integer","description":"Clamped to [1000, 1800000]; default 300000"}},"required":["goal"]}`)
}

func (t *CreateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Goal      string `json:"goal"`
		Agent     string `json:"agent"`
		TimeoutMs int    `json:"timeout_ms"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("task_create: invalid params: %w", err)
	}
	if input.Goal == "" {
		return nil, fmt.Errorf("task_create: goal is required")
	}
	if len(input.Goal) > MaxGoalChars {
		return &agent.ToolResult{Content: fmt.Sprintf("goal exceeds %d characters", MaxGoalChars), IsError: true}, nil
	}

	session := agent.SessionFromContext(ctx)
	if session == nil {
		return nil, fmt.Errorf("task_create: no session in context")
	}
	if session.HasActiveTask() {
		return &agent.ToolResult{Content: fmt.Sprintf("a task is already running (%s)", session.ActiveTaskID), IsError: true}, nil
	}

	agentKind := models.Agent(input.Agent)
	if agentKind == "" {
		agentKind = models.AgentAuto
	}
	timeoutMs := clampTimeout(input.TimeoutMs)

	task, err := t.manager.CreateTask(ctx, session.ID, input.Goal, agentKind, session.ActiveWorkspaceID, timeoutMs)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	session.ActiveTaskID = task.ID

	payload, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

func clampTimeout(ms int) int {
	const (
		min = 1000
		max = 30 * 60 * 1000
	)
	if ms <= 0 {
		return 5 * 60 * 1000
	}
	if ms < min {
		return min
	}
	if ms > max {
		return max
	}
	return ms
}

// CancelTool cancels the session's running task.
type CancelTool struct{ manager Manager }

// NewCancelTool returns the task_cancel tool.
func NewCancelTool(manager Manager) *CancelTool { return &CancelTool{manager: manager} }

func (t *CancelTool) Name() string        { return "task_cancel" }
func (t *CancelTool) Description() string { return "Cancel the session's running or pending task" }
func (t *CancelTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"string","description":"Defaults to the session's active task"}}}`)
}

func (t *CancelTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		TaskID string `json:"task_id"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, fmt.Errorf("task_cancel: invalid params: %w", err)
		}
	}
	if input.TaskID == "" {
		if session := agent.SessionFromContext(ctx); session != nil {
			input.TaskID = session.ActiveTaskID
		}
	}
	if input.TaskID == "" {
		return &agent.ToolResult{Content: "no active task to cancel", IsError: true}, nil
	}

	if err := t.manager.Cancel(input.TaskID); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	if session := agent.SessionFromContext(ctx); session != nil && session.ActiveTaskID == input.TaskID {
		session.ActiveTaskID = ""
	}
	return &agent.ToolResult{Content: fmt.Sprintf("task %s cancelled", input.TaskID)}, nil
}

// RespondTool writes a line to the currently waiting task's stdin (spec
// section 4.6's "waiting_input -> running" transition).
type RespondTool struct{ manager Manager }

// NewRespondTool returns the task_respond tool.
func NewRespondTool(manager Manager) *RespondTool { return &RespondTool{manager: manager} }

func (t *RespondTool) Name() string        { return "task_respond" }
func (t *RespondTool) Description() string { return "Answer a running task's pending question" }
func (t *RespondTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"Up to 1000 characters"},"task_id":{"type":"string","description":"Defaults to the session's active task"}},"required":["text"]}`)
}

func (t *RespondTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Text   string `json:"text"`
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("task_respond: invalid params: %w", err)
	}
	if len(input.Text) > MaxResponseChars {
		return &agent.ToolResult{Content: fmt.Sprintf("response exceeds %d characters", MaxResponseChars), IsError: true}, nil
	}
	if input.TaskID == "" {
		if session := agent.SessionFromContext(ctx); session != nil {
			input.TaskID = session.ActiveTaskID
		}
	}
	if input.TaskID == "" {
		return &agent.ToolResult{Content: "no active task awaiting a response", IsError: true}, nil
	}

	current, ok := t.manager.GetCurrent()
	if !ok || current.ID != input.TaskID || current.Status != models.TaskWaitingInput {
		return &agent.ToolResult{Content: "not_waiting_input", IsError: true}, nil
	}

	if err := t.manager.Respond(input.TaskID, input.Text); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("response forwarded to task %s", input.TaskID)}, nil
}
