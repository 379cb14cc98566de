// Package interact implements the two side-effect tools the agent uses to
// communicate back to the user outside a normal text reply (spec section
// 4.5): ask_user and report_progress.
package interact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fetchctl/fetch/internal/agent"
	"github.com/fetchctl/fetch/pkg/models"
)

// MaxQuestionChars bounds ask_user's question field (spec section 6.2).
const MaxQuestionChars = 500

// MaxProgressChars bounds report_progress's text field (spec section 6.2).
const MaxProgressChars = 500

// ModeTransitioner is the slice of *mode.Manager ask_user needs to enter
// WAITING while a question is outstanding.
type ModeTransitioner interface {
	Transition(to models.Mode) error
}

// ApprovalSetter is the slice of sessions.Store ask_user needs to record
// the outstanding question as a pending approval.
type ApprovalSetter interface {
	SetPendingApproval(ctx context.Context, sessionID string, approval *models.PendingApproval) error
}

// AskUserTool pauses the agent loop on a question for the human to answer.
// It reuses the session's pendingApproval slot (spec section 3: "pendingApproval
// non-null only when a write-tool was proposed and not yet resolved") since
// there is no separate pending-question field in the session model; the
// router's reply interpretation falls back to a normal agent turn for any
// answer that isn't a bare yes/no.
type AskUserTool struct {
	sessions ApprovalSetter
	mode     ModeTransitioner
}

// NewAskUserTool returns the ask_user tool.
func NewAskUserTool(sessions ApprovalSetter, mode ModeTransitioner) *AskUserTool {
	return &AskUserTool{sessions: sessions, mode: mode}
}

func (t *AskUserTool) Name() string { return "ask_user" }
func (t *AskUserTool) Description() string {
	return "Ask the user a clarifying question and wait for their reply"
}
func (t *AskUserTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"question":{"type":"string","description":"Up to 500 characters"}},"required":["question"]}`)
}

func (t *AskUserTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("ask_user: invalid params: %w", err)
	}
	if input.Question == "" {
		return nil, fmt.Errorf("ask_user: question is required")
	}
	if len(input.Question) > MaxQuestionChars {
		return &agent.ToolResult{Content: fmt.Sprintf("question exceeds %d characters", MaxQuestionChars), IsError: true}, nil
	}

	session := agent.SessionFromContext(ctx)
	if session == nil {
		return nil, fmt.Errorf("ask_user: no session in context")
	}

	approval := &models.PendingApproval{ToolName: t.Name(), Description: input.Question}
	if err := t.sessions.SetPendingApproval(ctx, session.ID, approval); err != nil {
		return nil, fmt.Errorf("ask_user: persist pending question: %w", err)
	}
	session.PendingApproval = approval

	if t.mode != nil {
		if err := t.mode.Transition(models.ModeWaiting); err != nil {
			return nil, fmt.Errorf("ask_user: enter waiting mode: %w", err)
		}
	}

	return &agent.ToolResult{Content: input.Question}, nil
}

// ProgressFunc is called with every report_progress invocation so it can
// reach the transport's throttled progress-message pump (spec section 5's
// "transport output pump throttles progress messages").
type ProgressFunc func(sessionID, text string)

// ReportProgressTool emits a progress update visible to the user without
// ending the agent's turn.
type ReportProgressTool struct {
	onProgress ProgressFunc
}

// NewReportProgressTool returns the report_progress tool.
func NewReportProgressTool(onProgress ProgressFunc) *ReportProgressTool {
	if onProgress == nil {
		onProgress = func(string, string) {}
	}
	return &ReportProgressTool{onProgress: onProgress}
}

func (t *ReportProgressTool) Name() string { return "report_progress" }
func (t *ReportProgressTool) Description() string {
	return "Send the user a brief status update mid-turn"
}
func (t *ReportProgressTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"text":{"type":"string","description":"Up to 500 characters"}},"required":["text"]}`)
}

func (t *ReportProgressTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("report_progress: invalid params: %w", err)
	}
	if input.Text == "" {
		return nil, fmt.Errorf("report_progress: text is required")
	}
	if len(input.Text) > MaxProgressChars {
		return &agent.ToolResult{Content: fmt.Sprintf("progress message exceeds %d characters", MaxProgressChars), IsError: true}, nil
	}

	sessionID := ""
	if session := agent.SessionFromContext(ctx); session != nil {
		sessionID = session.ID
	}
	t.onProgress(sessionID, input.Text)

	return &agent.ToolResult{Content: "progress sent"}, nil
}
