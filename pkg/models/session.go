// Package models provides the durable domain types shared across the
// orchestrator core: sessions, threads, messages, tasks, harness executions,
// workspaces, and the mode/circuit state singletons.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// newPrefixedID trims a uuid down to n hex-ish characters and prefixes it,
// matching the nanoid-style ID shapes of spec section 6.2 (tsk_/ses_/hrn_).
func newPrefixedID(prefix string, n int) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n > len(raw) {
		n = len(raw)
	}
	return prefix + raw[:n]
}

// NewTaskID returns a new task identifier: "tsk_" + 10 chars.
func NewTaskID() string { return newPrefixedID("tsk_", 10) }

// NewSessionID returns a new session identifier: "ses_" + 8 chars.
func NewSessionID() string { return newPrefixedID("ses_", 8) }

// NewHarnessID returns a new harness execution identifier: "hrn_" + 8 chars.
func NewHarnessID() string { return newPrefixedID("hrn_", 8) }

// NewThreadID returns a new thread identifier.
func NewThreadID() string { return newPrefixedID("thr_", 12) }

// NewMessageID returns a new message identifier.
func NewMessageID() string { return newPrefixedID("msg_", 12) }

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry in a thread's append-only log.
type Message struct {
	ID          string         `json:"id"`
	ThreadID    string         `json:"thread_id"`
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	Timestamp   time.Time      `json:"timestamp"`
	ToolCallID  string         `json:"tool_call_id,omitempty"`
	Name        string         `json:"name,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
	ToolCalls   []ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []ToolResult   `json:"tool_results,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ThreadStatus is the lifecycle state of a conversation thread.
type ThreadStatus string

const (
	ThreadActive   ThreadStatus = "active"
	ThreadPaused   ThreadStatus = "paused"
	ThreadArchived ThreadStatus = "archived"
)

// Thread is one logical conversation within a session.
type Thread struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Title     string       `json:"title,omitempty"`
	Status    ThreadStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Summary   string       `json:"summary,omitempty"`
}

// Autonomy controls how much confirmation the agent requires before acting.
type Autonomy string

const (
	AutonomyManual Autonomy = "manual"
	AutonomyGuided Autonomy = "guided"
	AutonomyFull   Autonomy = "full"
)

// Preferences holds per-session behavioral settings.
type Preferences struct {
	Autonomy   Autonomy `json:"autonomy"`
	Verbose    bool     `json:"verbose"`
	AutoCommit bool     `json:"auto_commit"`
}

// DefaultPreferences returns the spec's default preference set.
func DefaultPreferences() Preferences {
	return Preferences{Autonomy: AutonomyGuided, Verbose: false, AutoCommit: false}
}

// PendingApproval is a write-tool proposal awaiting a yes/no from the user.
type PendingApproval struct {
	ToolName    string `json:"tool_name"`
	Args        string `json:"args"` // raw JSON
	Description string `json:"description"`
	Diff        string `json:"diff,omitempty"`
}

// Session is the durable per-user state: threads, messages, workspace
// selection, and pending approvals. Keyed by userId; created on first
// message and never deleted.
type Session struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	CreatedAt         time.Time        `json:"created_at"`
	LastActivityAt    time.Time        `json:"last_activity_at"`
	Preferences       Preferences      `json:"preferences"`
	ActiveWorkspaceID string           `json:"active_workspace_id,omitempty"`
	ActiveTaskID      string           `json:"active_task_id,omitempty"`
	PendingApproval   *PendingApproval `json:"pending_approval,omitempty"`
	ActiveThreadID    string           `json:"active_thread_id"`
	ActiveFiles       []string         `json:"active_files,omitempty"`
	GitStartCommit    string           `json:"git_start_commit,omitempty"`
}

// HasActiveTask reports whether the session currently owns a non-terminal task.
func (s *Session) HasActiveTask() bool { return s.ActiveTaskID != "" }
