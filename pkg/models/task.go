package models

import "time"

// Agent identifies which harness adapter (or "auto") should carry out a task.
type Agent string

const (
	AgentClaudeLike  Agent = "claude-like"
	AgentGeminiLike  Agent = "gemini-like"
	AgentCopilotLike Agent = "copilot-like"
	AgentAuto        Agent = "auto"
)

// AdapterTrialOrder is the fixed order the "auto" agent tries adapters in,
// per spec section 9's resolved open question: try in order until one
// succeeds, recording every attempt on the task for observability.
var AdapterTrialOrder = []Agent{AgentClaudeLike, AgentGeminiLike, AgentCopilotLike}

// TaskStatus is the coding-task lifecycle state (spec section 4.6).
type TaskStatus string

const (
	TaskPending      TaskStatus = "pending"
	TaskRunning      TaskStatus = "running"
	TaskWaitingInput TaskStatus = "waiting_input"
	TaskCompleted    TaskStatus = "completed"
	TaskFailed       TaskStatus = "failed"
	TaskCancelled    TaskStatus = "cancelled"
	TaskTimedOut     TaskStatus = "timed_out"
)

// IsTerminal reports whether the status is one the task cannot leave.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskTimedOut:
		return true
	default:
		return false
	}
}

// MaxProgressLogEntries bounds the Task.ProgressLog ring (spec section 3).
const MaxProgressLogEntries = 100

// ProgressEntry is one line appended to a task's bounded progress ring.
type ProgressEntry struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// FilesModified tracks file operations a harness reported during a task.
type FilesModified struct {
	Created  []string `json:"created,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Deleted  []string `json:"deleted,omitempty"`
}

// Task is a user-requested coding job carried out by one harness execution.
type Task struct {
	ID              string          `json:"id"` // prefix tsk_
	SessionID       string          `json:"session_id"`
	Goal            string          `json:"goal"`
	Agent           Agent           `json:"agent"`
	AdapterAttempts []Agent         `json:"adapter_attempts,omitempty"`
	WorkspaceID     string          `json:"workspace_id"`
	Status          TaskStatus      `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	PendingQuestion string          `json:"pending_question,omitempty"`
	ProgressLog     []ProgressEntry `json:"progress_log,omitempty"`
	FilesModified   FilesModified   `json:"files_modified"`
	ExitCode        *int            `json:"exit_code,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	Error           string          `json:"error,omitempty"`
	TimeoutMs       int             `json:"timeout_ms"`
	HarnessID       string          `json:"harness_id,omitempty"` // prefix hrn_
}

// AppendProgress appends an entry, evicting the oldest once the ring fills.
func (t *Task) AppendProgress(at time.Time, text string) {
	t.ProgressLog = append(t.ProgressLog, ProgressEntry{At: at, Text: text})
	if overflow := len(t.ProgressLog) - MaxProgressLogEntries; overflow > 0 {
		t.ProgressLog = t.ProgressLog[overflow:]
	}
}

// HarnessExecution exists only while a child process is alive, owned by a Task.
type HarnessExecution struct {
	ID             string    `json:"id"` // prefix hrn_
	TaskID         string    `json:"task_id"`
	AdapterName    Agent     `json:"adapter_name"`
	PID            int       `json:"pid"`
	StdoutBuffer   string    `json:"stdout_buffer,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastOutputAt   time.Time `json:"last_output_at"`
	LastQuestionID string    `json:"last_question_id,omitempty"`
}

// MaxStdoutBufferBytes bounds the rolling stdout window kept for summaries.
const MaxStdoutBufferBytes = 1 << 20 // 1 MiB
