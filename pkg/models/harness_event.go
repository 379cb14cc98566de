package models

import "time"

// HarnessEventType enumerates the events a harness adapter's OutputParser
// emits while a child process runs (spec section 4.7).
type HarnessEventType string

const (
	HarnessLine      HarnessEventType = "line"
	HarnessProgress  HarnessEventType = "progress"
	HarnessFileOp    HarnessEventType = "file_op"
	HarnessQuestion  HarnessEventType = "question"
	HarnessComplete  HarnessEventType = "complete"
	HarnessErrorKind HarnessEventType = "error"
)

// FileOpKind is the operation reported by extractFileOperations.
type FileOpKind string

const (
	FileOpCreate FileOpKind = "create"
	FileOpModify FileOpKind = "modify"
	FileOpDelete FileOpKind = "delete"
)

// HarnessEvent is one parsed event out of a running harness's stdout.
type HarnessEvent struct {
	Type      HarnessEventType `json:"type"`
	At        time.Time        `json:"at"`
	Line      string           `json:"line,omitempty"`
	Progress  string           `json:"progress,omitempty"`
	FileOp    FileOpKind       `json:"file_op,omitempty"`
	Path      string           `json:"path,omitempty"`
	Question  string           `json:"question,omitempty"`
	ErrorText string           `json:"error_text,omitempty"`
}

// TaskLifecycleEvent names the coarser, task-facing events Task Manager
// forwards to the session (the "harness:*" event family of spec 4.7).
type TaskLifecycleEvent string

const (
	EventHarnessStarted   TaskLifecycleEvent = "harness:started"
	EventHarnessOutput    TaskLifecycleEvent = "harness:output"
	EventHarnessQuestion  TaskLifecycleEvent = "harness:question"
	EventHarnessProgress  TaskLifecycleEvent = "harness:progress"
	EventHarnessCompleted TaskLifecycleEvent = "harness:completed"
	EventHarnessFailed    TaskLifecycleEvent = "harness:failed"
	EventHarnessTimeout   TaskLifecycleEvent = "harness:timeout"
)
