package reflex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fetchctl/fetch/internal/datetime"
	"github.com/fetchctl/fetch/internal/skills"
	"github.com/fetchctl/fetch/internal/workspace"
	"github.com/fetchctl/fetch/pkg/models"
)

// ThreadLister is the slice of sessions.Store the "threads" reflex needs.
type ThreadLister interface {
	ListThreads(ctx context.Context, sessionID string) ([]*models.Thread, error)
}

// ToolInfo is one registered tool's metadata, as surfaced by the "tools"
// reflex.
type ToolInfo struct {
	Name        string
	Description string
}

// ToolLister is the slice of the (not-yet-built) Tool Registry the
// "tools" reflex needs.
type ToolLister interface {
	ListTools() []ToolInfo
}

// Deps bundles the collaborators the built-in reflexes close over. A nil
// field degrades to a short "not available" response rather than panicking.
type Deps struct {
	Threads  ThreadLister
	Skills   []*skills.SkillEntry
	Tools    ToolLister
	Identity *workspace.Identity
}

// RegisterBuiltins installs the spec section 4.2 (and SPEC_FULL.md's
// expansion) pre-populated reflex set: help, status, stop, undo, clear,
// whoami, identity, threads, skills, tools, scheduling.
func RegisterBuiltins(r *Registry, deps Deps) {
	r.Register(&Reflex{
		Name:     "help",
		Triggers: []string{"help", "commands", "?"},
		Priority: 10,
		Category: CategoryInfo,
		Handler: func(ctx context.Context, rc *Context) Response {
			return Response{Matched: true, Text: "Send /help for the full command list, or just tell me what you need."}
		},
	})

	r.Register(&Reflex{
		Name:     "status",
		Triggers: []string{"status"},
		Priority: 10,
		Category: CategoryInfo,
		Handler: func(ctx context.Context, rc *Context) Response {
			if rc.Session == nil {
				return Response{Matched: true, Text: "No active session."}
			}
			text := "Listening."
			if rc.Session.ActiveTaskID != "" {
				text = fmt.Sprintf("Task %s is running.", rc.Session.ActiveTaskID)
			} else if rc.Session.PendingApproval != nil {
				text = fmt.Sprintf("Waiting on your approval for %s.", rc.Session.PendingApproval.ToolName)
			}
			if !rc.Session.LastActivityAt.IsZero() {
				text = fmt.Sprintf("%s Last activity %s.", text, datetime.FormatRelativeTime(rc.Session.LastActivityAt, time.Now()))
			}
			return Response{Matched: true, Text: text}
		},
	})

	r.Register(&Reflex{
		Name:     "stop",
		Triggers: []string{"stop", "abort", "cancel"},
		Priority: 90,
		Category: CategorySafety,
		Handler: func(ctx context.Context, rc *Context) Response {
			if rc.Session == nil || !rc.Session.HasActiveTask() {
				return Response{Matched: true, Text: "Nothing is running."}
			}
			return Response{Matched: true, Text: "Stopping the current task.", Action: &Action{Type: ActionStop}}
		},
	})

	r.Register(&Reflex{
		Name:     "undo",
		Triggers: []string{"undo", "revert"},
		Priority: 85,
		Category: CategorySafety,
		Handler: func(ctx context.Context, rc *Context) Response {
			if rc.Session == nil || rc.Session.GitStartCommit == "" {
				return Response{Matched: true, Text: "Nothing to undo."}
			}
			return Response{
				Matched: true,
				Text:    fmt.Sprintf("Reverting the workspace to %s.", rc.Session.GitStartCommit),
				Action:  &Action{Type: ActionUndo},
			}
		},
	})

	r.Register(&Reflex{
		Name:     "clear",
		Triggers: []string{"clear", "reset"},
		Priority: 80,
		Category: CategorySafety,
		Handler: func(ctx context.Context, rc *Context) Response {
			return Response{Matched: true, Text: "Cleared.", Action: &Action{Type: ActionClear}}
		},
	})

	r.Register(&Reflex{
		Name:     "pause",
		Triggers: []string{"pause", "hold on", "wait"},
		Priority: 85,
		Category: CategorySafety,
		Handler: func(ctx context.Context, rc *Context) Response {
			return Response{Matched: true, Text: "Paused.", Action: &Action{Type: ActionPause, Mode: models.ModeGuarding}}
		},
	})

	r.Register(&Reflex{
		Name:     "resume",
		Triggers: []string{"resume", "continue", "go ahead"},
		Priority: 85,
		Category: CategorySafety,
		Handler: func(ctx context.Context, rc *Context) Response {
			return Response{Matched: true, Text: "Resuming.", Action: &Action{Type: ActionResume, Mode: models.ModeListening}}
		},
	})

	r.Register(&Reflex{
		Name:     "whoami",
		Triggers: []string{"whoami", "who are you"},
		Priority: 8,
		Category: CategoryMeta,
		Handler: func(ctx context.Context, rc *Context) Response {
			if rc.Session == nil {
				return Response{Matched: true, Text: "No session on file."}
			}
			return Response{Matched: true, Text: fmt.Sprintf("User %s, session %s.", rc.Session.UserID, rc.Session.ID)}
		},
	})

	r.Register(&Reflex{
		Name:     "identity",
		Triggers: []string{"identity"},
		Priority: 6,
		Category: CategoryMeta,
		Handler: func(ctx context.Context, rc *Context) Response {
			if deps.Identity == nil {
				return Response{Matched: true, Text: "No identity configured."}
			}
			return Response{Matched: true, Text: fmt.Sprintf("%s %s", deps.Identity.Emoji, deps.Identity.Name)}
		},
	})

	r.Register(&Reflex{
		Name:     "threads",
		Triggers: []string{"threads", "thread"},
		Priority: 5,
		Category: CategoryMeta,
		Handler: func(ctx context.Context, rc *Context) Response {
			if deps.Threads == nil || rc.Session == nil {
				return Response{Matched: true, Text: "No threads available."}
			}
			threads, err := deps.Threads.ListThreads(ctx, rc.Session.ID)
			if err != nil || len(threads) == 0 {
				return Response{Matched: true, Text: "No threads yet."}
			}
			return Response{Matched: true, Text: fmt.Sprintf("%d thread(s). Use /thread list for details.", len(threads))}
		},
	})

	r.Register(&Reflex{
		Name:     "skills",
		Triggers: []string{"skills"},
		Priority: 10,
		Category: CategorySystem,
		Handler: func(ctx context.Context, rc *Context) Response {
			if len(deps.Skills) == 0 {
				return Response{Matched: true, Text: "No skills loaded."}
			}
			names := make([]string, 0, len(deps.Skills))
			for _, s := range deps.Skills {
				names = append(names, s.Name)
			}
			sort.Strings(names)
			return Response{Matched: true, Text: strings.Join(names, ", ")}
		},
	})

	r.Register(&Reflex{
		Name:     "tools",
		Triggers: []string{"tools"},
		Priority: 10,
		Category: CategorySystem,
		Handler: func(ctx context.Context, rc *Context) Response {
			if deps.Tools == nil {
				return Response{Matched: true, Text: "No tools registered."}
			}
			tools := deps.Tools.ListTools()
			if len(tools) == 0 {
				return Response{Matched: true, Text: "No tools registered."}
			}
			names := make([]string, 0, len(tools))
			for _, t := range tools {
				names = append(names, t.Name)
			}
			sort.Strings(names)
			return Response{Matched: true, Text: strings.Join(names, ", ")}
		},
	})

	r.Register(&Reflex{
		Name:     "scheduling",
		Triggers: []string{"scheduling", "schedules", "reminders"},
		Priority: 10,
		Category: CategorySystem,
		Handler: func(ctx context.Context, rc *Context) Response {
			return Response{Matched: true, Text: "Use /remind, /schedule, or /cron to manage scheduled tasks."}
		},
	})
}
