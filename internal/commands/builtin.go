package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fetchctl/fetch/internal/schedule"
	"github.com/fetchctl/fetch/internal/skills"
	"github.com/fetchctl/fetch/internal/workspace"
	"github.com/fetchctl/fetch/pkg/models"
)

// SessionStore is the slice of internal/sessions.Store the builtin commands
// need. Narrowed to an interface so this package doesn't import sessions
// directly and can be unit tested against a fake.
type SessionStore interface {
	Update(ctx context.Context, session *models.Session) error
	CreateThread(ctx context.Context, sessionID string) (*models.Thread, error)
	GetThread(ctx context.Context, threadID string) (*models.Thread, error)
	ListThreads(ctx context.Context, sessionID string) ([]*models.Thread, error)
	AddActiveFile(ctx context.Context, sessionID, path string) error
	RemoveActiveFile(ctx context.Context, sessionID, path string) error
}

// WorkspaceLister is the slice of the (not-yet-built, spec section 4.12)
// Workspace Manager the /workspace command needs. Defined here so this
// package can be adapted ahead of that manager landing; cmd/fetch wires a
// real implementation once it exists.
type WorkspaceLister interface {
	List(ctx context.Context) ([]*models.Workspace, error)
	Status(ctx context.Context, id string) (*models.Workspace, error)
	Create(ctx context.Context, id string, template models.WorkspaceTemplate) (*models.Workspace, error)
	Delete(ctx context.Context, id string) error
}

// ToolInfo is one registered tool's metadata, as surfaced by /tools.
type ToolInfo struct {
	Name        string
	Description string
	Danger      string
}

// ToolLister is the slice of the (not-yet-built, spec section 4.5) Tool
// Registry that /tools needs.
type ToolLister interface {
	ListTools() []ToolInfo
}

// Deps bundles the collaborators builtin command handlers close over.
// Nil fields degrade gracefully: the handler reports the feature as
// unavailable rather than panicking, so this package can be adapted ahead
// of every dependency landing.
type Deps struct {
	Sessions  SessionStore
	Schedules schedule.Store
	Skills    []*skills.SkillEntry
	Workspace WorkspaceLister
	Tools     ToolLister
	Identity  *workspace.Identity
}

// RegisterBuiltins registers the spec section 4.3 command set:
// /add, /drop, /files, /clear, /workspace, /thread, /skill(s), /tool(s),
// /remind, /schedule, /cron, /identity.
func RegisterBuiltins(r *Registry, deps Deps) {
	mustRegister := func(cmd *Command) {
		if err := r.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register builtin command %q: %v", cmd.Name, err))
		}
	}

	mustRegister(&Command{
		Name:        "add",
		Description: "Add a file to the session's active-files context",
		Usage:       "/add <path> [path...]",
		AcceptsArgs: true,
		Category:    "context",
		Source:      "builtin",
		Handler:     addHandler(deps),
	})

	mustRegister(&Command{
		Name:        "drop",
		Description: "Remove a file from the session's active-files context",
		Usage:       "/drop <path> [path...]",
		AcceptsArgs: true,
		Category:    "context",
		Source:      "builtin",
		Handler:     dropHandler(deps),
	})

	mustRegister(&Command{
		Name:        "files",
		Description: "List the active files in this session",
		Category:    "context",
		Source:      "builtin",
		Handler:     filesHandler(),
	})

	mustRegister(&Command{
		Name:        "clear",
		Description: "Wipe the current thread's messages and active files",
		Category:    "context",
		Source:      "builtin",
		Handler:     clearHandler(deps),
	})

	mustRegister(&Command{
		Name:        "workspace",
		Aliases:     []string{"ws"},
		Description: "List, select, inspect, scaffold, or remove workspaces",
		Usage:       "/workspace [list|select|status|create|delete] [args]",
		AcceptsArgs: true,
		Category:    "workspace",
		Source:      "builtin",
		Handler:     workspaceHandler(deps),
	})

	mustRegister(&Command{
		Name:        "thread",
		Aliases:     []string{"threads"},
		Description: "List threads or switch the active one",
		Usage:       "/thread [list|new|switch <id>]",
		AcceptsArgs: true,
		Category:    "context",
		Source:      "builtin",
		Handler:     threadHandler(deps),
	})

	mustRegister(&Command{
		Name:        "skill",
		Aliases:     []string{"skills"},
		Description: "List available skills",
		Usage:       "/skills",
		AcceptsArgs: true,
		Category:    "system",
		Source:      "builtin",
		Handler:     skillsHandler(deps),
	})

	mustRegister(&Command{
		Name:        "tool",
		Aliases:     []string{"tools"},
		Description: "List the tools the agent can call",
		Usage:       "/tools",
		AcceptsArgs: true,
		Category:    "system",
		Source:      "builtin",
		Handler:     toolsHandler(deps),
	})

	mustRegister(&Command{
		Name:        "remind",
		Description: "Schedule a one-off reminder task",
		Usage:       "/remind <duration> <message>",
		AcceptsArgs: true,
		Category:    "scheduling",
		Source:      "builtin",
		Handler:     remindHandler(deps),
	})

	mustRegister(&Command{
		Name:        "schedule",
		Description: "Schedule a recurring task on a cron expression",
		Usage:       "/schedule <cron expression> <message>",
		AcceptsArgs: true,
		Category:    "scheduling",
		Source:      "builtin",
		Handler:     scheduleHandler(deps),
	})

	mustRegister(&Command{
		Name:        "cron",
		Description: "List, pause, resume, or delete scheduled tasks",
		Usage:       "/cron [list|pause|resume|delete] [id]",
		AcceptsArgs: true,
		Category:    "scheduling",
		Source:      "builtin",
		Handler:     cronHandler(deps),
	})

	mustRegister(&Command{
		Name:        "identity",
		Aliases:     []string{"whoami"},
		Description: "Show the agent's identity",
		Category:    "meta",
		Source:      "builtin",
		Handler:     identityHandler(deps),
	})
}

func addHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		paths := strings.Fields(inv.Args)
		if len(paths) == 0 {
			return &Result{Error: "usage: /add <path> [path...]"}, nil
		}
		if deps.Sessions == nil || inv.Session == nil {
			return &Result{Error: "no active session"}, nil
		}
		added := make([]string, 0, len(paths))
		for _, p := range paths {
			if err := deps.Sessions.AddActiveFile(ctx, inv.Session.ID, p); err != nil {
				return &Result{Error: fmt.Sprintf("add %s: %v", p, err)}, nil
			}
			added = append(added, p)
		}
		return &Result{Text: fmt.Sprintf("Added to context: %s", strings.Join(added, ", "))}, nil
	}
}

func dropHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		paths := strings.Fields(inv.Args)
		if len(paths) == 0 {
			return &Result{Error: "usage: /drop <path> [path...]"}, nil
		}
		if deps.Sessions == nil || inv.Session == nil {
			return &Result{Error: "no active session"}, nil
		}
		dropped := make([]string, 0, len(paths))
		for _, p := range paths {
			if err := deps.Sessions.RemoveActiveFile(ctx, inv.Session.ID, p); err != nil {
				return &Result{Error: fmt.Sprintf("drop %s: %v", p, err)}, nil
			}
			dropped = append(dropped, p)
		}
		return &Result{Text: fmt.Sprintf("Dropped from context: %s", strings.Join(dropped, ", "))}, nil
	}
}

func filesHandler() CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if inv.Session == nil || len(inv.Session.ActiveFiles) == 0 {
			return &Result{Text: "No active files."}, nil
		}
		return &Result{
			Text:     strings.Join(inv.Session.ActiveFiles, "\n"),
			Markdown: false,
			Data:     map[string]any{"active_files": inv.Session.ActiveFiles},
		}, nil
	}
}

// clearHandler implements spec.md section 3's "explicit /clear wipes
// messages and activeFiles only" by starting a fresh thread (the message
// log is append-only per thread, so "wipe" means "stop appending to the
// old one") and releasing every active file.
func clearHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if deps.Sessions == nil || inv.Session == nil {
			return &Result{Error: "no active session"}, nil
		}
		thread, err := deps.Sessions.CreateThread(ctx, inv.Session.ID)
		if err != nil {
			return &Result{Error: fmt.Sprintf("clear: %v", err)}, nil
		}
		for _, p := range append([]string(nil), inv.Session.ActiveFiles...) {
			_ = deps.Sessions.RemoveActiveFile(ctx, inv.Session.ID, p)
		}
		inv.Session.ActiveThreadID = thread.ID
		inv.Session.ActiveFiles = nil
		if err := deps.Sessions.Update(ctx, inv.Session); err != nil {
			return &Result{Error: fmt.Sprintf("clear: %v", err)}, nil
		}
		return &Result{Text: "Cleared. Started a new thread with an empty context."}, nil
	}
}

func workspaceHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if deps.Workspace == nil {
			return &Result{Error: "workspace manager is not configured"}, nil
		}
		sub, rest := SplitCommandArgs(inv.Args)
		switch sub {
		case "", "list":
			workspaces, err := deps.Workspace.List(ctx)
			if err != nil {
				return &Result{Error: fmt.Sprintf("workspace list: %v", err)}, nil
			}
			if len(workspaces) == 0 {
				return &Result{Text: "No workspaces found."}, nil
			}
			lines := make([]string, 0, len(workspaces))
			for _, w := range workspaces {
				marker := " "
				if w.IsActive {
					marker = "*"
				}
				lines = append(lines, fmt.Sprintf("%s %s (%s)", marker, w.ID, w.ProjectType))
			}
			return &Result{Text: strings.Join(lines, "\n")}, nil
		case "select":
			if rest == "" {
				return &Result{Error: "usage: /workspace select <id>"}, nil
			}
			ws, err := deps.Workspace.Status(ctx, rest)
			if err != nil {
				return &Result{Error: fmt.Sprintf("workspace select: %v", err)}, nil
			}
			if deps.Sessions != nil && inv.Session != nil {
				inv.Session.ActiveWorkspaceID = ws.ID
				if err := deps.Sessions.Update(ctx, inv.Session); err != nil {
					return &Result{Error: fmt.Sprintf("workspace select: %v", err)}, nil
				}
			}
			return &Result{Text: fmt.Sprintf("Active workspace: %s", ws.ID)}, nil
		case "status":
			id := rest
			if id == "" && inv.Session != nil {
				id = inv.Session.ActiveWorkspaceID
			}
			if id == "" {
				return &Result{Error: "no active workspace; usage: /workspace status <id>"}, nil
			}
			ws, err := deps.Workspace.Status(ctx, id)
			if err != nil {
				return &Result{Error: fmt.Sprintf("workspace status: %v", err)}, nil
			}
			text := fmt.Sprintf("%s: %s", ws.ID, ws.ProjectType)
			if ws.GitStatus != nil {
				text += fmt.Sprintf("\nbranch %s, +%d/-%d, %d modified", ws.GitStatus.Branch, ws.GitStatus.Ahead, ws.GitStatus.Behind, len(ws.GitStatus.Modified))
			}
			return &Result{Text: text}, nil
		case "create":
			parts := strings.Fields(rest)
			if len(parts) < 2 {
				return &Result{Error: "usage: /workspace create <id> <empty|node|python|rust|go|react|next>"}, nil
			}
			ws, err := deps.Workspace.Create(ctx, parts[0], models.WorkspaceTemplate(parts[1]))
			if err != nil {
				return &Result{Error: fmt.Sprintf("workspace create: %v", err)}, nil
			}
			return &Result{Text: fmt.Sprintf("Created workspace %s", ws.ID)}, nil
		case "delete":
			if rest == "" {
				return &Result{Error: "usage: /workspace delete <id>"}, nil
			}
			if inv.Session != nil && inv.Session.ActiveWorkspaceID == rest {
				return &Result{Error: "refusing to delete the active workspace"}, nil
			}
			if err := deps.Workspace.Delete(ctx, rest); err != nil {
				return &Result{Error: fmt.Sprintf("workspace delete: %v", err)}, nil
			}
			return &Result{Text: fmt.Sprintf("Deleted workspace %s", rest)}, nil
		default:
			return &Result{Error: fmt.Sprintf("unknown /workspace subcommand %q", sub)}, nil
		}
	}
}

func threadHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if deps.Sessions == nil || inv.Session == nil {
			return &Result{Error: "no active session"}, nil
		}
		sub, rest := SplitCommandArgs(inv.Args)
		switch sub {
		case "", "list":
			threads, err := deps.Sessions.ListThreads(ctx, inv.Session.ID)
			if err != nil {
				return &Result{Error: fmt.Sprintf("thread list: %v", err)}, nil
			}
			if len(threads) == 0 {
				return &Result{Text: "No threads yet."}, nil
			}
			lines := make([]string, 0, len(threads))
			for _, t := range threads {
				marker := " "
				if t.ID == inv.Session.ActiveThreadID {
					marker = "*"
				}
				title := t.Title
				if title == "" {
					title = t.ID
				}
				lines = append(lines, fmt.Sprintf("%s %s [%s]", marker, title, t.Status))
			}
			return &Result{Text: strings.Join(lines, "\n")}, nil
		case "new":
			thread, err := deps.Sessions.CreateThread(ctx, inv.Session.ID)
			if err != nil {
				return &Result{Error: fmt.Sprintf("thread new: %v", err)}, nil
			}
			inv.Session.ActiveThreadID = thread.ID
			if err := deps.Sessions.Update(ctx, inv.Session); err != nil {
				return &Result{Error: fmt.Sprintf("thread new: %v", err)}, nil
			}
			return &Result{Text: fmt.Sprintf("Started thread %s", thread.ID)}, nil
		case "switch":
			if rest == "" {
				return &Result{Error: "usage: /thread switch <id>"}, nil
			}
			thread, err := deps.Sessions.GetThread(ctx, rest)
			if err != nil {
				return &Result{Error: fmt.Sprintf("thread switch: %v", err)}, nil
			}
			if thread.SessionID != inv.Session.ID {
				return &Result{Error: "thread does not belong to this session"}, nil
			}
			inv.Session.ActiveThreadID = thread.ID
			if err := deps.Sessions.Update(ctx, inv.Session); err != nil {
				return &Result{Error: fmt.Sprintf("thread switch: %v", err)}, nil
			}
			return &Result{Text: fmt.Sprintf("Switched to thread %s", thread.ID)}, nil
		default:
			return &Result{Error: fmt.Sprintf("unknown /thread subcommand %q", sub)}, nil
		}
	}
}

func skillsHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if len(deps.Skills) == 0 {
			return &Result{Text: "No skills loaded."}, nil
		}
		sorted := append([]*skills.SkillEntry(nil), deps.Skills...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		lines := make([]string, 0, len(sorted))
		for _, s := range sorted {
			emoji := ""
			if s.Metadata != nil && s.Metadata.Emoji != "" {
				emoji = s.Metadata.Emoji + " "
			}
			lines = append(lines, fmt.Sprintf("%s%s — %s", emoji, s.Name, s.Description))
		}
		return &Result{Text: strings.Join(lines, "\n")}, nil
	}
}

func toolsHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if deps.Tools == nil {
			return &Result{Error: "tool registry is not configured"}, nil
		}
		tools := deps.Tools.ListTools()
		if len(tools) == 0 {
			return &Result{Text: "No tools registered."}, nil
		}
		sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
		lines := make([]string, 0, len(tools))
		for _, t := range tools {
			lines = append(lines, fmt.Sprintf("%s (%s) — %s", t.Name, t.Danger, t.Description))
		}
		return &Result{Text: strings.Join(lines, "\n")}, nil
	}
}

// remindHandler creates a one-off schedule.ScheduledTask firing `duration`
// from now, per SPEC_FULL.md section 4.6's "a scheduled entry's fire action
// is enqueue a task_create tool call against the Task Manager."
func remindHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if deps.Schedules == nil {
			return &Result{Error: "scheduler is not configured"}, nil
		}
		parts := strings.SplitN(strings.TrimSpace(inv.Args), " ", 2)
		if len(parts) < 2 {
			return &Result{Error: "usage: /remind <duration e.g. 10m> <message>"}, nil
		}
		d, err := time.ParseDuration(parts[0])
		if err != nil {
			return &Result{Error: fmt.Sprintf("invalid duration %q: %v", parts[0], err)}, nil
		}
		now := time.Now()
		task := &schedule.ScheduledTask{
			ID:        models.NewTaskID(),
			Name:      fmt.Sprintf("reminder for %s", inv.UserID),
			AgentID:   string(models.AgentAuto),
			Schedule:  "", // one-off: NextRunAt is authoritative, not re-derived
			Prompt:    parts[1],
			Config:    schedule.DefaultTaskConfig(),
			Status:    schedule.TaskStatusActive,
			NextRunAt: now.Add(d),
			CreatedAt: now,
			UpdatedAt: now,
			Metadata:  map[string]any{"kind": "remind", "session_id": sessionIDOf(inv)},
		}
		if err := deps.Schedules.CreateTask(ctx, task); err != nil {
			return &Result{Error: fmt.Sprintf("remind: %v", err)}, nil
		}
		return &Result{Text: fmt.Sprintf("Reminder set for %s (%s)", task.NextRunAt.Format(time.RFC3339), task.ID)}, nil
	}
}

// scheduleHandler creates a recurring schedule.ScheduledTask on a cron
// expression.
func scheduleHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if deps.Schedules == nil {
			return &Result{Error: "scheduler is not configured"}, nil
		}
		parts := strings.SplitN(strings.TrimSpace(inv.Args), " ", 2)
		if len(parts) < 2 {
			return &Result{Error: "usage: /schedule <cron expression> <message>"}, nil
		}
		now := time.Now()
		task := &schedule.ScheduledTask{
			ID:        models.NewTaskID(),
			Name:      fmt.Sprintf("schedule for %s", inv.UserID),
			AgentID:   string(models.AgentAuto),
			Schedule:  parts[0],
			Prompt:    parts[1],
			Config:    schedule.DefaultTaskConfig(),
			Status:    schedule.TaskStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
			Metadata:  map[string]any{"kind": "schedule", "session_id": sessionIDOf(inv)},
		}
		if err := deps.Schedules.CreateTask(ctx, task); err != nil {
			return &Result{Error: fmt.Sprintf("schedule: %v", err)}, nil
		}
		return &Result{Text: fmt.Sprintf("Scheduled %q (%s)", task.Schedule, task.ID)}, nil
	}
}

func cronHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if deps.Schedules == nil {
			return &Result{Error: "scheduler is not configured"}, nil
		}
		sub, rest := SplitCommandArgs(inv.Args)
		switch sub {
		case "", "list":
			tasks, err := deps.Schedules.ListTasks(ctx, schedule.ListTasksOptions{})
			if err != nil {
				return &Result{Error: fmt.Sprintf("cron list: %v", err)}, nil
			}
			if len(tasks) == 0 {
				return &Result{Text: "No scheduled tasks."}, nil
			}
			lines := make([]string, 0, len(tasks))
			for _, t := range tasks {
				lines = append(lines, fmt.Sprintf("%s [%s] %s — next %s", t.ID, t.Status, t.Name, t.NextRunAt.Format(time.RFC3339)))
			}
			return &Result{Text: strings.Join(lines, "\n")}, nil
		case "pause", "resume", "delete":
			if rest == "" {
				return &Result{Error: fmt.Sprintf("usage: /cron %s <id>", sub)}, nil
			}
			if sub == "delete" {
				if err := deps.Schedules.DeleteTask(ctx, rest); err != nil {
					return &Result{Error: fmt.Sprintf("cron delete: %v", err)}, nil
				}
				return &Result{Text: fmt.Sprintf("Deleted scheduled task %s", rest)}, nil
			}
			task, err := deps.Schedules.GetTask(ctx, rest)
			if err != nil {
				return &Result{Error: fmt.Sprintf("cron %s: %v", sub, err)}, nil
			}
			if sub == "pause" {
				task.Status = schedule.TaskStatusPaused
			} else {
				task.Status = schedule.TaskStatusActive
			}
			task.UpdatedAt = time.Now()
			if err := deps.Schedules.UpdateTask(ctx, task); err != nil {
				return &Result{Error: fmt.Sprintf("cron %s: %v", sub, err)}, nil
			}
			return &Result{Text: fmt.Sprintf("%s: %s", capitalize(sub), task.ID)}, nil
		default:
			return &Result{Error: fmt.Sprintf("unknown /cron subcommand %q", sub)}, nil
		}
	}
}

func identityHandler(deps Deps) CommandHandler {
	return func(ctx context.Context, inv *Invocation) (*Result, error) {
		if deps.Identity == nil {
			return &Result{Text: "No identity configured."}, nil
		}
		id := deps.Identity
		emoji := id.Emoji
		if emoji != "" {
			emoji += " "
		}
		text := fmt.Sprintf("%s%s", emoji, id.Name)
		if id.Creature != "" {
			text += fmt.Sprintf(" (%s)", id.Creature)
		}
		if id.Vibe != "" {
			text += "\n" + id.Vibe
		}
		return &Result{Text: text}, nil
	}
}

func sessionIDOf(inv *Invocation) string {
	if inv.Session == nil {
		return ""
	}
	return inv.Session.ID
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
