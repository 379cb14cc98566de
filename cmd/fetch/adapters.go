package main

import (
	"context"

	"github.com/fetchctl/fetch/internal/agent"
	"github.com/fetchctl/fetch/internal/commands"
	"github.com/fetchctl/fetch/internal/reflex"
	"github.com/fetchctl/fetch/internal/workspace"
	"github.com/fetchctl/fetch/pkg/models"
)

// workspaceLister adapts *workspace.Manager to commands.WorkspaceLister.
// The manager's List/Create take extra parameters (forceRefresh, template,
// initGit) the /workspace command has no use for, so this shim fills in
// the defaults a slash command would want: always fresh status, the
// default project template, and no git init unless asked for explicitly
// elsewhere.
type workspaceLister struct {
	manager *workspace.Manager
}

func (w workspaceLister) List(ctx context.Context) ([]*models.Workspace, error) {
	return w.manager.List(ctx, true)
}

func (w workspaceLister) Status(ctx context.Context, id string) (*models.Workspace, error) {
	return w.manager.GetStatus(ctx, id)
}

func (w workspaceLister) Create(ctx context.Context, id string, template models.WorkspaceTemplate) (*models.Workspace, error) {
	return w.manager.Create(ctx, id, template, false)
}

func (w workspaceLister) Delete(ctx context.Context, id string) error {
	return w.manager.Delete(ctx, id)
}

// commandToolLister adapts *agent.ToolRegistry to commands.ToolLister.
// The registry has no notion of a tool's danger level, so Danger is left
// blank rather than guessed.
type commandToolLister struct {
	registry *agent.ToolRegistry
}

func (l commandToolLister) ListTools() []commands.ToolInfo {
	summaries := l.registry.ListTools()
	out := make([]commands.ToolInfo, len(summaries))
	for i, s := range summaries {
		out[i] = commands.ToolInfo{Name: s.Name, Description: s.Description}
	}
	return out
}

// reflexToolLister adapts *agent.ToolRegistry to reflex.ToolLister.
type reflexToolLister struct {
	registry *agent.ToolRegistry
}

func (l reflexToolLister) ListTools() []reflex.ToolInfo {
	summaries := l.registry.ListTools()
	out := make([]reflex.ToolInfo, len(summaries))
	for i, s := range summaries {
		out[i] = reflex.ToolInfo{Name: s.Name, Description: s.Description}
	}
	return out
}
