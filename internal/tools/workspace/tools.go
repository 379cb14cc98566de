// Package workspace exposes the Workspace Manager's operations (spec
// section 4.12) as agent tools: workspace_list, workspace_select,
// workspace_status, workspace_create, workspace_delete.
package workspace

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fetchctl/fetch/internal/agent"
	"github.com/fetchctl/fetch/pkg/models"
)

// Manager is the slice of *workspace.Manager the tools need.
type Manager interface {
	List(ctx context.Context, forceRefresh bool) ([]*models.Workspace, error)
	Select(ctx context.Context, id string) (*models.Workspace, error)
	GetStatus(ctx context.Context, id string) (*models.Workspace, error)
	Create(ctx context.Context, name string, template models.WorkspaceTemplate, initGit bool) (*models.Workspace, error)
	Delete(ctx context.Context, id string) error
}

// ListTool enumerates directories under the sandbox workspace root.
type ListTool struct{ manager Manager }

// NewListTool returns the workspace_list tool.
func NewListTool(manager Manager) *ListTool { return &ListTool{manager: manager} }

func (t *ListTool) Name() string { return "workspace_list" }
func (t *ListTool) Description() string {
	return "List the project directories discovered under the sandbox workspace root"
}
func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"force_refresh":{"type":"boolean","description":"Bypass the workspace cache and rediscover from scratch"}}}`)
}

func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ForceRefresh bool `json:"force_refresh"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, fmt.Errorf("workspace_list: invalid params: %w", err)
		}
	}
	workspaces, err := t.manager.List(ctx, input.ForceRefresh)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	payload, err := json.Marshal(workspaces)
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// SelectTool sets the session's active workspace.
type SelectTool struct{ manager Manager }

// NewSelectTool returns the workspace_select tool.
func NewSelectTool(manager Manager) *SelectTool { return &SelectTool{manager: manager} }

func (t *SelectTool) Name() string        { return "workspace_select" }
func (t *SelectTool) Description() string { return "Set the session's active workspace by id" }
func (t *SelectTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","description":"Workspace id (directory name)"}},"required":["id"]}`)
}

func (t *SelectTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("workspace_select: invalid params: %w", err)
	}
	if input.ID == "" {
		return nil, fmt.Errorf("workspace_select: id is required")
	}

	ws, err := t.manager.Select(ctx, input.ID)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	if session := agent.SessionFromContext(ctx); session != nil {
		session.ActiveWorkspaceID = ws.ID
	}

	payload, err := json.Marshal(ws)
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// StatusTool returns the detected project type and git status for a
// workspace, or for the session's active workspace if id is omitted.
type StatusTool struct{ manager Manager }

// NewStatusTool returns the workspace_status tool.
func NewStatusTool(manager Manager) *StatusTool { return &StatusTool{manager: manager} }

func (t *StatusTool) Name() string { return "workspace_status" }
func (t *StatusTool) Description() string {
	return "Report detected project type and git status for a workspace"
}
func (t *StatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","description":"Workspace id; defaults to the session's active workspace"}}}`)
}

func (t *StatusTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, fmt.Errorf("workspace_status: invalid params: %w", err)
		}
	}
	if input.ID == "" {
		if session := agent.SessionFromContext(ctx); session != nil {
			input.ID = session.ActiveWorkspaceID
		}
	}

	ws, err := t.manager.GetStatus(ctx, input.ID)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	payload, err := json.Marshal(ws)
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// CreateTool scaffolds a new project from a named template.
type CreateTool struct{ manager Manager }

// NewCreateTool returns the workspace_create tool.
func NewCreateTool(manager Manager) *CreateTool { return &CreateTool{manager: manager} }

func (t *CreateTool) Name() string        { return "workspace_create" }
func (t *CreateTool) Description() string { return "Scaffold a new project directory from a template" }
func (t *CreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"name":{"type":"string","description":"Directory name, must match [A-Za-z0-9][A-Za-z0-9._-]*"},"template":{"type":"string","enum":["empty","node","python","rust","go","react","next"]},"init_git":{"type":"boolean"}},"required":["name","template"]}`)
}

func (t *CreateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Name     string `json:"name"`
		Template string `json:"template"`
		InitGit  bool   `json:"init_git"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("workspace_create: invalid params: %w", err)
	}
	if input.Name == "" || input.Template == "" {
		return nil, fmt.Errorf("workspace_create: name and template are required")
	}

	ws, err := t.manager.Create(ctx, input.Name, models.WorkspaceTemplate(input.Template), input.InitGit)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	payload, err := json.Marshal(ws)
	if err != nil {
		return nil, err
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// DeleteTool removes a workspace directory, refusing to delete the
// session's currently active workspace (spec 4.12: "refused if it is the
// active workspace").
type DeleteTool struct{ manager Manager }

// NewDeleteTool returns the workspace_delete tool.
func NewDeleteTool(manager Manager) *DeleteTool { return &DeleteTool{manager: manager} }

func (t *DeleteTool) Name() string        { return "workspace_delete" }
func (t *DeleteTool) Description() string { return "Delete a workspace directory" }
func (t *DeleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","description":"Workspace id to delete"}},"required":["id"]}`)
}

func (t *DeleteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("workspace_delete: invalid params: %w", err)
	}
	if input.ID == "" {
		return nil, fmt.Errorf("workspace_delete: id is required")
	}
	if session := agent.SessionFromContext(ctx); session != nil && session.ActiveWorkspaceID == input.ID {
		return &agent.ToolResult{Content: "cannot delete the active workspace; select another workspace first", IsError: true}, nil
	}

	if err := t.manager.Delete(ctx, input.ID); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: fmt.Sprintf("workspace %q deleted", input.ID)}, nil
}
