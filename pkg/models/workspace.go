package models

import "time"

// ProjectType is the detected kind of a workspace, inferred from marker files.
type ProjectType string

const (
	ProjectTypeScript ProjectType = "typescript"
	ProjectNode       ProjectType = "node"
	ProjectRust       ProjectType = "rust"
	ProjectGo         ProjectType = "go"
	ProjectPython     ProjectType = "python"
	ProjectUnknown    ProjectType = "unknown"
)

// GitStatus summarizes a workspace's working-tree state.
type GitStatus struct {
	Branch     string    `json:"branch"`
	Ahead      int       `json:"ahead"`
	Behind     int       `json:"behind"`
	Modified   []string  `json:"modified,omitempty"`
	Staged     []string  `json:"staged,omitempty"`
	Untracked  []string  `json:"untracked,omitempty"`
	LastCommit string    `json:"last_commit,omitempty"`
	RemoteURL  string    `json:"remote_url,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Workspace is a project directory discovered under the sandbox root.
type Workspace struct {
	ID          string      `json:"id"` // directory name
	Path        string      `json:"path"`
	ProjectType ProjectType `json:"project_type"`
	GitStatus   *GitStatus  `json:"git_status,omitempty"`
	IsActive    bool        `json:"is_active"`
	CachedAt    time.Time   `json:"cached_at"`
}

// WorkspaceTemplate names the scaffolding templates workspace_create supports.
type WorkspaceTemplate string

const (
	TemplateEmpty  WorkspaceTemplate = "empty"
	TemplateNode   WorkspaceTemplate = "node"
	TemplatePython WorkspaceTemplate = "python"
	TemplateRust   WorkspaceTemplate = "rust"
	TemplateGo     WorkspaceTemplate = "go"
	TemplateReact  WorkspaceTemplate = "react"
	TemplateNext   WorkspaceTemplate = "next"
)
