// Package workspace also implements the Workspace Manager (spec section
// 4.12): project discovery under the sandbox root, git status parsing, and
// scaffolding. This is distinct from the identity/persona loader in
// loader.go and bootstrap.go, which load AGENTS.md/SOUL.md/USER.md — this
// file manages the project directories an agent works in.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fetchctl/fetch/internal/sandbox"
	"github.com/fetchctl/fetch/pkg/models"
)

// nameRe matches valid workspace names (spec section 4.12's "Name
// validation forbids anything outside [A-Za-z0-9][A-Za-z0-9._-]*").
var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ErrInvalidName is returned when a workspace name fails validation.
var ErrInvalidName = fmt.Errorf("workspace: name must match %s", nameRe.String())

// marker associates a project-type with the file whose presence detects
// it. Checked in order; the first hit wins.
type marker struct {
	file string
	kind models.ProjectType
}

var markers = []marker{
	{"tsconfig.json", models.ProjectTypeScript},
	{"package.json", models.ProjectNode},
	{"Cargo.toml", models.ProjectRust},
	{"go.mod", models.ProjectGo},
	{"requirements.txt", models.ProjectPython},
	{"pyproject.toml", models.ProjectPython},
}

// EventType names a workspace-manager mutation (spec 4.12's "Events:
// workspace:selected|created|deleted|updated|scaffolding").
type EventType string

const (
	EventSelected   EventType = "workspace:selected"
	EventCreated    EventType = "workspace:created"
	EventDeleted    EventType = "workspace:deleted"
	EventUpdated    EventType = "workspace:updated"
	EventScaffolded EventType = "workspace:scaffolding"
)

// EventFunc receives workspace-manager mutation notifications so stale
// readers (e.g. a cached session's active workspace view) can invalidate.
type EventFunc func(event EventType, ws *models.Workspace)

// Manager discovers and maintains project directories under one sandbox
// root, caching per-entry metadata with a TTL (spec 4.12 / section 5's
// "workspace cache is guarded by a per-entry lock").
type Manager struct {
	backend sandbox.Backend
	root    string

	cacheTTL   time.Duration
	gitTimeout time.Duration

	mu       sync.Mutex
	cache    map[string]*models.Workspace
	activeID string
	onEvent  EventFunc
	logger   *slog.Logger
}

// Config configures a Manager.
type Config struct {
	Backend    sandbox.Backend
	Root       string
	CacheTTL   time.Duration
	GitTimeout time.Duration
	OnEvent    EventFunc
	Logger     *slog.Logger
}

// NewManager constructs a workspace manager bound to one sandbox backend
// and root directory.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "workspace-manager")
	}
	onEvent := cfg.OnEvent
	if onEvent == nil {
		onEvent = func(EventType, *models.Workspace) {}
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	gitTimeout := cfg.GitTimeout
	if gitTimeout <= 0 {
		gitTimeout = 5 * time.Second
	}
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return &Manager{
		backend:    cfg.Backend,
		root:       root,
		cacheTTL:   cacheTTL,
		gitTimeout: gitTimeout,
		cache:      make(map[string]*models.Workspace),
		onEvent:    onEvent,
		logger:     logger,
	}
}

// List discovers every project directory under root, using the cache
// unless forceRefresh is set or an entry's cache has expired.
func (m *Manager) List(ctx context.Context, forceRefresh bool) ([]*models.Workspace, error) {
	names, err := m.listDirs(ctx)
	if err != nil {
		return nil, fmt.Errorf("workspace: list dirs: %w", err)
	}

	out := make([]*models.Workspace, 0, len(names))
	for _, name := range names {
		ws, err := m.describe(ctx, name, forceRefresh)
		if err != nil {
			m.logger.Warn("workspace: describe failed, skipping", "id", name, "error", err)
			continue
		}
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Select marks a workspace active, refreshing its metadata first.
func (m *Manager) Select(ctx context.Context, id string) (*models.Workspace, error) {
	ws, err := m.describe(ctx, id, true)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.activeID = id
	for otherID, cached := range m.cache {
		cached.IsActive = otherID == id
	}
	m.mu.Unlock()

	ws.IsActive = true
	m.onEvent(EventSelected, ws)
	return ws, nil
}

// GetStatus returns cached (or freshly discovered) metadata for one
// workspace, or for the active workspace if id is empty.
func (m *Manager) GetStatus(ctx context.Context, id string) (*models.Workspace, error) {
	if id == "" {
		m.mu.Lock()
		id = m.activeID
		m.mu.Unlock()
		if id == "" {
			return nil, fmt.Errorf("workspace: no active workspace selected")
		}
	}
	return m.describe(ctx, id, false)
}

// Create scaffolds a new project under root using the given template,
// then returns its discovered metadata (spec 4.12's create operation).
func (m *Manager) Create(ctx context.Context, name string, template models.WorkspaceTemplate, initGit bool) (*models.Workspace, error) {
	if !nameRe.MatchString(name) {
		return nil, ErrInvalidName
	}
	dir := path.Join(m.root, name)

	if _, err := m.backend.ExecInSandbox(ctx, "mkdir", []string{"-p", dir}, sandbox.ExecOptions{}); err != nil {
		return nil, fmt.Errorf("workspace: create directory: %w", err)
	}

	cmd, args, timeoutMs := scaffoldCommand(template)
	if cmd != "" {
		res, err := m.backend.ExecInSandbox(ctx, cmd, args, sandbox.ExecOptions{Cwd: dir, TimeoutMs: timeoutMs})
		if err != nil {
			return nil, fmt.Errorf("workspace: scaffold %s: %w", template, err)
		}
		if res.ExitCode != 0 {
			return nil, fmt.Errorf("workspace: scaffold %s exited %d: %s", template, res.ExitCode, res.Stderr)
		}
	}

	if initGit {
		if res, err := m.backend.ExecInSandbox(ctx, "git", []string{"init"}, sandbox.ExecOptions{Cwd: dir, TimeoutMs: int(m.gitTimeout.Milliseconds())}); err != nil {
			return nil, fmt.Errorf("workspace: git init: %w", err)
		} else if res.ExitCode != 0 {
			return nil, fmt.Errorf("workspace: git init exited %d: %s", res.ExitCode, res.Stderr)
		}
	}

	ws, err := m.describe(ctx, name, true)
	if err != nil {
		return nil, err
	}
	m.onEvent(EventScaffolded, ws)
	m.onEvent(EventCreated, ws)
	return ws, nil
}

// Delete removes a workspace directory and its cache entry.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if !nameRe.MatchString(id) {
		return ErrInvalidName
	}
	dir := path.Join(m.root, id)
	res, err := m.backend.ExecInSandbox(ctx, "rm", []string{"-rf", dir}, sandbox.ExecOptions{})
	if err != nil {
		return fmt.Errorf("workspace: delete: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("workspace: delete exited %d: %s", res.ExitCode, res.Stderr)
	}

	m.mu.Lock()
	ws := m.cache[id]
	delete(m.cache, id)
	if m.activeID == id {
		m.activeID = ""
	}
	m.mu.Unlock()

	if ws == nil {
		ws = &models.Workspace{ID: id, Path: dir}
	}
	m.onEvent(EventDeleted, ws)
	return nil
}

// listDirs enumerates immediate child directories of root via the sandbox.
func (m *Manager) listDirs(ctx context.Context) ([]string, error) {
	res, err := m.backend.ExecInSandbox(ctx, "sh", []string{"-c", fmt.Sprintf("ls -1p %q 2>/dev/null | grep /$ | sed 's#/$##'", m.root)}, sandbox.ExecOptions{})
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// describe returns a workspace's metadata, serving the cache when it is
// still fresh unless refresh is requested.
func (m *Manager) describe(ctx context.Context, id string, refresh bool) (*models.Workspace, error) {
	m.mu.Lock()
	cached, ok := m.cache[id]
	stale := !ok || refresh || time.Since(cached.CachedAt) > m.cacheTTL
	m.mu.Unlock()

	if !stale {
		cp := *cached
		return &cp, nil
	}

	dir := path.Join(m.root, id)
	projectType, err := m.detectProjectType(ctx, dir)
	if err != nil {
		return nil, err
	}
	gitStatus, err := m.gitStatus(ctx, dir)
	if err != nil {
		m.logger.Debug("workspace: git status unavailable", "id", id, "error", err)
	}

	m.mu.Lock()
	isActive := m.activeID == id
	ws := &models.Workspace{
		ID:          id,
		Path:        dir,
		ProjectType: projectType,
		GitStatus:   gitStatus,
		IsActive:    isActive,
		CachedAt:    time.Now(),
	}
	m.cache[id] = ws
	m.mu.Unlock()

	cp := *ws
	m.onEvent(EventUpdated, &cp)
	return &cp, nil
}

// detectProjectType runs marker-file checks in priority order, each as a
// test against the sandbox filesystem (spec 4.12: "glob-style markers use
// a shell expansion via the sandbox").
func (m *Manager) detectProjectType(ctx context.Context, dir string) (models.ProjectType, error) {
	for _, mk := range markers {
		script := fmt.Sprintf("test -f %q && echo 1 || echo 0", path.Join(dir, mk.file))
		res, err := m.backend.ExecInSandbox(ctx, "sh", []string{"-c", script}, sandbox.ExecOptions{})
		if err != nil {
			return models.ProjectUnknown, err
		}
		if strings.TrimSpace(res.Stdout) == "1" {
			return mk.kind, nil
		}
	}
	return models.ProjectUnknown, nil
}

// gitStatus runs porcelain + branch/ahead-behind queries and parses them
// into a models.GitStatus (spec 4.12: "Git status parses porcelain output
// and upstream ahead/behind counts").
func (m *Manager) gitStatus(ctx context.Context, dir string) (*models.GitStatus, error) {
	opts := sandbox.ExecOptions{Cwd: dir, TimeoutMs: int(m.gitTimeout.Milliseconds())}

	branchRes, err := m.backend.ExecInSandbox(ctx, "git", []string{"rev-parse", "--abbrev-ref", "HEAD"}, opts)
	if err != nil || branchRes.ExitCode != 0 {
		return nil, fmt.Errorf("not a git repository")
	}
	status := &models.GitStatus{
		Branch:    strings.TrimSpace(branchRes.Stdout),
		CheckedAt: time.Now(),
	}

	if porcelainRes, err := m.backend.ExecInSandbox(ctx, "git", []string{"status", "--porcelain=v1"}, opts); err == nil {
		parseGitPorcelain(porcelainRes.Stdout, status)
	}

	if aheadBehindRes, err := m.backend.ExecInSandbox(ctx, "git", []string{"rev-list", "--left-right", "--count", "@{upstream}...HEAD"}, opts); err == nil && aheadBehindRes.ExitCode == 0 {
		parseAheadBehind(aheadBehindRes.Stdout, status)
	}

	if commitRes, err := m.backend.ExecInSandbox(ctx, "git", []string{"log", "-1", "--format=%H"}, opts); err == nil && commitRes.ExitCode == 0 {
		status.LastCommit = strings.TrimSpace(commitRes.Stdout)
	}

	if remoteRes, err := m.backend.ExecInSandbox(ctx, "git", []string{"remote", "get-url", "origin"}, opts); err == nil && remoteRes.ExitCode == 0 {
		status.RemoteURL = strings.TrimSpace(remoteRes.Stdout)
	}

	return status, nil
}

// parseGitPorcelain splits `git status --porcelain=v1` lines into
// staged/modified/untracked buckets by their two-character status code.
func parseGitPorcelain(output string, status *models.GitStatus) {
	for _, line := range strings.Split(output, "\n") {
		if len(line) < 4 {
			continue
		}
		indexState := line[0]
		worktreeState := line[1]
		file := strings.TrimSpace(line[3:])

		switch {
		case indexState == '?' && worktreeState == '?':
			status.Untracked = append(status.Untracked, file)
		default:
			if indexState != ' ' && indexState != '?' {
				status.Staged = append(status.Staged, file)
			}
			if worktreeState != ' ' && worktreeState != '?' {
				status.Modified = append(status.Modified, file)
			}
		}
	}
}

// parseAheadBehind reads the two tab/space-separated counts from `git
// rev-list --left-right --count @{upstream}...HEAD` (behind, then ahead).
func parseAheadBehind(output string, status *models.GitStatus) {
	fields := strings.Fields(strings.TrimSpace(output))
	if len(fields) != 2 {
		return
	}
	if behind, err := strconv.Atoi(fields[0]); err == nil {
		status.Behind = behind
	}
	if ahead, err := strconv.Atoi(fields[1]); err == nil {
		status.Ahead = ahead
	}
}

// scaffoldCommand maps a template to the CLI invocation that creates it,
// and the per-template timeout (spec 4.12: "Creation shells out to the
// appropriate CLI ... with per-template timeouts (Next.js up to 5 min)").
func scaffoldCommand(template models.WorkspaceTemplate) (cmd string, args []string, timeoutMs int) {
	switch template {
	case models.TemplateNode:
		return "npm", []string{"init", "-y"}, 60_000
	case models.TemplatePython:
		return "python3", []string{"-m", "venv", ".venv"}, 60_000
	case models.TemplateRust:
		return "cargo", []string{"init", "--name", "project"}, 60_000
	case models.TemplateGo:
		return "go", []string{"mod", "init", "project"}, 30_000
	case models.TemplateReact:
		return "npm", []string{"create", "vite@latest", ".", "--", "--template", "react", "--yes"}, 180_000
	case models.TemplateNext:
		return "npx", []string{"--yes", "create-next-app@latest", ".", "--yes"}, 300_000
	default:
		return "", nil, 0
	}
}
