package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fetchctl/fetch/internal/agent"
	"github.com/fetchctl/fetch/internal/commands"
	"github.com/fetchctl/fetch/internal/config"
	"github.com/fetchctl/fetch/internal/harness"
	"github.com/fetchctl/fetch/internal/mode"
	"github.com/fetchctl/fetch/internal/reflex"
	"github.com/fetchctl/fetch/internal/router"
	"github.com/fetchctl/fetch/internal/sandbox"
	"github.com/fetchctl/fetch/internal/sessions"
	"github.com/fetchctl/fetch/internal/tasks"
	"github.com/fetchctl/fetch/internal/tools/interact"
	"github.com/fetchctl/fetch/internal/tools/tasktools"
	workspacetools "github.com/fetchctl/fetch/internal/tools/workspace"
	"github.com/fetchctl/fetch/internal/workspace"
	"github.com/fetchctl/fetch/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var (
		dbPath    string
		container string
		debug     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an interactive fetch session against stdin/stdout",
		Long: `serve wires the full message pipeline - Command Parser, Reflex
Registry, Mode Manager, and Agent Loop - behind a single-user stdin/stdout
transport. It has no chat-platform adapter: piping real channels in is out
of scope (spec section 1); this is the dev loop used to exercise the router
end to end.`,
		Example: `  # Run against fetch.yaml in the working directory
  fetch serve

  # Persist sessions/tasks to a SQLite file instead of memory
  fetch serve --db ./fetch.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPathFlag, dbPath, container, debug)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file for session/task persistence (default: in-memory, lost on exit)")
	cmd.Flags().StringVar(&container, "container", "fetch-sandbox", "Docker container name the sandbox backend execs into")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, configPath, dbPath, container string, debug bool) error {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sessionStore, taskStore, closeStores, err := openStores(dbPath, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	var backend sandbox.Backend = sandbox.NewLocalBackend(container)
	wsManager := workspace.NewManager(workspace.Config{
		Backend: backend,
		Root:    cfg.Workspace.Path,
		Logger:  logger.With("component", "workspace"),
	})

	harnessRegistry := harness.NewRegistry()
	harnessEngine := harness.NewEngine(backend, harnessRegistry, logger.With("component", "harness"))

	modeManager := mode.NewManager(nil)

	onTaskProgress := func(sessionID string, event models.TaskLifecycleEvent, task *models.Task) {
		logger.Info("task progress", "session_id", sessionID, "event", event, "task_id", task.ID, "status", task.Status)
	}
	taskManager := tasks.NewManager(taskStore, harnessEngine, onTaskProgress, logger.With("component", "tasks"))

	toolRegistry := agent.NewToolRegistry()
	toolRegistry.Register(workspacetools.NewListTool(wsManager))
	toolRegistry.Register(workspacetools.NewSelectTool(wsManager))
	toolRegistry.Register(workspacetools.NewStatusTool(wsManager))
	toolRegistry.Register(workspacetools.NewCreateTool(wsManager))
	toolRegistry.Register(workspacetools.NewDeleteTool(wsManager))
	toolRegistry.Register(tasktools.NewCreateTool(taskManager))
	toolRegistry.Register(tasktools.NewCancelTool(taskManager))
	toolRegistry.Register(tasktools.NewRespondTool(taskManager))
	toolRegistry.Register(interact.NewAskUserTool(sessionStore, modeManager))
	toolRegistry.Register(interact.NewReportProgressTool(func(sessionID, text string) {
		logger.Info("agent progress report", "session_id", sessionID, "text", text)
	}))

	runtime := agent.NewRuntimeWithOptions(provider, sessionStore, agent.DefaultRuntimeOptions())
	for _, t := range toolRegistry.AsLLMTools() {
		runtime.RegisterTool(t)
	}

	commandRegistry := commands.NewRegistry(logger.With("component", "commands"))
	commands.RegisterBuiltins(commandRegistry, commands.Deps{
		Sessions:  sessionStore,
		Schedules: nil,
		Skills:    nil,
		Workspace: workspaceLister{manager: wsManager},
		Tools:     commandToolLister{registry: toolRegistry},
		Identity:  nil,
	})
	parser := commands.NewParser(commandRegistry, "/")

	reflexRegistry := reflex.NewRegistry()
	reflex.RegisterBuiltins(reflexRegistry, reflex.Deps{
		Threads:  sessionStore,
		Skills:   nil,
		Tools:    reflexToolLister{registry: toolRegistry},
		Identity: nil,
	})

	r := router.New(router.Config{
		Sessions: sessionStore,
		Commands: commandRegistry,
		Parser:   parser,
		Reflexes: reflexRegistry,
		Mode:     modeManager,
		Runtime:  runtime,
		Logger:   logger,
	})

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("fetch serve started", "llm_provider", cfg.LLM.DefaultProvider, "db", dbPath)
	err = runREPL(runCtx, r, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = shutdownCtx

	logger.Info("fetch serve stopped")
	return err
}

// runREPL is the minimal stdin/stdout dev transport: a real chat-platform
// adapter is out of scope (spec section 1), so this feeds typed lines to
// the router as a single pseudo-user and prints whatever it replies.
func runREPL(ctx context.Context, r *router.Router, logger *slog.Logger) error {
	const userID = "cli"
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stdout, "fetch ready. Type a message, or /help for commands. Ctrl-D to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			if line == "" {
				continue
			}
			outcome, err := r.HandleMessage(ctx, userID, line, func(models.AgentEvent) {})
			if err != nil {
				logger.Error("handle message", "error", err)
				fmt.Fprintf(os.Stdout, "error: %s\n", err)
				continue
			}
			for _, resp := range outcome.Responses {
				fmt.Fprintln(os.Stdout, resp)
			}
		}
	}
}

// openStores builds the session/task stores: SQLite-backed when dbPath is
// set, otherwise in-memory (lost on exit). The returned close func is always
// safe to call, even for the in-memory case.
func openStores(dbPath string, logger *slog.Logger) (sessions.Store, tasks.Store, func(), error) {
	if dbPath == "" {
		return sessions.NewMemoryStore(), tasks.NewMemoryStore(), func() {}, nil
	}

	sessionStore, err := sessions.NewSQLiteStore(dbPath, logger.With("component", "sessions-db"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open session store: %w", err)
	}
	taskStore, err := tasks.NewSQLiteStore(dbPath, logger.With("component", "tasks-db"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open task store: %w", err)
	}
	closeFn := func() {
		if err := sessionStore.Close(); err != nil {
			logger.Warn("close session store", "error", err)
		}
		if err := taskStore.Close(); err != nil {
			logger.Warn("close task store", "error", err)
		}
	}
	return sessionStore, taskStore, closeFn, nil
}
