package harness

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fetchctl/fetch/internal/sandbox"
	"github.com/fetchctl/fetch/pkg/models"
)

// KillGrace is the wait between terminate and kill signals (spec section 4.7).
const KillGrace = 2 * time.Second

// Result is what Execute returns once the harness has exited.
type Result struct {
	HarnessID     string
	ExitCode      int
	Summary       string
	FilesModified models.FilesModified
	Err           error
	TimedOut      bool
}

// Run is one live, spawned harness execution coordinated by the engine.
type Run struct {
	HarnessID string
	TaskID    string
	Adapter   Adapter

	cancel context.CancelFunc
	handle *sandbox.SpawnHandle
	parser *OutputParser

	mu     sync.Mutex
	paused bool

	// Events surfaces harness-level lifecycle events to the Task Manager
	// (spec 4.7's "events emitted" list); closed once the run finishes.
	Events chan models.HarnessEvent
}

// Cancel requests termination: terminate, then kill after KillGrace.
func (r *Run) Cancel() {
	if r.cancel != nil {
		r.cancel()
	}
	go func() {
		time.Sleep(KillGrace)
		if r.handle != nil && r.handle.Kill != nil {
			_ = r.handle.Kill()
		}
	}()
}

// Respond writes a user's reply to the paused run's stdin and resumes
// event dispatch (spec section 4.7 "question handling").
func (r *Run) Respond(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == nil || r.handle.Stdin == nil {
		return fmt.Errorf("harness: no stdin for run %s", r.HarnessID)
	}
	if _, err := r.handle.Stdin.Write(r.Adapter.FormatResponse(text)); err != nil {
		return fmt.Errorf("harness: write stdin: %w", err)
	}
	r.paused = false
	return nil
}

// Engine spawns and supervises harness child processes (spec section 4.7).
type Engine struct {
	backend  sandbox.Backend
	registry *Registry
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[string]*Run
}

// NewEngine builds an engine bound to a sandbox backend.
func NewEngine(backend sandbox.Backend, registry *Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{backend: backend, registry: registry, logger: logger, runs: map[string]*Run{}}
}

// Spawn validates the sandbox is ready, starts the child process, and
// returns a live Run whose Events channel streams parsed harness events
// until the process exits or is cancelled.
func (e *Engine) Spawn(ctx context.Context, taskID string, agent models.Agent, goal, cwd string, timeoutMs int) (*Run, error) {
	adapter, err := e.registry.Get(agent)
	if err != nil {
		return nil, err
	}
	if err := e.backend.Ready(ctx); err != nil {
		return nil, err
	}

	spawnCfg := adapter.BuildConfig(goal, cwd, timeoutMs)
	runCtx, cancel := context.WithCancel(ctx)

	handle, err := e.backend.SpawnInSandbox(runCtx, spawnCfg.Command, spawnCfg.Args, sandbox.SpawnOptions{Cwd: spawnCfg.Cwd, Env: spawnCfg.Env})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("harness_spawn_failed: %w", err)
	}

	harnessID := models.NewHarnessID()
	parser := NewOutputParser(adapter)
	run := &Run{
		HarnessID: harnessID,
		TaskID:    taskID,
		Adapter:   adapter,
		cancel:    cancel,
		handle:    handle,
		parser:    parser,
		Events:    make(chan models.HarnessEvent, 64),
	}

	e.mu.Lock()
	e.runs[harnessID] = run
	e.mu.Unlock()

	go parser.Run(handle.Stdout)

	idleTimer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	lastOutput := make(chan struct{}, 1)

	go func() {
		defer close(run.Events)
		defer idleTimer.Stop()
		for {
			select {
			case ev, ok := <-parser.Events:
				if !ok {
					return
				}
				select {
				case lastOutput <- struct{}{}:
				default:
				}
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(time.Duration(timeoutMs) * time.Millisecond)

				if ev.Type == models.HarnessQuestion {
					run.mu.Lock()
					run.paused = true
					run.mu.Unlock()
				}
				run.Events <- ev

			case <-idleTimer.C:
				run.Events <- models.HarnessEvent{Type: models.HarnessErrorKind, ErrorText: "harness_timeout", At: time.Now()}
				run.Cancel()
				return

			case <-runCtx.Done():
				return
			}
		}
	}()

	e.logger.Info("harness spawned", "harness_id", harnessID, "task_id", taskID, "agent", agent, "pid", handle.PID)
	return run, nil
}

// Wait blocks until the run's child process exits, then extracts the
// summary and file operations from the buffered output (spec section 4.7).
func (e *Engine) Wait(run *Run) Result {
	exitCode, err := run.handle.Wait()
	full := run.parser.FullOutput()

	e.mu.Lock()
	delete(e.runs, run.HarnessID)
	e.mu.Unlock()

	return Result{
		HarnessID:     run.HarnessID,
		ExitCode:      exitCode,
		Summary:       run.Adapter.ExtractSummary(full),
		FilesModified: run.Adapter.ExtractFileOperations(full),
		Err:           err,
	}
}

// Get returns a live run by harness ID, if still active.
func (e *Engine) Get(harnessID string) (*Run, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[harnessID]
	return r, ok
}

// Shutdown cancels every live run; used by the graceful shutdown coordinator.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	runs := make([]*Run, 0, len(e.runs))
	for _, r := range e.runs {
		runs = append(runs, r)
	}
	e.mu.Unlock()
	for _, r := range runs {
		r.Cancel()
	}
}
