package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	execsafety "github.com/fetchctl/fetch/internal/exec"
)

// LocalBackend shells out to a named Docker-compatible container, grounded
// on the exec.CommandContext pattern of internal/tools/exec/manager.go,
// generalized with a "docker exec" argv prefix (spec section 6.4.1).
type LocalBackend struct {
	Container string
	DockerBin string // defaults to "docker"
}

// NewLocalBackend constructs a LocalBackend bound to a fixed container name.
func NewLocalBackend(container string) *LocalBackend {
	return &LocalBackend{Container: container, DockerBin: "docker"}
}

func (b *LocalBackend) dockerBin() string {
	if b.DockerBin != "" {
		return b.DockerBin
	}
	return "docker"
}

// Ready checks the named container is running via "docker inspect".
func (b *LocalBackend) Ready(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, b.dockerBin(), "inspect", "-f", "{{.State.Running}}", b.Container)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("sandbox_unavailable: %w", err)
	}
	if strings.TrimSpace(string(out)) != "true" {
		return fmt.Errorf("sandbox_unavailable: container %q not running", b.Container)
	}
	return nil
}

func (b *LocalBackend) execArgs(cwd string, env map[string]string, user string, command string, args []string) []string {
	argv := []string{"exec"}
	if cwd != "" {
		argv = append(argv, "-w", cwd)
	}
	if user != "" {
		argv = append(argv, "-u", user)
	}
	for k, v := range env {
		argv = append(argv, "-e", k+"="+v)
	}
	argv = append(argv, b.Container, command)
	return append(argv, args...)
}

// validateCommand rejects commands/arguments a "docker exec" shell could
// reinterpret as metacharacters or option injection, since ExecInSandbox
// and SpawnInSandbox pass the agent's tool-call input straight through to
// a subprocess argv with no shell in between to escape for them.
func validateCommand(command string, args []string) error {
	if !execsafety.IsSafeExecutableValue(command) {
		return fmt.Errorf("unsafe command %q", command)
	}
	for _, arg := range args {
		if !execsafety.IsSafeArgument(arg) {
			return fmt.Errorf("unsafe argument %q", arg)
		}
	}
	return nil
}

func (b *LocalBackend) ExecInSandbox(ctx context.Context, command string, args []string, opts ExecOptions) (ExecResult, error) {
	if err := validateCommand(command, args); err != nil {
		return ExecResult{}, err
	}
	runCtx := ctx
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	argv := b.execArgs(opts.Cwd, opts.Env, opts.User, command, args)
	cmd := exec.CommandContext(runCtx, b.dockerBin(), argv...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		return result, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func (b *LocalBackend) spawnArgs(cwd string, env map[string]string, command string, args []string) []string {
	argv := []string{"exec", "-i"}
	if cwd != "" {
		argv = append(argv, "-w", cwd)
	}
	for k, v := range env {
		argv = append(argv, "-e", k+"="+v)
	}
	argv = append(argv, b.Container, command)
	return append(argv, args...)
}

func (b *LocalBackend) SpawnInSandbox(ctx context.Context, command string, args []string, opts SpawnOptions) (*SpawnHandle, error) {
	if err := validateCommand(command, args); err != nil {
		return nil, err
	}
	argv := b.spawnArgs(opts.Cwd, opts.Env, command, args)
	cmd := exec.CommandContext(ctx, b.dockerBin(), argv...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	handle := &SpawnHandle{
		Stdout: stdout,
		Stderr: stderr,
		Stdin:  stdin,
		Wait: func() (int, error) {
			err := cmd.Wait()
			if exitErr, ok := err.(*exec.ExitError); ok {
				return exitErr.ExitCode(), nil
			}
			if err != nil {
				return -1, err
			}
			return 0, nil
		},
		Kill: func() error {
			if cmd.Process == nil {
				return nil
			}
			return cmd.Process.Kill()
		},
	}
	if cmd.Process != nil {
		handle.PID = cmd.Process.Pid
	}
	return handle, nil
}
