// Package sandbox implements the two sandbox primitives of spec section 6.4
// against a pluggable Backend: a remote Daytona sandbox, or a local
// Docker-compatible container for self-hosted/dev deployments.
package sandbox

import (
	"context"
	"io"
)

// ExecOptions configures a one-shot command (execInSandbox).
type ExecOptions struct {
	Cwd       string
	Env       map[string]string
	TimeoutMs int
	User      string
}

// ExecResult is the result of a one-shot sandbox command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// SpawnOptions configures a long-lived streaming child (spawnInSandbox).
type SpawnOptions struct {
	Cwd string
	Env map[string]string
}

// SpawnHandle is a live streaming child process inside the sandbox.
type SpawnHandle struct {
	PID    int
	Stdout io.Reader
	Stderr io.Reader
	Stdin  io.WriteCloser

	// Wait blocks until the child exits and returns its exit code.
	Wait func() (exitCode int, err error)
	// Kill sends a terminate/kill signal to the child.
	Kill func() error
}

// Backend is the pluggable sandbox implementation (spec section 6.4.1).
type Backend interface {
	// Ready checks the sandbox container is up before a spawn.
	Ready(ctx context.Context) error
	// ExecInSandbox runs a one-shot command and waits for completion.
	ExecInSandbox(ctx context.Context, command string, args []string, opts ExecOptions) (ExecResult, error)
	// SpawnInSandbox starts a streaming child process.
	SpawnInSandbox(ctx context.Context, command string, args []string, opts SpawnOptions) (*SpawnHandle, error)
}
