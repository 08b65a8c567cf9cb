// Package sandbox provides isolated execution environments for untrusted,
// model-generated code and shell commands. Every tool execution flows
// through a Sandbox — never directly on the host.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// NoTimeout disables deadline enforcement for a single execution.
// Used by lint mode, which is bounded only by the linter itself.
const NoTimeout = -1 * time.Second

// errExecutionDeadline is the cancellation cause attached to the per-request
// deadline so a timed-out execution can be told apart from a caller
// cancellation (signal, client disconnect).
var errExecutionDeadline = errors.New("execution deadline elapsed")

// Sandbox executes commands in an isolated environment. Implementations are
// selected once at configuration time (process, remote shell, or docker) and
// are safe for concurrent use; each Execute call is fully independent.
type Sandbox interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}

// ExecutionRequest defines what to run and under what constraints.
// It is owned exclusively by the call that created it.
type ExecutionRequest struct {
	// Command is the program and arguments to execute (e.g. ["python3"]).
	// The remote shell sandbox joins the elements into one command line.
	Command []string

	// Script, when non-empty, is staged into the execution's private temp
	// directory under ScriptName and the resulting path is appended to
	// Command. Process and docker sandboxes only.
	Script string

	// ScriptName is the fixed file name for the staged script.
	// Empty = "script".
	ScriptName string

	// WorkingDir overrides the working directory. Empty = the isolated
	// temp directory.
	WorkingDir string

	// Env adds extra environment variables on top of the sandbox's
	// allow-listed base set. The parent environment is never inherited.
	Env map[string]string

	// Timeout overrides the sandbox default. Zero = use default,
	// NoTimeout = no enforced deadline.
	Timeout time.Duration

	// Limits overrides resource limits. Zero values = sandbox defaults.
	Limits ResourceLimits

	// ScreenSession names a persistent screen session on the remote shell.
	// Remote shell sandbox only; empty = run the command directly.
	ScreenSession string
}

// ResourceLimits is the resource-limit profile applied to a sandboxed
// process before any untrusted code runs. Core dumps are always disabled.
type ResourceLimits struct {
	MaxMemoryMB   int // Address-space ceiling in MB (ulimit -v).
	MaxCPUSeconds int // CPU time ceiling in seconds (ulimit -t).
	MaxProcesses  int // Process/thread count ceiling (ulimit -u).
	MaxFileSizeMB int // File size ceiling in MB (ulimit -f).
}

// ExecutionResult captures the outcome of a sandboxed command.
//
// A timeout is a result state, not an error: TimedOut is set, Stderr carries
// a timeout message, and Stdout holds whatever partial output was drained.
// Errors returned by Execute are reserved for spawn/connect/configuration
// failures — things that prevented the command from running at all.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration

	// TimedOut reports that the time limit elapsed and the process was
	// forcibly killed.
	TimedOut bool

	// Degraded reports that the platform could not provide namespace
	// isolation and the execution ran with resource limits only.
	Degraded bool
}
