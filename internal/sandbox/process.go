package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent OOM from chatty commands.
	maxOutputBytes = 1 << 20 // 1 MB

	defaultTimeout     = 5 * time.Second
	defaultCPUSeconds  = 60
	defaultMemoryMB    = 512
	defaultMaxProcs    = 64
	defaultFileSizeMB  = 100
	limiterFailMessage = "sanduku: resource limit setup failed"

	// limiterFailExit is the sentinel the ulimit wrapper exits with when a
	// limit cannot be applied. Paired with limiterFailMessage on stderr to
	// distinguish it from a user script that happens to exit 125.
	limiterFailExit = 125
)

// IsolationMode selects how strongly the process sandbox isolates children.
type IsolationMode string

const (
	// IsolationAuto probes for full namespace isolation and degrades to
	// resource limits only when the platform cannot provide it.
	IsolationAuto IsolationMode = "auto"

	// IsolationFull requires namespace isolation and privilege drop.
	// Sandbox construction fails when the platform cannot provide it.
	IsolationFull IsolationMode = "full"

	// IsolationLimits skips namespaces and relies on resource limits and
	// process-group containment only. Always reported as degraded.
	IsolationLimits IsolationMode = "limits"
)

// defaultAllowedEnv is the set of parent environment variables considered
// safe to forward into sandboxed children. Everything else is stripped.
var defaultAllowedEnv = []string{
	"LANG", "LC_ALL", "TZ",
	"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY",
	"http_proxy", "https_proxy", "no_proxy",
	"USER_AGENT",
}

// ProcessConfig configures the process-based sandbox.
type ProcessConfig struct {
	DefaultTimeout time.Duration
	DefaultLimits  ResourceLimits
	Isolation      IsolationMode // Empty = auto.
	Shell          string        // Shell used for the ulimit wrapper. Empty = /bin/sh.
	AllowedEnv     []string      // Extra allow-listed env names, merged with the defaults.
}

// ProcessSandbox executes commands as isolated OS processes.
//
// Security guarantees:
//   - Each execution gets its own exclusively-created temp directory
//     (removed on every exit path)
//   - Untrusted code runs in fresh net/ipc/pid/mount/uts namespaces as an
//     unprivileged user with no capabilities, when the platform allows it;
//     otherwise the execution is flagged as degraded — never silently weaker
//   - Resource limits (memory, CPU time, processes, file size, core dumps)
//     applied before exec, fail-closed: a limit that cannot be set aborts
//     the child before any untrusted code runs
//   - No environment inheritance — only an allow-listed subset is rebuilt
//   - Child runs in its own process group; the whole group is killed on
//     timeout or cancellation
//   - stdout/stderr capped to prevent OOM on the host
type ProcessSandbox struct {
	defaultTimeout time.Duration
	defaultLimits  ResourceLimits
	shell          string
	limiter        string // ulimit flags the shell supports, from probeLimiter.
	allowedEnv     []string
	isolation      *isolation
	logger         *slog.Logger
}

// NewProcessSandbox creates a process-based sandbox. With IsolationFull it
// fails when the platform cannot provide namespace isolation.
func NewProcessSandbox(cfg ProcessConfig, logger *slog.Logger) (*ProcessSandbox, error) {
	timeout := cfg.DefaultTimeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	limits := cfg.DefaultLimits
	if limits.MaxCPUSeconds == 0 {
		limits.MaxCPUSeconds = defaultCPUSeconds
	}
	if limits.MaxMemoryMB == 0 {
		limits.MaxMemoryMB = defaultMemoryMB
	}
	if limits.MaxProcesses == 0 {
		limits.MaxProcesses = defaultMaxProcs
	}
	if limits.MaxFileSizeMB == 0 {
		limits.MaxFileSizeMB = defaultFileSizeMB
	}

	shell := cfg.Shell
	if shell == "" {
		shell = "/bin/sh"
	}

	// The wrapper is fail-closed, so a flag the shell does not understand
	// would kill every execution. Probe once and emit only supported flags.
	limiter, missing := probeLimiter(shell)
	if cfg.Shell == "" && len(missing) > 0 {
		// dash (Debian's /bin/sh) lacks -u; prefer bash when it covers more.
		if bash, err := exec.LookPath("bash"); err == nil {
			if bl, bm := probeLimiter(bash); len(bm) < len(missing) {
				shell, limiter, missing = bash, bl, bm
			}
		}
	}
	if limiter == "" {
		return nil, fmt.Errorf("shell %s cannot apply resource limits; configure a POSIX shell", shell)
	}
	if len(missing) > 0 {
		logger.Warn("shell does not support all resource limits",
			slog.String("shell", shell),
			slog.Any("skipped", missing),
		)
	}

	mode := cfg.Isolation
	if mode == "" {
		mode = IsolationAuto
	}

	var iso *isolation
	switch mode {
	case IsolationLimits:
		iso = &isolation{}
	case IsolationAuto, IsolationFull:
		iso = probeIsolation()
		if !iso.full && mode == IsolationFull {
			return nil, fmt.Errorf("full isolation requested but unavailable: %s", iso.reason)
		}
	default:
		return nil, fmt.Errorf("unknown isolation mode %q", mode)
	}

	if iso.full {
		logger.Info("process sandbox using full namespace isolation")
	} else {
		logger.Warn("process sandbox running in degraded mode (resource limits only)",
			slog.String("reason", iso.reason),
		)
	}

	return &ProcessSandbox{
		defaultTimeout: timeout,
		defaultLimits:  limits,
		shell:          shell,
		limiter:        limiter,
		allowedEnv:     append(append([]string{}, defaultAllowedEnv...), cfg.AllowedEnv...),
		isolation:      iso,
		logger:         logger,
	}, nil
}

// Degraded reports whether executions run without namespace isolation.
func (s *ProcessSandbox) Degraded() bool { return !s.isolation.full }

// Execute runs a command in an isolated process environment.
func (s *ProcessSandbox) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	// 1. Apply timeout. NoTimeout leaves only the caller's context bounds.
	// The cause distinguishes our deadline from a caller cancellation.
	timeout := req.Timeout
	if timeout == 0 {
		timeout = s.defaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, errExecutionDeadline)
		defer cancel()
	}

	// 2. Stage the script (and create the private working directory).
	staged, err := Stage(req.Script, req.ScriptName, s.logger)
	if err != nil {
		return nil, err
	}
	defer staged.Cleanup()

	command := req.Command
	if staged.Path != "" {
		command = append(append([]string{}, command...), staged.Path)
	}

	// 3. Resolve resource limits and build the launch chain:
	//    [unshare ... setpriv ...] sh -c '<ulimit wrapper>' _ cmd args...
	limits := s.resolveLimits(req.Limits)

	args := append([]string{}, s.isolation.prefix...)
	args = append(args, s.shell, "-c", limiterScript(limits, s.limiter), "_")
	args = append(args, command...)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	// 4. Working directory: caller's override or the staged directory.
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	} else {
		cmd.Dir = staged.Dir
	}

	// 5. Process group containment; negative PID kills the whole group so
	//    children spawned by the command die with it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	// 6. Allow-listed environment — NO inheritance from the host process.
	cmd.Env = s.buildEnv(staged.Dir, req.Env)

	// 7. Capture stdout/stderr with size cap.
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	s.logger.Info("sandbox executing",
		slog.Any("command", req.Command),
		slog.String("dir", cmd.Dir),
		slog.Bool("degraded", !s.isolation.full),
		slog.Int("memory_limit_mb", limits.MaxMemoryMB),
		slog.Int("cpu_limit_sec", limits.MaxCPUSeconds),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &ExecutionResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
		Degraded: !s.isolation.full,
	}

	if runErr != nil {
		// Timeout: a first-class result state. Partial output stays.
		if errors.Is(context.Cause(ctx), errExecutionDeadline) {
			s.logger.Warn("sandbox execution timed out",
				slog.Duration("timeout", timeout),
				slog.Duration("duration", duration),
			)
			result.TimedOut = true
			result.ExitCode = 1
			result.Stderr = fmt.Sprintf("Execution timed out after %s", timeout)
			return result, nil
		}
		// Caller cancellation (signal, client disconnect) is not a timeout.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution canceled: %w", context.Cause(ctx))
		}

		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// Spawn failure — missing interpreter, filesystem error.
			return nil, fmt.Errorf("execution failed: %w", runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	// Fail-closed limiter contract: the wrapper aborted before exec.
	if result.ExitCode == limiterFailExit && strings.Contains(result.Stderr, limiterFailMessage) {
		return nil, fmt.Errorf("applying resource limits failed: %s", strings.TrimSpace(result.Stderr))
	}

	s.logger.Info("sandbox execution completed",
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", len(result.Stdout)),
		slog.Int("stderr_bytes", len(result.Stderr)),
	)

	return result, nil
}

// resolveLimits merges request-level overrides with sandbox defaults.
func (s *ProcessSandbox) resolveLimits(req ResourceLimits) ResourceLimits {
	limits := s.defaultLimits
	if req.MaxCPUSeconds > 0 {
		limits.MaxCPUSeconds = req.MaxCPUSeconds
	}
	if req.MaxMemoryMB > 0 {
		limits.MaxMemoryMB = req.MaxMemoryMB
	}
	if req.MaxProcesses > 0 {
		limits.MaxProcesses = req.MaxProcesses
	}
	if req.MaxFileSizeMB > 0 {
		limits.MaxFileSizeMB = req.MaxFileSizeMB
	}
	return limits
}

// buildEnv constructs the child environment: a minimal base plus the
// allow-listed subset of the parent environment. Credentials, tokens, and
// anything else not on the list never reach the sandboxed process.
func (s *ProcessSandbox) buildEnv(tmpDir string, extra map[string]string) []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + tmpDir,
		"TMPDIR=" + tmpDir,
		"LANG=en_US.UTF-8",
		"TERM=dumb",
	}
	for _, name := range s.allowedEnv {
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

// limitedWriter wraps a writer and stops writing after a byte limit.
// Excess data is silently discarded (not an error — just capped).
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil // Silently discard.
	}
	if len(p) > lw.remaining {
		n, err := lw.w.Write(p[:lw.remaining])
		lw.remaining -= n
		if err != nil {
			return n, err
		}
		return len(p), nil
	}
	n, err := lw.w.Write(p)
	lw.remaining -= n
	return n, err
}
