package sandbox

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

const (
	defaultDockerPIDsLimit = 64
	defaultDockerCPUCores  = 1.0
	defaultDockerImage     = "jkaninda/sanduku-runtime:latest"
	dockerScriptMount      = "/sandbox"
)

// DockerConfig configures the Docker-based sandbox.
type DockerConfig struct {
	Image          string        // Container image to run.
	DefaultTimeout time.Duration // Wall-clock timeout per execution.
	MemoryMB       int           // --memory hard limit.
	CPUCores       float64       // --cpus rate limit.
	PIDsLimit      int           // --pids-limit (prevents fork bombs).
	NetworkAllowed bool          // false = --network=none.
}

// DockerSandbox executes commands inside ephemeral hardened containers.
// An alternative to ProcessSandbox for hosts where the gateway itself must
// not orchestrate namespaces directly.
//
// Security guarantees:
//   - One container per execution, removed afterwards even on crash
//   - All capabilities dropped, no privilege escalation, non-root user
//   - Read-only root filesystem with tmpfs for writable paths
//   - Memory hard limit with swap disabled, CPU rate limit, PIDs limit
//   - Network disabled unless explicitly allowed
//   - Staged scripts mounted read-only
//   - stdout/stderr capped to prevent OOM on the host
type DockerSandbox struct {
	config DockerConfig
	logger *slog.Logger
}

// NewDockerSandbox creates a Docker-based sandbox.
func NewDockerSandbox(cfg DockerConfig, logger *slog.Logger) *DockerSandbox {
	if cfg.Image == "" {
		cfg.Image = defaultDockerImage
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MemoryMB == 0 {
		cfg.MemoryMB = defaultMemoryMB
	}
	if cfg.CPUCores <= 0 {
		cfg.CPUCores = defaultDockerCPUCores
	}
	if cfg.PIDsLimit <= 0 {
		cfg.PIDsLimit = defaultDockerPIDsLimit
	}
	return &DockerSandbox{config: cfg, logger: logger}
}

// Execute runs a command inside an ephemeral hardened container.
func (s *DockerSandbox) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = s.config.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, errExecutionDeadline)
		defer cancel()
	}

	containerName, err := generateContainerName()
	if err != nil {
		return nil, fmt.Errorf("generating container name: %w", err)
	}

	// Scripts are staged host-side and mounted read-only into the container.
	staged, err := Stage(req.Script, req.ScriptName, s.logger)
	if err != nil {
		return nil, err
	}
	defer staged.Cleanup()

	command := append([]string{}, req.Command...)
	if staged.Path != "" {
		command = append(command, dockerScriptMount+"/"+filepath.Base(staged.Path))
	}

	memoryMB := s.config.MemoryMB
	if req.Limits.MaxMemoryMB > 0 {
		memoryMB = req.Limits.MaxMemoryMB
	}

	args := s.buildDockerArgs(containerName, memoryMB, staged, req)
	args = append(args, command...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	s.logger.Info("docker sandbox executing",
		slog.String("container", containerName),
		slog.String("image", s.config.Image),
		slog.Any("command", req.Command),
		slog.Int("memory_mb", memoryMB),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	// Safety net in case --rm didn't fire (OOM kill, daemon restart,
	// context cancel race).
	s.forceRemoveContainer(containerName)

	result := &ExecutionResult{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: duration,
	}

	if runErr != nil {
		if errors.Is(context.Cause(ctx), errExecutionDeadline) {
			s.logger.Warn("docker sandbox timed out",
				slog.String("container", containerName),
				slog.Duration("timeout", timeout),
			)
			result.TimedOut = true
			result.ExitCode = 1
			result.Stderr = fmt.Sprintf("Execution timed out after %s", timeout)
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution canceled: %w", context.Cause(ctx))
		}

		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("docker execution failed: %w", runErr)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	s.logger.Info("docker sandbox completed",
		slog.String("container", containerName),
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", duration),
	)

	return result, nil
}

// buildDockerArgs constructs the docker run argument list with hardening
// flags. The command itself is NOT included — the caller appends it.
func (s *DockerSandbox) buildDockerArgs(name string, memoryMB int, staged *StagedScript, req ExecutionRequest) []string {
	memoryFlag := strconv.Itoa(memoryMB) + "m"
	cpuFlag := strconv.FormatFloat(s.config.CPUCores, 'f', 2, 64)
	pidsFlag := strconv.Itoa(s.config.PIDsLimit)

	args := []string{
		"run", "--rm",
		"--name", name,

		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--read-only",
		"--user=65534:65534",

		"--memory=" + memoryFlag,
		"--memory-swap=" + memoryFlag, // Equal to memory = swap disabled.
		"--cpus=" + cpuFlag,
		"--pids-limit=" + pidsFlag,

		"--tmpfs", "/tmp:rw,noexec,nosuid,size=64m",
		"--tmpfs", "/home/sandbox:rw,noexec,nosuid,size=64m",

		"--env", "HOME=/home/sandbox",
		"--env", "PATH=/usr/local/bin:/usr/bin:/bin",
		"--env", "LANG=en_US.UTF-8",
		"--env", "TERM=dumb",
	}

	if s.config.NetworkAllowed {
		args = append(args, "--network=bridge")
	} else {
		args = append(args, "--network=none")
	}

	if staged.Path != "" {
		args = append(args, "--volume", staged.Dir+":"+dockerScriptMount+":ro")
	}

	if req.WorkingDir != "" {
		args = append(args, "--workdir", req.WorkingDir)
	} else {
		args = append(args, "--workdir", "/home/sandbox")
	}

	for k, v := range req.Env {
		args = append(args, "--env", k+"="+v)
	}

	args = append(args, s.config.Image)
	return args
}

// forceRemoveContainer removes the container if it still exists.
func (s *DockerSandbox) forceRemoveContainer(name string) {
	rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := exec.CommandContext(rmCtx, "docker", "rm", "-f", name).Run(); err == nil {
		s.logger.Debug("removed leftover container", slog.String("container", name))
	}
}

// generateContainerName returns a unique container name.
func generateContainerName() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "sanduku-" + hex.EncodeToString(b), nil
}
