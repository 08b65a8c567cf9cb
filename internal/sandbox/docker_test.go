package sandbox

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// testImage is the Docker image used for integration tests.
const testImage = "jkaninda/sanduku-runtime:latest"

// skipIfNoDocker skips the test if Docker is unavailable.
func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if err := exec.Command("docker", "info").Run(); err != nil {
		t.Skip("docker not available, skipping integration test")
	}
}

// skipIfNoImage skips the test if the runtime image isn't built.
func skipIfNoImage(t *testing.T) {
	t.Helper()
	out, err := exec.Command("docker", "images", "-q", testImage).Output()
	if err != nil || strings.TrimSpace(string(out)) == "" {
		t.Skipf("docker image %s not found, skipping", testImage)
	}
}

func newTestDockerSandbox(t *testing.T) *DockerSandbox {
	t.Helper()
	skipIfNoDocker(t)
	skipIfNoImage(t)

	return NewDockerSandbox(DockerConfig{
		Image:          testImage,
		DefaultTimeout: 30 * time.Second,
		MemoryMB:       64,
		CPUCores:       0.5,
		PIDsLimit:      32,
		NetworkAllowed: false,
	}, testLogger())
}

func TestDockerSandbox_BasicExecution(t *testing.T) {
	sbx := newTestDockerSandbox(t)

	result, err := sbx.Execute(context.Background(), ExecutionRequest{
		Command: []string{"echo", "hello"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
	if got := strings.TrimSpace(result.Stdout); got != "hello" {
		t.Errorf("stdout = %q, want %q", got, "hello")
	}
}

func TestDockerSandbox_NonZeroExit(t *testing.T) {
	sbx := newTestDockerSandbox(t)

	result, err := sbx.Execute(context.Background(), ExecutionRequest{
		Command: []string{"sh", "-c", "exit 42"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 42 {
		t.Errorf("exit code = %d, want 42", result.ExitCode)
	}
}

func TestDockerSandbox_TimeoutIsResult(t *testing.T) {
	sbx := newTestDockerSandbox(t)

	result, err := sbx.Execute(context.Background(), ExecutionRequest{
		Command: []string{"sleep", "60"},
		Timeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("timeout must be a result, not an error: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("TimedOut = false, want true")
	}
	if result.ExitCode != 1 {
		t.Errorf("exit code = %d, want 1", result.ExitCode)
	}
}

func TestDockerSandbox_NetworkDisabled(t *testing.T) {
	sbx := newTestDockerSandbox(t)

	result, err := sbx.Execute(context.Background(), ExecutionRequest{
		Command: []string{"sh", "-c", "cat /sys/class/net/eth0/operstate 2>/dev/null || echo no-network"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(result.Stdout); got != "no-network" {
		t.Errorf("network appears enabled: %q", got)
	}
}

func TestDockerSandbox_ScriptStagedReadOnly(t *testing.T) {
	sbx := newTestDockerSandbox(t)

	result, err := sbx.Execute(context.Background(), ExecutionRequest{
		Command:    []string{"cat"},
		Script:     "staged content",
		ScriptName: "input.txt",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stdout != "staged content" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "staged content")
	}
}

func TestGenerateContainerName(t *testing.T) {
	a, err := generateContainerName()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := generateContainerName()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(a, "sanduku-") {
		t.Errorf("container name %q missing prefix", a)
	}
	if a == b {
		t.Errorf("container names collided: %q", a)
	}
}
