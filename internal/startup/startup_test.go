package startup

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/jkaninda/sanduku/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProvision_NothingConfigured(t *testing.T) {
	t.Setenv("GIT_SSH_KEY", "")

	if err := Provision(context.Background(), config.GitConfig{}, testLogger()); err != nil {
		t.Fatalf("empty provisioning must be a no-op: %v", err)
	}
}

func TestExportAgentVars(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("SSH_AGENT_PID", "")

	output := "SSH_AUTH_SOCK=/tmp/ssh-xyz/agent.123; export SSH_AUTH_SOCK;\n" +
		"SSH_AGENT_PID=456; export SSH_AGENT_PID;\n" +
		"echo Agent pid 456;\n"

	if err := exportAgentVars(output); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("SSH_AUTH_SOCK"); got != "/tmp/ssh-xyz/agent.123" {
		t.Errorf("SSH_AUTH_SOCK = %q", got)
	}
	if got := os.Getenv("SSH_AGENT_PID"); got != "456" {
		t.Errorf("SSH_AGENT_PID = %q", got)
	}
}

func TestExportAgentVars_MissingSock(t *testing.T) {
	if err := exportAgentVars("echo nothing useful\n"); err == nil {
		t.Fatal("expected error when SSH_AUTH_SOCK is absent")
	}
}

func TestShredFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "key-*")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	const secret = "PRIVATE KEY MATERIAL"
	if _, err := f.WriteString(secret); err != nil {
		t.Fatalf("writing: %v", err)
	}
	path := f.Name()
	_ = f.Close()

	shredFile(path, len(secret))

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("key file %q still exists", path)
	}
}
