// Package startup provisions the execution environment before the server
// accepts requests: git identity and an ssh-agent loaded with a deploy key.
package startup

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/jkaninda/sanduku/internal/config"
)

// Provision applies git identity and SSH key setup. Each step is skipped
// when its inputs are absent; a step that is configured but fails aborts
// startup so the operator sees a broken environment immediately.
func Provision(ctx context.Context, cfg config.GitConfig, logger *slog.Logger) error {
	if err := configureGit(ctx, cfg, logger); err != nil {
		return fmt.Errorf("configuring git identity: %w", err)
	}
	if err := setupSSHKey(ctx, logger); err != nil {
		return fmt.Errorf("setting up SSH key: %w", err)
	}
	return nil
}

func configureGit(ctx context.Context, cfg config.GitConfig, logger *slog.Logger) error {
	if cfg.UserName != "" {
		if err := runCommand(ctx, "git", "config", "--global", "user.name", cfg.UserName); err != nil {
			return err
		}
		logger.Info("git user.name configured", slog.String("name", cfg.UserName))
	}
	if cfg.UserEmail != "" {
		if err := runCommand(ctx, "git", "config", "--global", "user.email", cfg.UserEmail); err != nil {
			return err
		}
		logger.Info("git user.email configured", slog.String("email", cfg.UserEmail))
	}
	return nil
}

// setupSSHKey loads GIT_SSH_KEY into a fresh ssh-agent. The key material
// only ever touches a 0600 temp file, which is shredded and removed after
// ssh-add. The env var is cleared so child processes never see it.
func setupSSHKey(ctx context.Context, logger *slog.Logger) error {
	key := os.Getenv("GIT_SSH_KEY")
	if key == "" {
		return nil
	}
	defer os.Unsetenv("GIT_SSH_KEY")

	// ssh-add requires a trailing newline on the key.
	if !strings.HasSuffix(key, "\n") {
		key += "\n"
	}

	keyFile, err := os.CreateTemp("", "sanduku-key-*")
	if err != nil {
		return fmt.Errorf("creating key file: %w", err)
	}
	keyPath := keyFile.Name()
	defer shredFile(keyPath, len(key))

	if err := keyFile.Chmod(0o600); err != nil {
		keyFile.Close()
		return fmt.Errorf("restricting key file permissions: %w", err)
	}
	if _, err := keyFile.WriteString(key); err != nil {
		keyFile.Close()
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := keyFile.Close(); err != nil {
		return fmt.Errorf("closing key file: %w", err)
	}

	// Start an agent and export its variables into this process so that
	// sandboxed git commands inherit SSH_AUTH_SOCK.
	out, err := exec.CommandContext(ctx, "ssh-agent", "-s").Output()
	if err != nil {
		return fmt.Errorf("starting ssh-agent: %w", err)
	}
	if err := exportAgentVars(string(out)); err != nil {
		return err
	}

	if err := runCommand(ctx, "ssh-add", keyPath); err != nil {
		return fmt.Errorf("adding key to agent: %w", err)
	}

	logger.Info("SSH key loaded into agent")
	return nil
}

// exportAgentVars parses `ssh-agent -s` output (VAR=value; export VAR;)
// and sets SSH_AUTH_SOCK and SSH_AGENT_PID in the process environment.
func exportAgentVars(output string) error {
	found := false
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		for _, name := range []string{"SSH_AUTH_SOCK", "SSH_AGENT_PID"} {
			prefix := name + "="
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			value := strings.TrimPrefix(line, prefix)
			if i := strings.IndexByte(value, ';'); i >= 0 {
				value = value[:i]
			}
			if err := os.Setenv(name, value); err != nil {
				return fmt.Errorf("exporting %s: %w", name, err)
			}
			if name == "SSH_AUTH_SOCK" {
				found = true
			}
		}
	}
	if !found {
		return fmt.Errorf("ssh-agent output missing SSH_AUTH_SOCK")
	}
	return nil
}

// shredFile overwrites the file with zeros before removing it.
func shredFile(path string, size int) {
	if f, err := os.OpenFile(path, os.O_WRONLY, 0o600); err == nil {
		_, _ = f.Write(make([]byte, size))
		_ = f.Sync()
		_ = f.Close()
	}
	_ = os.Remove(path)
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
