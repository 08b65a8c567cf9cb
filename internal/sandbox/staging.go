package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// StagedScript is an ephemeral, exclusively-owned working directory holding
// an untrusted source file. The directory name comes from os.MkdirTemp and
// cannot collide with concurrent stagings.
//
// Callers must defer Cleanup immediately after a successful Stage so the
// directory is removed on every exit path — success, failure, or timeout.
type StagedScript struct {
	Dir    string // Private working directory.
	Path   string // Staged script file inside Dir. Empty if no source given.
	logger *slog.Logger
}

// Stage creates a fresh private directory and, when source is non-empty,
// writes it verbatim to a fixed-name file inside it.
func Stage(source, filename string, logger *slog.Logger) (*StagedScript, error) {
	dir, err := os.MkdirTemp("", "sanduku-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}

	s := &StagedScript{Dir: dir, logger: logger}

	if source != "" {
		if filename == "" {
			filename = "script"
		}
		path := filepath.Join(dir, filename)
		if err := os.WriteFile(path, []byte(source), 0o600); err != nil {
			s.Cleanup()
			return nil, fmt.Errorf("writing staged script: %w", err)
		}
		s.Path = path
	}

	return s, nil
}

// Cleanup removes the staging directory and everything inside it.
// Safe to call more than once.
func (s *StagedScript) Cleanup() {
	if s.Dir == "" {
		return
	}
	if err := os.RemoveAll(s.Dir); err != nil && s.logger != nil {
		s.logger.Warn("failed to remove staging dir",
			slog.String("dir", s.Dir),
			slog.String("error", err.Error()),
		)
	}
	s.Dir = ""
}
