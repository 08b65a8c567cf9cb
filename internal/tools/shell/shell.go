// Package shell implements the persistent-sandbox shell execution tool.
// Commands run on a pre-provisioned remote shell environment reached over
// TCP or a Unix socket — never directly on the host.
package shell

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/sanduku/internal/sandbox"
	"github.com/jkaninda/sanduku/internal/tools"
)

const defaultTimeLimitSeconds = 5

// Tool executes shell commands on the remote sandbox shell.
type Tool struct {
	sandbox sandbox.Sandbox
	logger  *slog.Logger
}

// NewTool creates a shell tool that delegates all execution to the given sandbox.
func NewTool(sbx sandbox.Sandbox, logger *slog.Logger) *Tool {
	return &Tool{sandbox: sbx, logger: logger}
}

func (t *Tool) Name() string { return "shell" }
func (t *Tool) Description() string {
	return "Execute shell commands in the persistent sandbox environment"
}

func (t *Tool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"commands":   map[string]any{"type": "string", "description": "Shell command(s) to execute"},
			"time_limit": map[string]any{"type": "integer", "description": fmt.Sprintf("Seconds to wait for output (default %d)", defaultTimeLimitSeconds)},
			"screen":     map[string]any{"type": "string", "description": "Optional screen session name; the session persists between requests. Pass \"new\" to generate one"},
		},
		"required": []string{"commands"},
	}
}

// Validate checks that required params are present and well-formed.
func (t *Tool) Validate(params map[string]any) error {
	if _, err := tools.RequireString(params, "commands"); err != nil {
		return err
	}
	if limit := tools.OptionalInt(params, "time_limit", 0); limit < 0 {
		return &tools.ParamError{Key: "time_limit", Reason: "must be non-negative"}
	}
	return nil
}

// Execute runs the command line through the remote shell sandbox.
func (t *Tool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	commands, err := tools.RequireString(params, "commands")
	if err != nil {
		return nil, err
	}

	timeLimit := tools.OptionalInt(params, "time_limit", defaultTimeLimitSeconds)

	screen := tools.OptionalString(params, "screen", "")
	if screen == "new" {
		screen = sandbox.GenerateScreenSession()
	}

	t.logger.InfoContext(ctx, "shell tool executing",
		slog.String("commands", commands),
		slog.Int("time_limit", timeLimit),
		slog.String("screen", screen),
	)

	result, err := t.sandbox.Execute(ctx, sandbox.ExecutionRequest{
		Command:       []string{commands},
		Timeout:       time.Duration(timeLimit) * time.Second,
		ScreenSession: screen,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox execution: %w", err)
	}

	meta := map[string]any{
		"exit_code": result.ExitCode,
		"timed_out": result.TimedOut,
		"duration":  result.Duration.String(),
	}
	if screen != "" {
		meta["screen"] = screen
	}

	return &tools.Result{
		Output:   tools.TruncateOutput(tools.FormatResult(result), tools.MaxOutputBytes),
		Success:  result.ExitCode == 0 && !result.TimedOut,
		Metadata: meta,
	}, nil
}
