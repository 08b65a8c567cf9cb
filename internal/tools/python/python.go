// Package python implements the sandboxed Python execution and lint tool.
// Code is staged to a private temp file and either run under the configured
// interpreter or checked with the configured linter — always through the
// sandbox, never directly on the host.
package python

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/sanduku/internal/sandbox"
	"github.com/jkaninda/sanduku/internal/tools"
)

const (
	defaultTimeoutSeconds = 5
	scriptName            = "script.py"
	noIssues              = "No issues found!"
)

// Config configures the python tool.
type Config struct {
	Interpreter    string // Sandbox Python binary. Required for execution.
	Linter         string // Ruff binary. Required for lint mode.
	TimeoutSeconds int    // Default execution timeout. 0 = 5s.
}

// Tool executes or lints Python code inside the sandbox.
type Tool struct {
	config  Config
	sandbox sandbox.Sandbox
	logger  *slog.Logger
}

// NewTool creates a python tool that delegates all execution to the given sandbox.
func NewTool(cfg Config, sbx sandbox.Sandbox, logger *slog.Logger) *Tool {
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = defaultTimeoutSeconds
	}
	return &Tool{config: cfg, sandbox: sbx, logger: logger}
}

func (t *Tool) Name() string { return "python" }
func (t *Tool) Description() string {
	return "Execute or lint Python code in a sandboxed environment"
}

func (t *Tool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code":    map[string]any{"type": "string", "description": "The Python code to execute or lint"},
			"timeout": map[string]any{"type": "integer", "description": fmt.Sprintf("Execution timeout in seconds (default %d). Ignored in lint mode", t.config.TimeoutSeconds)},
			"lint":    map[string]any{"type": "boolean", "description": "Lint the code with Ruff instead of executing it (default false)"},
		},
		"required": []string{"code"},
	}
}

// Validate checks parameters and that the mode's binary is configured.
func (t *Tool) Validate(params map[string]any) error {
	if _, err := tools.RequireString(params, "code"); err != nil {
		return err
	}
	if timeout := tools.OptionalInt(params, "timeout", 0); timeout < 0 {
		return &tools.ParamError{Key: "timeout", Reason: "must be non-negative"}
	}
	return nil
}

// Execute runs or lints the code through the sandbox.
func (t *Tool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	code, err := tools.RequireString(params, "code")
	if err != nil {
		return nil, err
	}

	if tools.OptionalBool(params, "lint", false) {
		return t.lint(ctx, code)
	}

	timeout := tools.OptionalInt(params, "timeout", t.config.TimeoutSeconds)
	return t.run(ctx, code, time.Duration(timeout)*time.Second)
}

func (t *Tool) run(ctx context.Context, code string, timeout time.Duration) (*tools.Result, error) {
	if t.config.Interpreter == "" {
		return nil, fmt.Errorf("sandbox python interpreter not configured (set SANDBOX_PYTHON)")
	}

	t.logger.InfoContext(ctx, "python tool executing",
		slog.Int("code_bytes", len(code)),
		slog.Duration("timeout", timeout),
	)

	result, err := t.sandbox.Execute(ctx, sandbox.ExecutionRequest{
		Command:    []string{t.config.Interpreter},
		Script:     code,
		ScriptName: scriptName,
		Timeout:    timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox execution: %w", err)
	}

	return &tools.Result{
		Output:  tools.TruncateOutput(tools.FormatResult(result), tools.MaxOutputBytes),
		Success: result.ExitCode == 0 && !result.TimedOut,
		Metadata: map[string]any{
			"exit_code": result.ExitCode,
			"timed_out": result.TimedOut,
			"degraded":  result.Degraded,
			"duration":  result.Duration.String(),
		},
	}, nil
}

// lint checks the code with the configured linter. Lint runs through the
// same pipeline as execution but with no enforced deadline — it is bounded
// only by the linter's own behavior.
func (t *Tool) lint(ctx context.Context, code string) (*tools.Result, error) {
	if t.config.Linter == "" {
		return nil, fmt.Errorf("sandbox linter not configured (set SANDBOX_RUFF)")
	}

	t.logger.InfoContext(ctx, "python tool linting",
		slog.Int("code_bytes", len(code)),
	)

	result, err := t.sandbox.Execute(ctx, sandbox.ExecutionRequest{
		Command:    []string{t.config.Linter, "check", "--output-format", "text"},
		Script:     code,
		ScriptName: scriptName,
		Timeout:    sandbox.NoTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox execution: %w", err)
	}

	// Ruff exits non-zero when it finds issues; its report is the output,
	// not an error of this subsystem.
	output := result.Stdout
	if result.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += result.Stderr
	}
	clean := result.ExitCode == 0
	if output == "" {
		output = noIssues
	}

	return &tools.Result{
		Output:  tools.TruncateOutput(output, tools.MaxOutputBytes),
		Success: true,
		Metadata: map[string]any{
			"clean":    clean,
			"degraded": result.Degraded,
			"duration": result.Duration.String(),
		},
	}, nil
}
