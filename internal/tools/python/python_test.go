package python

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/jkaninda/sanduku/internal/sandbox"
)

type stubSandbox struct {
	lastReq sandbox.ExecutionRequest
	result  *sandbox.ExecutionResult
	err     error
}

func (s *stubSandbox) Execute(_ context.Context, req sandbox.ExecutionRequest) (*sandbox.ExecutionResult, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestTool(stub *stubSandbox) *Tool {
	return NewTool(Config{Interpreter: "python3", Linter: "ruff"}, stub, testLogger())
}

func TestPythonTool_Run(t *testing.T) {
	stub := &stubSandbox{result: &sandbox.ExecutionResult{Stdout: "42\n", ExitCode: 0}}
	tool := newTestTool(stub)

	result, err := tool.Execute(context.Background(), map[string]any{"code": "print(42)"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if !strings.Contains(result.Output, "42") {
		t.Errorf("output = %q, want program output", result.Output)
	}

	if got := stub.lastReq.Command; len(got) != 1 || got[0] != "python3" {
		t.Errorf("command = %v, want [python3]", got)
	}
	if stub.lastReq.Script != "print(42)" {
		t.Errorf("script = %q, want the code", stub.lastReq.Script)
	}
	if stub.lastReq.ScriptName != "script.py" {
		t.Errorf("script name = %q, want script.py", stub.lastReq.ScriptName)
	}
}

func TestPythonTool_TimeoutParam(t *testing.T) {
	stub := &stubSandbox{result: &sandbox.ExecutionResult{ExitCode: 0}}
	tool := newTestTool(stub)

	if _, err := tool.Execute(context.Background(), map[string]any{
		"code":    "x",
		"timeout": float64(30),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stub.lastReq.Timeout.Seconds() != 30 {
		t.Errorf("timeout = %s, want 30s", stub.lastReq.Timeout)
	}
}

func TestPythonTool_LintReportsIssues(t *testing.T) {
	// Ruff exits non-zero when it finds issues; that's a report, not a failure.
	stub := &stubSandbox{result: &sandbox.ExecutionResult{
		Stdout:   "script.py:1:1: F401 unused import",
		ExitCode: 1,
	}}
	tool := newTestTool(stub)

	result, err := tool.Execute(context.Background(), map[string]any{
		"code": "import os",
		"lint": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("lint with findings must still be Success")
	}
	if !strings.Contains(result.Output, "F401") {
		t.Errorf("output = %q, want the lint report", result.Output)
	}
	if result.Metadata["clean"] != false {
		t.Error("metadata clean = true, want false")
	}

	if got := stub.lastReq.Command; len(got) == 0 || got[0] != "ruff" {
		t.Errorf("command = %v, want ruff invocation", got)
	}
	if stub.lastReq.Timeout != sandbox.NoTimeout {
		t.Errorf("lint timeout = %v, want NoTimeout", stub.lastReq.Timeout)
	}
}

func TestPythonTool_LintClean(t *testing.T) {
	stub := &stubSandbox{result: &sandbox.ExecutionResult{ExitCode: 0}}
	tool := newTestTool(stub)

	result, err := tool.Execute(context.Background(), map[string]any{
		"code": "x = 1",
		"lint": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != "No issues found!" {
		t.Errorf("output = %q, want clean message", result.Output)
	}
	if result.Metadata["clean"] != true {
		t.Error("metadata clean = false, want true")
	}
}

func TestPythonTool_InterpreterNotConfigured(t *testing.T) {
	tool := NewTool(Config{}, &stubSandbox{}, testLogger())

	_, err := tool.Execute(context.Background(), map[string]any{"code": "x"})
	if err == nil || !strings.Contains(err.Error(), "SANDBOX_PYTHON") {
		t.Errorf("err = %v, want interpreter configuration error", err)
	}
}

func TestPythonTool_LinterNotConfigured(t *testing.T) {
	tool := NewTool(Config{Interpreter: "python3"}, &stubSandbox{}, testLogger())

	_, err := tool.Execute(context.Background(), map[string]any{"code": "x", "lint": true})
	if err == nil || !strings.Contains(err.Error(), "SANDBOX_RUFF") {
		t.Errorf("err = %v, want linter configuration error", err)
	}
}

func TestPythonTool_Validate(t *testing.T) {
	tool := newTestTool(&stubSandbox{})

	if err := tool.Validate(map[string]any{}); err == nil {
		t.Error("missing code accepted")
	}
	if err := tool.Validate(map[string]any{"code": "x", "timeout": float64(-5)}); err == nil {
		t.Error("negative timeout accepted")
	}
	if err := tool.Validate(map[string]any{"code": "x"}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
}
