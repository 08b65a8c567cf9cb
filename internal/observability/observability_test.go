package observability

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/sanduku/internal/config"
	"github.com/jkaninda/sanduku/internal/sandbox"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNew_NilConfigDisablesEverything(t *testing.T) {
	obs, err := New(nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs != nil {
		t.Fatal("want nil Observability for nil config")
	}

	// Everything must be nil-safe on a nil receiver.
	obs.Shutdown(context.Background())
	if obs.TracerOrNil() != nil {
		t.Error("TracerOrNil on nil = non-nil")
	}
	if obs.MetricsOrNil() != nil {
		t.Error("MetricsOrNil on nil = non-nil")
	}
	if obs.Handler() != nil {
		t.Error("Handler on nil = non-nil")
	}
}

func TestNew_MetricsEnabled(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.Metrics == nil {
		t.Fatal("metrics not created")
	}
	if obs.Tracer != nil {
		t.Error("tracer created without tracing config")
	}
	if obs.Health == nil {
		t.Error("health checker must always be created")
	}
}

func TestMetricsCollector_RecordersNilSafe(t *testing.T) {
	var m *MetricsCollector
	m.RecordToolCall("python", "success", time.Second)
	m.RecordSandboxExecution("process", "success", time.Second, false)
}

func TestMetricsEndpoint(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{
		Metrics: &config.MetricsConfig{Enabled: true},
	}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obs.Metrics.RecordToolCall("python", "success", 50*time.Millisecond)
	obs.Metrics.RecordSandboxExecution("process", "timeout", time.Second, true)

	srv := httptest.NewServer(obs.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("fetching metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		"sanduku_tool_calls_total",
		"sanduku_sandbox_executions_total",
		"sanduku_sandbox_timeouts_total",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics exposition missing %s", want)
		}
	}
}

func TestHealthEndpoints(t *testing.T) {
	obs, err := New(&config.ObservabilityConfig{}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	obs.Health.AddCheck("failing", func(ctx context.Context) error {
		return errors.New("backend down")
	})

	srv := httptest.NewServer(obs.Handler())
	defer srv.Close()

	// Liveness ignores dependency checks.
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}

	// Readiness reflects failing checks.
	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", resp.StatusCode)
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decoding readyz body: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("status = %q, want degraded", status.Status)
	}
	if status.Checks["failing"].Message != "backend down" {
		t.Errorf("check message = %q", status.Checks["failing"].Message)
	}
}

func TestHealthChecker_AllPassing(t *testing.T) {
	h := NewHealthChecker(testLogger())
	h.AddCheck("ok", func(ctx context.Context) error { return nil })

	status := h.CheckReady(context.Background())
	if status.Status != "ok" {
		t.Errorf("status = %q, want ok", status.Status)
	}
}

type recordingSandbox struct {
	result *sandbox.ExecutionResult
	err    error
}

func (r *recordingSandbox) Execute(context.Context, sandbox.ExecutionRequest) (*sandbox.ExecutionResult, error) {
	return r.result, r.err
}

func TestInstrumentedSandbox_RecordsOutcomes(t *testing.T) {
	m := NewMetricsCollector()

	tests := []struct {
		name  string
		inner *recordingSandbox
	}{
		{"success", &recordingSandbox{result: &sandbox.ExecutionResult{ExitCode: 0}}},
		{"nonzero", &recordingSandbox{result: &sandbox.ExecutionResult{ExitCode: 1}}},
		{"timeout", &recordingSandbox{result: &sandbox.ExecutionResult{ExitCode: 1, TimedOut: true}}},
		{"error", &recordingSandbox{err: errors.New("spawn failed")}},
	}
	for _, tt := range tests {
		wrapped := NewInstrumentedSandbox(tt.inner, "process", m, nil)
		result, err := wrapped.Execute(context.Background(), sandbox.ExecutionRequest{Command: []string{"x"}})
		if (err != nil) != (tt.inner.err != nil) {
			t.Errorf("%s: err = %v", tt.name, err)
		}
		if tt.inner.result != nil && result != tt.inner.result {
			t.Errorf("%s: result not passed through", tt.name)
		}
	}
}

func TestInstrumentedSandbox_NilMetricsSafe(t *testing.T) {
	inner := &recordingSandbox{result: &sandbox.ExecutionResult{}}
	wrapped := NewInstrumentedSandbox(inner, "process", nil, nil)

	if _, err := wrapped.Execute(context.Background(), sandbox.ExecutionRequest{Command: []string{"x"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
