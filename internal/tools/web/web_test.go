package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newPageServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchTool_MarkdownMode(t *testing.T) {
	srv := newPageServer(t, `<html><body><h1>Welcome</h1><p>Some <strong>text</strong>.</p></body></html>`)
	tool := NewFetchTool(newTestFetcher(Config{}), testLogger())

	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Output, "# Welcome") {
		t.Errorf("output = %q, want markdown heading", result.Output)
	}
	if !strings.Contains(result.Output, "**text**") {
		t.Errorf("output = %q, want markdown emphasis", result.Output)
	}
}

func TestFetchTool_MarkdownFallbackToRaw(t *testing.T) {
	// Nothing extractable: raw content comes back with a visible note.
	srv := newPageServer(t, `just plain text, no block elements at all`)
	tool := NewFetchTool(newTestFetcher(Config{}), testLogger())

	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Output, "<error>Extraction to markdown failed") {
		t.Errorf("output = %q, want fallback note", result.Output)
	}
	if !strings.Contains(result.Output, "just plain text") {
		t.Errorf("output = %q, want raw content preserved", result.Output)
	}
}

func TestFetchTool_RawMode(t *testing.T) {
	body := `<html><body><p>untouched</p></body></html>`
	srv := newPageServer(t, body)
	tool := NewFetchTool(newTestFetcher(Config{}), testLogger())

	result, err := tool.Execute(context.Background(), map[string]any{
		"url":  srv.URL,
		"mode": "raw",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output != body {
		t.Errorf("output = %q, want verbatim body", result.Output)
	}
}

func TestFetchTool_LinksMode(t *testing.T) {
	srv := newPageServer(t, `<html><body><a href="/a">A</a><a href="/b">B</a></body></html>`)
	tool := NewFetchTool(newTestFetcher(Config{}), testLogger())

	result, err := tool.Execute(context.Background(), map[string]any{
		"url":  srv.URL,
		"mode": "links",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Output, "All 2 links found") {
		t.Errorf("output = %q, want link summary", result.Output)
	}
}

func TestFetchTool_MaxLength(t *testing.T) {
	srv := newPageServer(t, `<p>`+strings.Repeat("word ", 200)+`</p>`)
	tool := NewFetchTool(newTestFetcher(Config{}), testLogger())

	result, err := tool.Execute(context.Background(), map[string]any{
		"url":        srv.URL,
		"max_length": float64(50),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Output, "Content truncated to 50 characters") {
		t.Errorf("output = %q, want truncation notice", result.Output)
	}
	head := strings.SplitN(result.Output, "\n\n<error>", 2)[0]
	if len(head) != 50 {
		t.Errorf("truncated content length = %d, want 50", len(head))
	}
}

func TestFetchTool_UnknownModeDefaultsToRaw(t *testing.T) {
	if got := ParseMode("yaml"); got != ModeRaw {
		t.Errorf("ParseMode(yaml) = %q, want raw", got)
	}
	if got := ParseMode("MARKDOWN"); got != ModeMarkdown {
		t.Errorf("ParseMode is not case-insensitive: %q", got)
	}
}

func TestFetchTool_Validate(t *testing.T) {
	tool := NewFetchTool(newTestFetcher(Config{}), testLogger())

	if err := tool.Validate(map[string]any{}); err == nil {
		t.Error("missing url accepted")
	}
	if err := tool.Validate(map[string]any{"url": "ftp://x"}); err == nil {
		t.Error("non-http scheme accepted")
	}
	if err := tool.Validate(map[string]any{"url": "https://example.com", "max_length": float64(-1)}); err == nil {
		t.Error("negative max_length accepted")
	}
	if err := tool.Validate(map[string]any{"url": "https://example.com"}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
}
