package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestParseLink(t *testing.T) {
	base, _ := url.Parse("https://example.com/docs/")

	tests := []struct {
		href, want string
	}{
		{"#section", ""},
		{"javascript:void(0)", ""},
		{"/about", "https://example.com/about"},
		{"https://example.com/page", "https://example.com/page"},
		{"https://other.com/page", ""},
		{"guide.html", "https://example.com/docs/guide.html"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := ParseLink(tt.href, base); got != tt.want {
			t.Errorf("ParseLink(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestParseLinks_RankedByFrequency(t *testing.T) {
	content := `<html><body>
		<a href="/once">Once</a>
		<a href="/thrice">Thrice</a>
		<a href="/twice">Twice</a>
		<a href="/thrice">Thrice again</a>
		<a href="/twice">Twice again</a>
		<a href="/thrice"></a>
	</body></html>`

	links := ParseLinks(content, "https://example.com/")
	if len(links) != 3 {
		t.Fatalf("got %d links, want 3", len(links))
	}

	wantOrder := []string{
		"https://example.com/thrice",
		"https://example.com/twice",
		"https://example.com/once",
	}
	for i, want := range wantOrder {
		if links[i].URL != want {
			t.Errorf("links[%d] = %q, want %q", i, links[i].URL, want)
		}
	}

	// First anchor text wins for duplicates.
	if links[0].Title != "Thrice" {
		t.Errorf("title = %q, want first anchor text", links[0].Title)
	}
}

func TestParseLinks_TiesKeepDocumentOrder(t *testing.T) {
	content := `<a href="/b">B</a><a href="/a">A</a>`
	links := ParseLinks(content, "https://example.com/")
	if len(links) != 2 || links[0].URL != "https://example.com/b" {
		t.Errorf("tie broken out of document order: %+v", links)
	}
}

func TestFormatLinks(t *testing.T) {
	links := []Link{
		{URL: "https://example.com/a", Title: "Alpha"},
		{URL: "https://example.com/b"},
	}

	got := FormatLinks(links, "https://example.com/", 10, true)
	if !strings.HasPrefix(got, "All 2 links found on https://example.com/") {
		t.Errorf("header wrong: %q", got)
	}
	if !strings.Contains(got, "- Alpha: https://example.com/a") {
		t.Errorf("titled link missing: %q", got)
	}
	if !strings.Contains(got, "- https://example.com/b") {
		t.Errorf("untitled link missing: %q", got)
	}

	truncated := FormatLinks(links, "https://example.com/", 1, false)
	if !strings.HasPrefix(truncated, "1 of the 2 links found") {
		t.Errorf("truncated header wrong: %q", truncated)
	}
	if strings.Contains(truncated, "/b") {
		t.Errorf("link past max_links shown: %q", truncated)
	}
}

func TestLinksTool_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><a href="/page">Page</a></body></html>`))
	}))
	defer srv.Close()

	tool := NewLinksTool(newTestFetcher(Config{}), testLogger())

	result, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("Success = false, want true")
	}
	if !strings.Contains(result.Output, "/page") {
		t.Errorf("output = %q, want the extracted link", result.Output)
	}
	if result.Metadata["total_links"] != 1 {
		t.Errorf("total_links = %v, want 1", result.Metadata["total_links"])
	}
}

func TestLinksTool_NoLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	}))
	defer srv.Close()

	tool := NewLinksTool(newTestFetcher(Config{}), testLogger())

	_, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err == nil || !strings.Contains(err.Error(), "no links") {
		t.Errorf("err = %v, want no-links error", err)
	}
}
