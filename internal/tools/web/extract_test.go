package web

import (
	"strings"
	"testing"
)

func TestExtractMarkdown_Headings(t *testing.T) {
	got, err := ExtractMarkdown(`<h1>Title</h1><h3>Sub</h3>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "# Title") {
		t.Errorf("h1 not converted: %q", got)
	}
	if !strings.Contains(got, "### Sub") {
		t.Errorf("h3 not converted: %q", got)
	}
}

func TestExtractMarkdown_InlineElements(t *testing.T) {
	got, err := ExtractMarkdown(
		`<p>See <a href="/docs">the docs</a> for <strong>bold</strong>, <em>italic</em>, and <code>x := 1</code>.</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"[the docs](/docs)", "**bold**", "*italic*", "`x := 1`"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestExtractMarkdown_CodeBlock(t *testing.T) {
	got, err := ExtractMarkdown("<pre>func main() {\n\tprintln()\n}</pre>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "```\nfunc main() {\n\tprintln()\n}\n```") {
		t.Errorf("pre block not fenced verbatim: %q", got)
	}
}

func TestExtractMarkdown_Lists(t *testing.T) {
	got, err := ExtractMarkdown(`<ul><li>one</li><li>two</li></ul><ol><li>first</li><li>second</li></ol>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"- one", "- two", "1. first", "2. second"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestExtractMarkdown_Table(t *testing.T) {
	got, err := ExtractMarkdown(
		`<table><tr><th>Name</th><th>Age</th></tr><tr><td>Ada</td><td>36</td></tr></table>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "| Name | Age |") {
		t.Errorf("header row missing: %q", got)
	}
	if !strings.Contains(got, "| --- | --- |") {
		t.Errorf("separator missing: %q", got)
	}
	if !strings.Contains(got, "| Ada | 36 |") {
		t.Errorf("data row missing: %q", got)
	}
}

func TestExtractMarkdown_DropsScriptAndStyle(t *testing.T) {
	got, err := ExtractMarkdown(
		`<style>p{color:red}</style><script>alert(1)</script><p>visible</p>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color:red") {
		t.Errorf("non-content leaked: %q", got)
	}
	if !strings.Contains(got, "visible") {
		t.Errorf("content dropped: %q", got)
	}
}

func TestExtractMarkdown_NoContent(t *testing.T) {
	if _, err := ExtractMarkdown(`<script>only_scripts()</script>`); err == nil {
		t.Fatal("expected error for document with no extractable content")
	}
}

func TestExtractMarkdown_CollapsesWhitespace(t *testing.T) {
	got, err := ExtractMarkdown("<p>spread\n   over \t lines</p>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "spread over lines") {
		t.Errorf("whitespace not collapsed: %q", got)
	}
}
