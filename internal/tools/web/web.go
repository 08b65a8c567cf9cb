package web

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jkaninda/sanduku/internal/tools"
)

// ProcessingMode selects how fetched content is processed.
type ProcessingMode string

const (
	ModeMarkdown ProcessingMode = "markdown"
	ModeRaw      ProcessingMode = "raw"
	ModeLinks    ProcessingMode = "links"
)

// ParseMode normalizes a mode string, defaulting to raw for unknown values.
func ParseMode(s string) ProcessingMode {
	switch ProcessingMode(strings.ToLower(s)) {
	case ModeMarkdown:
		return ModeMarkdown
	case ModeLinks:
		return ModeLinks
	default:
		return ModeRaw
	}
}

// FetchTool retrieves a URL and returns its content as markdown, raw text,
// or an extracted link list.
type FetchTool struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewFetchTool creates the fetch tool.
func NewFetchTool(fetcher *Fetcher, logger *slog.Logger) *FetchTool {
	return &FetchTool{fetcher: fetcher, logger: logger}
}

func (t *FetchTool) Name() string { return "fetch" }
func (t *FetchTool) Description() string {
	return "Fetch a URL and return its content as markdown, raw text, or a list of links"
}

func (t *FetchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":        map[string]any{"type": "string", "description": "The URL to fetch (http or https)"},
			"mode":       map[string]any{"type": "string", "enum": []string{"markdown", "raw", "links"}, "description": "Content processing mode (default markdown)"},
			"max_length": map[string]any{"type": "integer", "description": "Truncate the result to this many characters. 0 = no limit"},
		},
		"required": []string{"url"},
	}
}

func (t *FetchTool) Validate(params map[string]any) error {
	rawURL, err := tools.RequireString(params, "url")
	if err != nil {
		return err
	}
	if maxLength := tools.OptionalInt(params, "max_length", 0); maxLength < 0 {
		return &tools.ParamError{Key: "max_length", Reason: "must be non-negative"}
	}
	return t.fetcher.ValidateURL(rawURL)
}

func (t *FetchTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	rawURL, err := tools.RequireString(params, "url")
	if err != nil {
		return nil, err
	}

	mode := ParseMode(tools.OptionalString(params, "mode", string(ModeMarkdown)))
	maxLength := tools.OptionalInt(params, "max_length", 0)

	t.logger.InfoContext(ctx, "fetch tool executing",
		slog.String("url", rawURL),
		slog.String("mode", string(mode)),
	)

	content, err := t.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	var output string
	switch mode {
	case ModeLinks:
		links := ParseLinks(content, rawURL)
		if len(links) == 0 {
			return nil, fmt.Errorf("no links read on %s - it may require JavaScript or authentication", rawURL)
		}
		output = FormatLinks(links, rawURL, defaultMaxLinks, true)

	case ModeMarkdown:
		extracted, err := ExtractMarkdown(content)
		if err != nil {
			// Keep the content visible: fall back to raw with a note.
			output = tools.PrependError(content, "Extraction to markdown failed; returning raw content")
		} else {
			output = extracted
		}

	default:
		output = content
	}

	if maxLength > 0 && len(output) > maxLength {
		output = tools.AppendError(output[:maxLength],
			fmt.Sprintf("Content truncated to %d characters", maxLength))
	}

	return &tools.Result{
		Output:  tools.TruncateOutput(output, tools.MaxOutputBytes),
		Success: true,
		Metadata: map[string]any{
			"url":  rawURL,
			"mode": string(mode),
		},
	}, nil
}
