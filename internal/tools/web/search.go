package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/jkaninda/sanduku/internal/tools"
)

// searchPassthroughParams are the SearXNG API parameters forwarded verbatim
// when present; anything else the caller sends is dropped.
var searchPassthroughParams = []string{
	"categories", "engines", "language", "time_range",
}

var searchFormats = map[string]bool{"json": true, "csv": true, "rss": true}

// SearchTool queries a SearXNG instance through its search API.
type SearchTool struct {
	queryURL string
	fetcher  *Fetcher
	logger   *slog.Logger
}

// NewSearchTool creates the search tool. queryURL is the SearXNG search
// endpoint; empty means the tool reports a configuration error on use.
func NewSearchTool(queryURL string, fetcher *Fetcher, logger *slog.Logger) *SearchTool {
	return &SearchTool{queryURL: queryURL, fetcher: fetcher, logger: logger}
}

func (t *SearchTool) Name() string { return "search" }
func (t *SearchTool) Description() string {
	return "Search the web through the configured SearXNG instance"
}

func (t *SearchTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":      map[string]any{"type": "string", "description": "The search query"},
			"format":     map[string]any{"type": "string", "enum": []string{"json", "csv", "rss"}, "description": "Result format (default json)"},
			"categories": map[string]any{"type": "string", "description": "Comma-separated SearXNG categories"},
			"engines":    map[string]any{"type": "string", "description": "Comma-separated SearXNG engines"},
			"language":   map[string]any{"type": "string", "description": "Search language code"},
			"pageno":     map[string]any{"type": "integer", "description": "Result page number (default 1)"},
			"time_range": map[string]any{"type": "string", "description": "Time range filter (day, month, year)"},
			"safesearch": map[string]any{"type": "integer", "description": "Safe-search level 0-2"},
		},
		"required": []string{"query"},
	}
}

func (t *SearchTool) Validate(params map[string]any) error {
	if _, err := tools.RequireString(params, "query"); err != nil {
		return err
	}
	if format := tools.OptionalString(params, "format", "json"); !searchFormats[format] {
		return &tools.ParamError{Key: "format", Reason: "must be json, csv, or rss"}
	}
	if pageno := tools.OptionalInt(params, "pageno", 1); pageno < 1 {
		return &tools.ParamError{Key: "pageno", Reason: "must be positive"}
	}
	return nil
}

func (t *SearchTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	query, err := tools.RequireString(params, "query")
	if err != nil {
		return nil, err
	}
	if t.queryURL == "" {
		return nil, fmt.Errorf("search backend not configured (set SEARXNG_QUERY_URL)")
	}

	format := tools.OptionalString(params, "format", "json")

	values := url.Values{}
	values.Set("q", query)
	values.Set("format", format)
	for _, p := range searchPassthroughParams {
		if v := tools.OptionalString(params, p, ""); v != "" {
			values.Set(p, v)
		}
	}
	if pageno := tools.OptionalInt(params, "pageno", 0); pageno > 0 {
		values.Set("pageno", strconv.Itoa(pageno))
	}
	if safesearch := tools.OptionalInt(params, "safesearch", -1); safesearch >= 0 {
		values.Set("safesearch", strconv.Itoa(safesearch))
	}

	t.logger.InfoContext(ctx, "search tool executing",
		slog.String("query", query),
		slog.String("format", format),
	)

	// The backend location is operator-configured, not model-supplied.
	content, err := t.fetcher.GetTrusted(ctx, t.queryURL+"?"+values.Encode())
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}

	return &tools.Result{
		Output:  tools.TruncateOutput(content, tools.MaxOutputBytes),
		Success: true,
		Metadata: map[string]any{
			"query":  query,
			"format": format,
		},
	}, nil
}
