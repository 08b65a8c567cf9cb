package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/jkaninda/sanduku/internal/tools"
)

const defaultMaxLinks = 100

// Link is one extracted link with the first anchor text seen for it.
type Link struct {
	URL   string
	Title string
}

// ParseLink validates an anchor href and resolves it against the base URL.
// Returns "" for fragments, javascript: pseudo-links, and off-site targets.
func ParseLink(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}

	if strings.HasPrefix(href, "/") {
		return base.Scheme + "://" + base.Host + href
	}

	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		parsed, err := url.Parse(href)
		if err != nil || parsed.Host != base.Host {
			return ""
		}
		return href
	}

	resolved, err := base.Parse(href)
	if err != nil {
		return ""
	}
	return resolved.String()
}

// ParseLinks extracts same-site links from HTML, deduplicated by URL with
// the first anchor text kept, ordered by frequency then first appearance.
func ParseLinks(content, baseURL string) []Link {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var (
		order  []string
		counts = map[string]int{}
		titles = map[string]string{}
	)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				link := ParseLink(attr.Val, base)
				if link == "" {
					break
				}
				if counts[link] == 0 {
					order = append(order, link)
				}
				counts[link]++
				if titles[link] == "" {
					titles[link] = anchorText(n)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	firstSeen := make(map[string]int, len(order))
	for i, u := range order {
		firstSeen[u] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})

	links := make([]Link, 0, len(order))
	for _, u := range order {
		links = append(links, Link{URL: u, Title: titles[u]})
	}
	return links
}

// FormatLinks renders the link list with a count summary header.
func FormatLinks(links []Link, pageURL string, maxLinks int, titles bool) string {
	if maxLinks <= 0 {
		maxLinks = defaultMaxLinks
	}

	total := len(links)
	shown := total
	if maxLinks < shown {
		shown = maxLinks
	}

	var header string
	if shown < total {
		header = fmt.Sprintf("%d of the %d links found on %s", shown, total, pageURL)
	} else {
		header = fmt.Sprintf("All %d links found on %s", total, pageURL)
	}

	lines := []string{header + "\n"}
	for _, l := range links[:shown] {
		if titles && l.Title != "" {
			lines = append(lines, "- "+l.Title+": "+l.URL)
		} else {
			lines = append(lines, "- "+l.URL)
		}
	}
	return strings.Join(lines, "\n")
}

// anchorText collects the trimmed text content of a node.
func anchorText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// LinksTool extracts and ranks links from a webpage.
type LinksTool struct {
	fetcher *Fetcher
	logger  *slog.Logger
}

// NewLinksTool creates the links tool.
func NewLinksTool(fetcher *Fetcher, logger *slog.Logger) *LinksTool {
	return &LinksTool{fetcher: fetcher, logger: logger}
}

func (t *LinksTool) Name() string { return "links" }
func (t *LinksTool) Description() string {
	return "Extract and sort the links from a webpage"
}

func (t *LinksTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":       map[string]any{"type": "string", "description": "The URL to scrape for links"},
			"max_links": map[string]any{"type": "integer", "description": fmt.Sprintf("Maximum number of links to return (default %d)", defaultMaxLinks)},
			"titles":    map[string]any{"type": "boolean", "description": "Include the anchor text for each link (default true)"},
		},
		"required": []string{"url"},
	}
}

func (t *LinksTool) Validate(params map[string]any) error {
	rawURL, err := tools.RequireString(params, "url")
	if err != nil {
		return err
	}
	return t.fetcher.ValidateURL(rawURL)
}

func (t *LinksTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	rawURL, err := tools.RequireString(params, "url")
	if err != nil {
		return nil, err
	}

	content, err := t.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	links := ParseLinks(content, rawURL)
	if len(links) == 0 {
		return nil, fmt.Errorf("no links read on %s - it may require JavaScript or authentication", rawURL)
	}

	maxLinks := tools.OptionalInt(params, "max_links", defaultMaxLinks)
	titles := tools.OptionalBool(params, "titles", true)

	return &tools.Result{
		Output:  tools.TruncateOutput(FormatLinks(links, rawURL, maxLinks, titles), tools.MaxOutputBytes),
		Success: true,
		Metadata: map[string]any{
			"total_links": len(links),
		},
	}, nil
}
