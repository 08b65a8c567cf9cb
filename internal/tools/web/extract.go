package web

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ExtractMarkdown converts HTML to a markdown rendering of its readable
// content: headings, paragraphs, links, emphasis, lists, code blocks,
// blockquotes, and tables. Script, style, and other non-content elements
// are dropped. Returns an error when nothing extractable remains — callers
// fall back to the raw content with a visible note.
func ExtractMarkdown(content string) (string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	var blocks []string
	appendBlock := func(s string) {
		if s = strings.TrimRight(s, " \n"); s != "" {
			blocks = append(blocks, s)
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template", "iframe", "svg":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				level := int(n.Data[1] - '0')
				appendBlock(strings.Repeat("#", level) + " " + inlineMarkdown(n))
				return
			case "p":
				appendBlock(inlineMarkdown(n))
				return
			case "pre":
				code := rawText(n)
				if strings.TrimSpace(code) != "" {
					appendBlock("```\n" + strings.Trim(code, "\n") + "\n```")
				}
				return
			case "ul", "ol":
				appendBlock(renderList(n, n.Data == "ol"))
				return
			case "blockquote":
				if t := inlineMarkdown(n); t != "" {
					appendBlock("> " + t)
				}
				return
			case "table":
				appendBlock(renderTable(n))
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	out := strings.Join(blocks, "\n\n")
	if strings.TrimSpace(out) == "" {
		return "", errors.New("no extractable content")
	}
	return out, nil
}

// inlineMarkdown renders a node's children as one line of markdown,
// converting links, emphasis, inline code, and images.
func inlineMarkdown(n *html.Node) string {
	var sb strings.Builder

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
			return
		case html.ElementNode:
			switch node.Data {
			case "script", "style":
				return
			case "a":
				if href := attrValue(node, "href"); href != "" {
					sb.WriteString("[" + inlineMarkdown(node) + "](" + href + ")")
					return
				}
			case "strong", "b":
				sb.WriteString("**" + inlineMarkdown(node) + "**")
				return
			case "em", "i":
				sb.WriteString("*" + inlineMarkdown(node) + "*")
				return
			case "code":
				sb.WriteString("`" + rawText(node) + "`")
				return
			case "img":
				if src := attrValue(node, "src"); src != "" {
					sb.WriteString("![" + attrValue(node, "alt") + "](" + src + ")")
				}
				return
			case "br":
				sb.WriteString(" ")
				return
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c)
	}

	return collapseSpace(sb.String())
}

// renderList renders ul/ol items, one per line.
func renderList(n *html.Node, ordered bool) string {
	var lines []string
	idx := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		idx++
		text := inlineMarkdown(c)
		if text == "" {
			continue
		}
		if ordered {
			lines = append(lines, fmt.Sprintf("%d. %s", idx, text))
		} else {
			lines = append(lines, "- "+text)
		}
	}
	return strings.Join(lines, "\n")
}

// renderTable renders rows as pipe-delimited lines with a separator after
// the first row.
func renderTable(n *html.Node) string {
	var rows []string

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "tr" {
			var cells []string
			for c := node.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, inlineMarkdown(c))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
				if len(rows) == 1 {
					rows = append(rows, "|"+strings.Repeat(" --- |", len(cells)))
				}
			}
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return strings.Join(rows, "\n")
}

// rawText collects text content verbatim (for pre/code).
func rawText(n *html.Node) string {
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
	return sb.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
