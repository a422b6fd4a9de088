package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/entrhq/surf/pkg/types"
)

const defaultContentLimit = 8000

// CleanedPage is the readable form of a raw HTML document: collapsed
// text with interactive elements annotated inline, plus the elements
// themselves for structured use.
type CleanedPage struct {
	Title     string
	Text      string
	Elements  []types.PageElement
	Truncated bool
}

// CleanPage parses raw HTML into readable text. Scripts, styles and
// other noise are dropped; links, buttons and form controls are kept
// both inline (as "[tag: text]" markers) and in the Elements list so
// the model can target them.
func CleanPage(rawHTML string, maxLength int) (*CleanedPage, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if maxLength <= 0 {
		maxLength = defaultContentLimit
	}

	c := &cleaner{maxLength: maxLength}
	c.walk(doc)

	text := collapseWhitespace(c.builder.String())
	if len(text) > maxLength {
		text = text[:maxLength] + "..."
		c.truncated = true
	}

	return &CleanedPage{
		Title:     c.title,
		Text:      text,
		Elements:  c.elements,
		Truncated: c.truncated,
	}, nil
}

type cleaner struct {
	builder   strings.Builder
	elements  []types.PageElement
	title     string
	maxLength int
	truncated bool
}

func (c *cleaner) walk(n *html.Node) {
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			c.builder.WriteString(text)
			c.builder.WriteString(" ")
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedTags[tag] {
			return
		}
		if tag == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				c.title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		if interactiveTags[tag] {
			c.recordElement(n, tag)
			return
		}
		if blockTags[tag] {
			c.builder.WriteString("\n")
		}
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(child)
	}
}

// recordElement captures an interactive element and writes an inline
// marker so the surrounding text keeps its position.
func (c *cleaner) recordElement(n *html.Node, tag string) {
	attrs := make(map[string]string)
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if keptAttrs[key] && attr.Val != "" {
			attrs[key] = attr.Val
		}
	}

	text := strings.TrimSpace(nodeText(n))
	if text == "" {
		text = attrs["placeholder"]
	}
	if text == "" {
		text = attrs["aria-label"]
	}

	c.elements = append(c.elements, types.PageElement{
		Tag:        tag,
		Text:       text,
		Attributes: attrs,
	})

	if text != "" {
		fmt.Fprintf(&c.builder, "[%s: %s] ", tag, text)
	} else {
		fmt.Fprintf(&c.builder, "[%s] ", tag)
	}
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

// collapseWhitespace squeezes runs of spaces and blank lines so the
// output stays dense enough for a model prompt.
func collapseWhitespace(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"embed":    true,
	"object":   true,
	"svg":      true,
}

var interactiveTags = map[string]bool{
	"a":        true,
	"button":   true,
	"input":    true,
	"select":   true,
	"textarea": true,
}

var blockTags = map[string]bool{
	"div": true, "p": true, "section": true, "article": true,
	"header": true, "footer": true, "nav": true, "main": true,
	"aside": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "ul": true, "ol": true, "li": true,
	"table": true, "tr": true, "blockquote": true, "pre": true,
	"br": true,
}

var keptAttrs = map[string]bool{
	"id":          true,
	"class":       true,
	"name":        true,
	"type":        true,
	"href":        true,
	"placeholder": true,
	"value":       true,
	"role":        true,
	"aria-label":  true,
}
