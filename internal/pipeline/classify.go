package pipeline

import (
	"context"
	"os"
	"runtime"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

// mediaTags are elements that make a page visible even without text.
// The parser rewrites <image> to <img> in HTML content; the raw name is kept
// for foreign (SVG) content.
var mediaTags = map[string]bool{
	"img":    true,
	"svg":    true,
	"image":  true,
	"iframe": true,
	"canvas": true,
	"embed":  true,
	"video":  true,
}

// IsEmpty reports whether a page fragment has nothing visible: no text in
// the body outside script, style, template and noscript, no media element, and no inline style pulling in a background
// image. Content that fails to parse is treated as non-empty so it still
// reaches the renderer.
func IsEmpty(content string) bool {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return false
	}
	body := findBody(doc)
	if body == nil {
		return true
	}

	var text strings.Builder
	collectText(body, &text)
	if strings.TrimSpace(text.String()) != "" {
		return false
	}

	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if hasVisibleElement(c) {
			return false
		}
	}
	return true
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// hiddenTags are elements whose content never renders.
var hiddenTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Noscript: true,
}

func collectText(n *html.Node, b *strings.Builder) {
	switch {
	case n.Type == html.TextNode:
		b.WriteString(n.Data)
		return
	case n.Type == html.ElementNode && hiddenTags[n.DataAtom]:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// hasVisibleElement walks n and its descendants for media elements or
// url() references in style attributes.
func hasVisibleElement(n *html.Node) bool {
	if n.Type == html.ElementNode {
		if hiddenTags[n.DataAtom] {
			return false
		}
		if mediaTags[strings.ToLower(n.Data)] {
			return true
		}
		for _, a := range n.Attr {
			if a.Key == "style" && strings.Contains(a.Val, "url(") {
				return true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasVisibleElement(c) {
			return true
		}
	}
	return false
}

// IsEmptyFile classifies the fragment stored at path. Unreadable files are
// reported non-empty and left for the renderer to fail on.
func IsEmptyFile(path string) bool {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the book directory listing
	if err != nil {
		return false
	}
	return IsEmpty(string(data))
}

// ClassifyFiles runs IsEmptyFile over paths in parallel and returns the
// verdicts in input order. Only context cancellation produces an error.
func ClassifyFiles(ctx context.Context, paths []string) ([]bool, error) {
	empty := make([]bool, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			empty[i] = IsEmptyFile(p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return empty, nil
}
