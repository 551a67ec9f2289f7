package gateway

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// RenderPlain converts markdown to plain text for transports without
// styling support. Rendering failures return the input unchanged; a
// mangled reply is worse than a styled one.
func RenderPlain(markdown string) string {
	if markdown == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return markdown
	}

	doc, err := html.Parse(&buf)
	if err != nil {
		return markdown
	}

	var sb strings.Builder
	flatten(doc, &sb)

	out := sb.String()
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}

func flatten(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Li:
			sb.WriteString("- ")
		case atom.Hr:
			sb.WriteString("\n---\n")
		case atom.Br:
			sb.WriteString("\n")
		}
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		flatten(child, sb)
	}

	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
			atom.Ul, atom.Ol, atom.Pre, atom.Blockquote, atom.Div:
			sb.WriteString("\n\n")
		case atom.Li:
			sb.WriteString("\n")
		}
	}
}
