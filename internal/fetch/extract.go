package fetch

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped are elements whose subtrees carry no conversational content.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Header:   true,
}

// extractHTML parses raw HTML and returns the page title and its
// readable text. Parse failures fall back to a naive tag strip.
func extractHTML(raw string) (title, text string) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return "", stripTags(raw)
	}

	var b strings.Builder
	walk(doc, &b, &title)
	return strings.TrimSpace(title), tidy(b.String())
}

func walk(n *html.Node, b *strings.Builder, title *string) {
	if n.Type == html.ElementNode {
		if n.DataAtom == atom.Title && *title == "" {
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					*title += c.Data
				}
			}
			return
		}
		if skipped[n.DataAtom] && n.DataAtom != atom.Head {
			return
		}
	}

	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			b.WriteString(t)
			b.WriteByte(' ')
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		// Descend into <head> only far enough to find the title.
		if n.Type == html.ElementNode && n.DataAtom == atom.Head && c.DataAtom != atom.Title {
			continue
		}
		walk(c, b, title)
	}

	if n.Type == html.ElementNode && blockLevel(n.DataAtom) {
		b.WriteByte('\n')
	}
}

func blockLevel(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Ul, atom.Ol, atom.Li,
		atom.Table, atom.Tr, atom.Br, atom.Hr:
		return true
	}
	return false
}

// tidy collapses runs of whitespace and blank lines.
func tidy(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func stripTags(s string) string {
	tok := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		if tok.Next() == html.ErrorToken {
			return tidy(b.String())
		}
		if t := tok.Token(); t.Type == html.TextToken {
			b.WriteString(t.Data)
			b.WriteByte(' ')
		}
	}
}
