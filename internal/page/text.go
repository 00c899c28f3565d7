package page

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Dd: true, atom.Details: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Fieldset: true, atom.Figcaption: true, atom.Figure: true, atom.Footer: true,
	atom.Form: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Header: true, atom.Hr: true, atom.Li: true,
	atom.Main: true, atom.Nav: true, atom.Ol: true, atom.P: true, atom.Pre: true,
	atom.Section: true, atom.Summary: true, atom.Table: true, atom.Tr: true, atom.Ul: true,
}

var skippedElements = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Template: true, atom.Noscript: true,
	atom.Head: true, atom.Title: true,
}

// Text returns the rendered text of n the way a reader sees it: block
// elements and <br> break lines, runs of whitespace collapse to one space,
// blank lines are dropped and the result is trimmed. Hidden elements are skipped.
func Text(n *html.Node) string {
	var t textWriter
	t.walk(n)
	t.breakLine()
	return strings.Join(t.lines, "\n")
}

type textWriter struct {
	lines []string
	cur   strings.Builder
}

func (t *textWriter) breakLine() {
	line := strings.Join(strings.Fields(t.cur.String()), " ")
	if line != "" {
		t.lines = append(t.lines, line)
	}
	t.cur.Reset()
}

func (t *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		t.cur.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] || hidden(n) {
			return
		}
		if n.DataAtom == atom.Br {
			t.breakLine()
			return
		}
	case html.DocumentNode:
	default:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.DataAtom]
	if block {
		t.breakLine()
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		t.walk(c)
	}
	if block {
		t.breakLine()
	}
}

func hidden(n *html.Node) bool {
	if HasAttr(n, "hidden") {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(Attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none")
}
