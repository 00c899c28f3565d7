// Package page models the host page the scanner runs in: an HTML document,
// a single-threaded task loop, and structural mutation delivery.
package page

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a mutable HTML tree. It is not safe for concurrent use; all
// access goes through the owning Page's task loop.
type Document struct {
	root  *html.Node
	added []*html.Node
}

// Parse reads a full HTML document
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString parses s as a full HTML document
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Root returns the document node
func (d *Document) Root() *html.Node { return d.root }

// Body returns the body element, or the document node if there is none
func (d *Document) Body() *html.Node {
	if n := First(d.root, "body"); n != nil {
		return n
	}
	return d.root
}

// AppendChild attaches child as the last child of parent and records the insertion
func (d *Document) AppendChild(parent, child *html.Node) {
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.AppendChild(child)
	d.record(child)
}

// InsertBefore attaches child before ref under parent. A nil ref appends.
func (d *Document) InsertBefore(parent, child, ref *html.Node) {
	if child.Parent != nil {
		child.Parent.RemoveChild(child)
	}
	parent.InsertBefore(child, ref)
	d.record(child)
}

// InsertHTML parses fragment in the context of parent, appends the resulting
// nodes and returns them
func (d *Document) InsertHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	ctx := parent
	if ctx.Type != html.ElementNode {
		ctx = &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}
	for _, n := range nodes {
		d.AppendChild(parent, n)
	}
	return nodes, nil
}

// Remove detaches n from the tree. Removing a detached node is a no-op.
func (d *Document) Remove(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// IsConnected reports whether n is still reachable from the document root
func (d *Document) IsConnected(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// TakeAdded returns the element nodes inserted since the last call
func (d *Document) TakeAdded() []*html.Node {
	added := d.added
	d.added = nil
	return added
}

func (d *Document) record(n *html.Node) {
	if n.Type == html.ElementNode {
		d.added = append(d.added, n)
	}
}

// HTML renders the whole document
func (d *Document) HTML() string {
	return Render(d.root)
}

// Render serializes n and its subtree
func Render(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// Find returns the descendants of n matching sel, in document order
func Find(n *html.Node, sel string) []*html.Node {
	return goquery.NewDocumentFromNode(n).Find(sel).Nodes
}

// First returns the first descendant of n matching sel, or nil
func First(n *html.Node, sel string) *html.Node {
	s := goquery.NewDocumentFromNode(n).Find(sel).First()
	if s.Length() == 0 {
		return nil
	}
	return s.Get(0)
}

// Match returns n itself (if it matches) followed by its matching descendants
func Match(n *html.Node, sel string) []*html.Node {
	if n == nil || n.Type != html.ElementNode {
		if n != nil && n.Type == html.DocumentNode {
			return Find(n, sel)
		}
		return nil
	}
	s := goquery.NewDocumentFromNode(n)
	out := s.Filter(sel).Nodes
	return append(out, s.Find(sel).Nodes...)
}

// Is reports whether n matches sel
func Is(n *html.Node, sel string) bool {
	return goquery.NewDocumentFromNode(n).Is(sel)
}

// Closest returns the nearest ancestor-or-self of n matching sel, or nil
func Closest(n *html.Node, sel string) *html.Node {
	s := goquery.NewDocumentFromNode(n).Closest(sel)
	if s.Length() == 0 {
		return nil
	}
	return s.Get(0)
}

// Clone deep-copies n into a detached subtree
func Clone(n *html.Node) *html.Node {
	return goquery.NewDocumentFromNode(n).Clone().Get(0)
}

// Attr returns the value of attribute key on n, or ""
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries attribute key
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets attribute key on n
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes attribute key from n
func RemoveAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// SetText replaces the children of n with a single text node
func SetText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}
