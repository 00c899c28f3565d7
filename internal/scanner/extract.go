package scanner

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ibeckermayer/fauxpost/internal/page"
	"github.com/ibeckermayer/fauxpost/internal/types"
)

var postSelector = strings.Join(PostHeuristics, ", ")

// DiscoverPosts returns the posts at or below root, each once, in document order
func DiscoverPosts(root *html.Node) []*html.Node {
	return page.Match(root, postSelector)
}

// Extract snapshots the visible text and links of post, leaving out anything we injected
func Extract(post *html.Node) types.PostSnapshot {
	content := firstOf(post, ContentBlocks)
	if content == nil {
		content = post
	}

	clone := page.Clone(content)
	for _, n := range page.Match(clone, InjectedUI) {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	text := page.Text(clone)

	var links []string
	for _, a := range page.Find(post, "a[href]") {
		if page.Closest(a, InjectedUI) != nil {
			continue
		}
		if href := page.Attr(a, "href"); href != "" {
			links = append(links, href)
		}
	}

	return types.NewPostSnapshot(text, links)
}

// PostKey returns the activity URN identifying post, if it has one
func PostKey(post *html.Node) string {
	if urn := page.Attr(post, "data-urn"); urn != "" {
		return urn
	}
	if n := page.First(post, "[data-urn]"); n != nil {
		return page.Attr(n, "data-urn")
	}
	return ""
}

func firstOf(n *html.Node, selectors []string) *html.Node {
	for _, sel := range selectors {
		if m := page.First(n, sel); m != nil {
			return m
		}
	}
	return nil
}
