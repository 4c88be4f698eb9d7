package dom

import (
	"testing"

	"golang.org/x/net/html"
)

func mustParse(t *testing.T, markup string) *html.Node {
	t.Helper()
	container, err := ParseFragment(markup)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return container
}

func collectTextNodes(container *html.Node) []*html.Node {
	var texts []*html.Node
	VisitTextNodes(container, func(text *html.Node) bool {
		texts = append(texts, text)
		return true
	})
	return texts
}

func mustLocation(t *testing.T, container *html.Node, characterOffset int) Location {
	t.Helper()
	location, ok := LocationOf(container, characterOffset)
	if !ok {
		t.Fatalf("no location for offset %d", characterOffset)
	}
	return location
}
