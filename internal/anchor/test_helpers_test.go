package anchor

import (
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/dom"
	"golang.org/x/net/html"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

func mustParse(t *testing.T, markup string) *html.Node {
	t.Helper()
	container, err := dom.ParseFragment(markup)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return container
}

func mustRange(t *testing.T, container *html.Node, startOffset, endOffset int) dom.Range {
	t.Helper()
	start, ok := dom.LocationOf(container, startOffset)
	if !ok {
		t.Fatalf("no location for start offset %d", startOffset)
	}
	end, ok := dom.LocationOf(container, endOffset)
	if !ok {
		t.Fatalf("no location for end offset %d", endOffset)
	}
	return dom.NewRange(start, end)
}

func offsetOfRangeStart(container *html.Node, rng dom.Range) (int, error) {
	return dom.OffsetOf(container, rng.Start.Node, rng.Start.Offset)
}

func mustSerializer(t *testing.T, ids ...string) *Serializer {
	t.Helper()
	serializer, err := NewSerializer(SerializerConfig{IDProvider: &staticIDGenerator{ids: ids}})
	if err != nil {
		t.Fatalf("unexpected serializer error: %v", err)
	}
	return serializer
}
