package highlight

import (
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/dom"
	"golang.org/x/net/html"
)

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

func mustManager(t *testing.T, container *html.Node, painter RangePainter) *Manager {
	t.Helper()
	manager, err := NewManager(ManagerConfig{Container: container, Painter: painter})
	if err != nil {
		t.Fatalf("unexpected manager error: %v", err)
	}
	return manager
}

func markerTexts(container *html.Node, id string) []string {
	var texts []string
	for _, marker := range findMarkers(container, id) {
		texts = append(texts, dom.FlattenText(marker))
	}
	return texts
}

func countTextNodes(container *html.Node) int {
	count := 0
	dom.VisitTextNodes(container, func(*html.Node) bool {
		count++
		return true
	})
	return count
}

// recordingPainter captures painter calls for assertions and keeps the layer
// contents it was asked to render.
type recordingPainter struct {
	layers map[string]map[string]dom.Range
	calls  []string
}

func newRecordingPainter() *recordingPainter {
	return &recordingPainter{layers: make(map[string]map[string]dom.Range)}
}

func (p *recordingPainter) Paint(layer, id string, rng dom.Range) {
	if p.layers[layer] == nil {
		p.layers[layer] = make(map[string]dom.Range)
	}
	p.layers[layer][id] = rng
	p.calls = append(p.calls, fmt.Sprintf("paint %s %s", layer, id))
}

func (p *recordingPainter) Erase(layer, id string) {
	delete(p.layers[layer], id)
	p.calls = append(p.calls, fmt.Sprintf("erase %s %s", layer, id))
}

func (p *recordingPainter) ClearLayer(layer string) {
	delete(p.layers, layer)
	p.calls = append(p.calls, fmt.Sprintf("clear %s", layer))
}

func (p *recordingPainter) layerIDs(layer string) []string {
	var ids []string
	for id := range p.layers[layer] {
		ids = append(ids, id)
	}
	return ids
}
