package highlight

import (
	"errors"
	"fmt"
	"sort"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/dom"
	"golang.org/x/net/html"
)

var (
	// ErrUnknownHighlight indicates an operation against an id the manager is
	// not tracking.
	ErrUnknownHighlight = errors.New("highlight: unknown highlight id")

	errMissingContainer = errors.New("container is required")
)

// renderStrategy is the rendering contract shared by the non-destructive
// painter strategy and the tree-mutating mark strategy.
type renderStrategy interface {
	add(id string, rng dom.Range) error
	remove(id string)
	clear(ids []string)
	focus(previous, next string)
}

// ManagerConfig carries the dependencies of a Manager. When Painter is
// present the manager renders through it without touching the document tree;
// otherwise it falls back to wrapping ranges in marker elements.
type ManagerConfig struct {
	Container *html.Node
	Painter   RangePainter
}

// Manager tracks the set of rendered highlights and the single selected
// highlight, independent of how individual ranges were produced.
type Manager struct {
	container *html.Node
	strategy  renderStrategy
	ranges    map[string]dom.Range
	selected  string
}

// NewManager constructs a Manager, selecting the rendering strategy by
// capability: a supplied painter wins, tree mutation is the fallback.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Container == nil {
		return nil, fmt.Errorf("highlight: new manager: %w", errMissingContainer)
	}
	var strategy renderStrategy
	if cfg.Painter != nil {
		strategy = newPainterStrategy(cfg.Painter)
	} else {
		strategy = newMarkStrategy(cfg.Container)
	}
	return &Manager{
		container: cfg.Container,
		strategy:  strategy,
		ranges:    make(map[string]dom.Range),
	}, nil
}

// AddHighlight renders a highlight for the given range under the given id.
// Re-adding an existing id replaces its previous rendering.
func (m *Manager) AddHighlight(id string, rng dom.Range) error {
	if _, exists := m.ranges[id]; exists {
		m.strategy.remove(id)
	}
	if err := m.strategy.add(id, rng); err != nil {
		return err
	}
	m.ranges[id] = rng
	if m.selected == id {
		m.strategy.focus("", id)
	}
	return nil
}

// RemoveHighlight removes a single highlight. Removing an id that is not
// tracked is a no-op.
func (m *Manager) RemoveHighlight(id string) {
	if _, exists := m.ranges[id]; !exists {
		return
	}
	if m.selected == id {
		m.strategy.focus(id, "")
		m.selected = ""
	}
	m.strategy.remove(id)
	delete(m.ranges, id)
}

// ClearHighlights removes every highlight and the selection.
func (m *Manager) ClearHighlights() {
	if m.selected != "" {
		m.strategy.focus(m.selected, "")
		m.selected = ""
	}
	m.strategy.clear(m.HighlightIDs())
	m.ranges = make(map[string]dom.Range)
}

// SetSelectedHighlight marks one highlight as selected, replacing any previous
// selection. The empty id clears the selection.
func (m *Manager) SetSelectedHighlight(id string) error {
	if id != "" {
		if _, exists := m.ranges[id]; !exists {
			return fmt.Errorf("%w: %s", ErrUnknownHighlight, id)
		}
	}
	if id == m.selected {
		return nil
	}
	m.strategy.focus(m.selected, id)
	m.selected = id
	return nil
}

// SelectedHighlight returns the currently selected highlight id, or the empty
// string when nothing is selected.
func (m *Manager) SelectedHighlight() string {
	return m.selected
}

// HighlightIDs returns the tracked highlight ids in deterministic order.
func (m *Manager) HighlightIDs() []string {
	ids := make([]string, 0, len(m.ranges))
	for id := range m.ranges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RangeOf returns the tracked range for a highlight id.
func (m *Manager) RangeOf(id string) (dom.Range, bool) {
	rng, ok := m.ranges[id]
	return rng, ok
}

// Ranges returns a copy of the tracked id-to-range set.
func (m *Manager) Ranges() map[string]dom.Range {
	copied := make(map[string]dom.Range, len(m.ranges))
	for id, rng := range m.ranges {
		copied[id] = rng
	}
	return copied
}
