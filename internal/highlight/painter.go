package highlight

import "github.com/MarcoPoloResearchLab/sidenotes/backend/internal/dom"

// Rendering layer names used with a RangePainter. The highlights layer holds
// every active highlight; the selected layer mirrors at most one of them for
// distinct visual treatment.
const (
	LayerHighlights = "sidenote-highlights"
	LayerSelected   = "sidenote-selected"
)

// RangePainter is the non-destructive range-highlighting primitive: named
// sets of ranges registered against a shared rendering layer, with the
// document tree never mutated.
type RangePainter interface {
	Paint(layer, id string, rng dom.Range)
	Erase(layer, id string)
	ClearLayer(layer string)
}

type painterStrategy struct {
	painter RangePainter
	ranges  map[string]dom.Range
}

func newPainterStrategy(painter RangePainter) *painterStrategy {
	return &painterStrategy{
		painter: painter,
		ranges:  make(map[string]dom.Range),
	}
}

func (s *painterStrategy) add(id string, rng dom.Range) error {
	s.painter.Paint(LayerHighlights, id, rng)
	s.ranges[id] = rng
	return nil
}

func (s *painterStrategy) remove(id string) {
	s.painter.Erase(LayerHighlights, id)
	delete(s.ranges, id)
}

func (s *painterStrategy) clear(ids []string) {
	s.painter.ClearLayer(LayerHighlights)
	s.painter.ClearLayer(LayerSelected)
	s.ranges = make(map[string]dom.Range)
}

func (s *painterStrategy) focus(previous, next string) {
	s.painter.ClearLayer(LayerSelected)
	if next == "" {
		return
	}
	if rng, ok := s.ranges[next]; ok {
		s.painter.Paint(LayerSelected, next, rng)
	}
}
