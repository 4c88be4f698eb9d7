package layout

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/dom"
)

var errMissingGeometry = errors.New("geometry is required")

// Geometry is supplied by the rendering surface and reports measured
// positions for the container and for individual ranges. RangeTop returns
// false for ranges the surface cannot measure.
type Geometry interface {
	RangeTop(rng dom.Range) (float64, bool)
	ContainerTop() float64
	ContainerHeight() float64
}

// Calculator computes each anchor's fractional vertical position within its
// container, used purely as a sort key for ordering annotations top to bottom
// in a companion list view.
type Calculator struct {
	geometry Geometry
}

// NewCalculator constructs a Calculator.
func NewCalculator(geometry Geometry) (*Calculator, error) {
	if geometry == nil {
		return nil, fmt.Errorf("layout: new calculator: %w", errMissingGeometry)
	}
	return &Calculator{geometry: geometry}, nil
}

// Positions computes the fractional vertical position of each resolved range.
// Ranges the surface cannot measure contribute no position; a container with
// no measurable height yields no positions at all.
func (c *Calculator) Positions(ranges map[string]dom.Range) map[string]float64 {
	height := c.geometry.ContainerHeight()
	if height <= 0 {
		return map[string]float64{}
	}
	top := c.geometry.ContainerTop()

	positions := make(map[string]float64, len(ranges))
	for id, rng := range ranges {
		rangeTop, ok := c.geometry.RangeTop(rng)
		if !ok {
			continue
		}
		positions[id] = (rangeTop - top) / height
	}
	return positions
}
