package anchor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/dom"
	"golang.org/x/net/html"
)

var (
	// ErrCollapsedSelection indicates a selection that spans no characters.
	ErrCollapsedSelection = errors.New("anchor: selection is collapsed")
	// ErrSelectionOutsideContainer indicates a selection whose endpoints are
	// not inside the supplied container.
	ErrSelectionOutsideContainer = errors.New("anchor: selection is outside container")
	// ErrSelectionTooShort indicates a selection below the minimum anchorable length.
	ErrSelectionTooShort = errors.New("anchor: selection is too short to anchor")

	errMissingIDProvider = errors.New("id provider is required")
)

// IDProvider issues fresh anchor identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// SerializerConfig carries the dependencies of a Serializer.
type SerializerConfig struct {
	IDProvider IDProvider
}

// Serializer captures user selections into portable SerializedRange records.
type Serializer struct {
	idProvider IDProvider
}

// NewSerializer constructs a Serializer.
func NewSerializer(cfg SerializerConfig) (*Serializer, error) {
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("anchor: new serializer: %w", errMissingIDProvider)
	}
	return &Serializer{idProvider: cfg.IDProvider}, nil
}

// Serialize converts a live selection range inside container into a
// SerializedRange, capturing surrounding context for later fallback
// resolution. A selection that is collapsed, lies outside the container, or
// trims to fewer than the minimum anchorable characters is rejected.
func (s *Serializer) Serialize(container *html.Node, rng dom.Range, containerSelector string) (SerializedRange, error) {
	if !rng.AttachedTo(container) {
		return SerializedRange{}, ErrSelectionOutsideContainer
	}
	if rng.IsCollapsed() {
		return SerializedRange{}, ErrCollapsedSelection
	}

	selected := rng.Text()
	if len([]rune(strings.TrimSpace(selected))) < dom.MinAnchorLength {
		return SerializedRange{}, ErrSelectionTooShort
	}

	startOffset, err := dom.OffsetOf(container, rng.Start.Node, rng.Start.Offset)
	if err != nil {
		return SerializedRange{}, ErrSelectionOutsideContainer
	}
	endOffset, err := dom.OffsetOf(container, rng.End.Node, rng.End.Offset)
	if err != nil {
		return SerializedRange{}, ErrSelectionOutsideContainer
	}
	if startOffset >= endOffset {
		return SerializedRange{}, ErrCollapsedSelection
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return SerializedRange{}, fmt.Errorf("anchor: serialize: %w", err)
	}

	flat := []rune(dom.FlattenText(container))
	before := flat[maxInt(0, startOffset-ContextWindow):startOffset]
	after := flat[endOffset:minInt(len(flat), endOffset+ContextWindow)]

	return SerializedRange{
		ID:                id,
		Text:              selected,
		StartOffset:       startOffset,
		EndOffset:         endOffset,
		BeforeContext:     string(before),
		AfterContext:      string(after),
		ContainerSelector: containerSelector,
	}, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
