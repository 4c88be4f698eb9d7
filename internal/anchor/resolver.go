package anchor

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/dom"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DefaultLengthTolerance bounds how far the live text length of a directly
// reconstructed range may drift from the stored text length before the
// resolver falls back to context search.
const DefaultLengthTolerance = 10

var (
	// ErrUnresolvable indicates that every resolution strategy was exhausted;
	// the anchor is orphaned for this session but remains intact in the store.
	ErrUnresolvable = errors.New("anchor: range could not be resolved")
)

// ResolverConfig carries the tuning knobs of a Resolver.
type ResolverConfig struct {
	// LengthTolerance overrides DefaultLengthTolerance when positive.
	LengthTolerance int
	Logger          *zap.Logger
}

// Resolver reconstructs concrete ranges from SerializedRange records against
// the current state of a container, cascading from exact offsets through
// context-anchored search to bare-text search.
type Resolver struct {
	lengthTolerance int
	logger          *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	tolerance := cfg.LengthTolerance
	if tolerance <= 0 {
		tolerance = DefaultLengthTolerance
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{lengthTolerance: tolerance, logger: logger}
}

// Resolve turns a SerializedRange back into a concrete range against the
// container's current content. The first successful strategy wins; when all
// strategies fail the anchor is reported unresolvable, never panicked on.
func (r *Resolver) Resolve(container *html.Node, record SerializedRange) (dom.Range, error) {
	if rng, ok := r.resolveByOffsets(container, record); ok {
		return rng, nil
	}
	if rng, ok := r.resolveByContext(container, record); ok {
		r.logger.Debug("anchor resolved by context search",
			zap.String("anchor_id", record.ID))
		return rng, nil
	}
	if rng, ok := r.resolveByText(container, record); ok {
		r.logger.Debug("anchor resolved by bare text search",
			zap.String("anchor_id", record.ID))
		return rng, nil
	}
	r.logger.Warn("anchor is orphaned, all resolution strategies exhausted",
		zap.String("anchor_id", record.ID),
		zap.Int("start_offset", record.StartOffset),
		zap.Int("end_offset", record.EndOffset))
	return dom.Range{}, ErrUnresolvable
}

func (r *Resolver) resolveByOffsets(container *html.Node, record SerializedRange) (dom.Range, bool) {
	rng, ok := rangeBetween(container, record.StartOffset, record.EndOffset)
	if !ok {
		return dom.Range{}, false
	}
	live := rng.Text()
	if strings.TrimSpace(live) == "" {
		return dom.Range{}, false
	}
	if live == record.Text {
		return rng, true
	}
	// Small length drift between the live and stored text is accepted as long
	// as one is a prefix of the other; anything else means the document moved
	// under the offsets and a fallback strategy must decide.
	if !strings.HasPrefix(live, record.Text) && !strings.HasPrefix(record.Text, live) {
		return dom.Range{}, false
	}
	drift := utf8.RuneCountInString(live) - utf8.RuneCountInString(record.Text)
	if drift < 0 {
		drift = -drift
	}
	if drift > r.lengthTolerance {
		return dom.Range{}, false
	}
	return rng, true
}

func (r *Resolver) resolveByContext(container *html.Node, record SerializedRange) (dom.Range, bool) {
	search := record.BeforeContext + record.Text + record.AfterContext
	if search == "" {
		return dom.Range{}, false
	}
	index := runeIndex(dom.FlattenText(container), search)
	if index < 0 {
		return dom.Range{}, false
	}
	start := index + utf8.RuneCountInString(record.BeforeContext)
	end := start + utf8.RuneCountInString(record.Text)
	rng, ok := rangeBetween(container, start, end)
	if !ok || strings.TrimSpace(rng.Text()) == "" {
		return dom.Range{}, false
	}
	return rng, true
}

func (r *Resolver) resolveByText(container *html.Node, record SerializedRange) (dom.Range, bool) {
	if record.Text == "" {
		return dom.Range{}, false
	}
	index := runeIndex(dom.FlattenText(container), record.Text)
	if index < 0 {
		return dom.Range{}, false
	}
	end := index + utf8.RuneCountInString(record.Text)
	rng, ok := rangeBetween(container, index, end)
	if !ok || strings.TrimSpace(rng.Text()) == "" {
		return dom.Range{}, false
	}
	return rng, true
}

func rangeBetween(container *html.Node, startOffset, endOffset int) (dom.Range, bool) {
	start, ok := dom.LocationOf(container, startOffset)
	if !ok {
		return dom.Range{}, false
	}
	end, ok := dom.LocationOf(container, endOffset)
	if !ok {
		return dom.Range{}, false
	}
	return dom.NewRange(start, end), true
}

// runeIndex returns the character index of the first occurrence of needle in
// haystack, or -1 when absent.
func runeIndex(haystack, needle string) int {
	byteIndex := strings.Index(haystack, needle)
	if byteIndex < 0 {
		return -1
	}
	return utf8.RuneCountInString(haystack[:byteIndex])
}
