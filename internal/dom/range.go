package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Range is a concrete span between two locations in a container's text nodes.
type Range struct {
	Start Location
	End   Location
}

// NewRange constructs a range between two locations.
func NewRange(start, end Location) Range {
	return Range{Start: start, End: end}
}

// IsCollapsed reports whether the range spans no characters.
func (r Range) IsCollapsed() bool {
	if r.Start.Node == nil || r.End.Node == nil {
		return true
	}
	if r.Start.Node == r.End.Node && r.Start.Offset == r.End.Offset {
		return true
	}
	return r.Text() == ""
}

// AttachedTo reports whether both endpoints are still descendants of container.
func (r Range) AttachedTo(container *html.Node) bool {
	if r.Start.Node == nil || r.End.Node == nil {
		return false
	}
	return Contains(container, r.Start.Node) && Contains(container, r.End.Node)
}

// Text returns the live text between the range's endpoints, walking the text
// nodes they belong to in document order. An inverted or detached range yields
// the empty string.
func (r Range) Text() string {
	if r.Start.Node == nil || r.End.Node == nil {
		return ""
	}
	root := commonRoot(r.Start.Node, r.End.Node)
	if root == nil {
		return ""
	}

	var builder strings.Builder
	collecting := false
	walkTextNodes(root, func(text *html.Node) bool {
		runes := []rune(text.Data)
		from := 0
		to := len(runes)
		if text == r.Start.Node {
			collecting = true
			from = clampOffset(r.Start.Offset, len(runes))
		}
		if !collecting {
			return true
		}
		if text == r.End.Node {
			to = clampOffset(r.End.Offset, len(runes))
			if from < to {
				builder.WriteString(string(runes[from:to]))
			}
			return false
		}
		if from < to {
			builder.WriteString(string(runes[from:to]))
		}
		return true
	})
	return builder.String()
}

// MinAnchorLength is the smallest trimmed selection considered meaningful for
// anchoring; shorter spans are rejected at capture and at resolution.
const MinAnchorLength = 3

// ValidWithin reports whether the range is usable as an anchor inside
// container: attached at both ends, not collapsed, and carrying at least
// MinAnchorLength trimmed characters of live text.
func (r Range) ValidWithin(container *html.Node) bool {
	if !r.AttachedTo(container) {
		return false
	}
	text := r.Text()
	if text == "" {
		return false
	}
	return len([]rune(strings.TrimSpace(text))) >= MinAnchorLength
}

func clampOffset(offset, length int) int {
	if offset < 0 {
		return 0
	}
	if offset > length {
		return length
	}
	return offset
}

func commonRoot(a, b *html.Node) *html.Node {
	ancestors := map[*html.Node]struct{}{}
	for current := a; current != nil; current = current.Parent {
		ancestors[current] = struct{}{}
	}
	for current := b; current != nil; current = current.Parent {
		if _, ok := ancestors[current]; ok {
			return current
		}
	}
	return nil
}
