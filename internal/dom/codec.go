package dom

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var (
	// ErrNodeOutsideContainer indicates that a node handed to OffsetOf is not a
	// text-bearing descendant of the container.
	ErrNodeOutsideContainer = errors.New("dom: node is not a text descendant of container")
)

// Location identifies a position inside a specific text node.
type Location struct {
	Node   *html.Node
	Offset int
}

// OffsetOf converts a (node, in-node offset) pair into a character offset in
// the container's flattened text. The node must be a text node reachable from
// the container through rendering elements only.
func OffsetOf(container, node *html.Node, nodeOffset int) (int, error) {
	total := 0
	found := false
	walkTextNodes(container, func(text *html.Node) bool {
		if text == node {
			found = true
			return false
		}
		total += utf8.RuneCountInString(text.Data)
		return true
	})
	if !found {
		return 0, fmt.Errorf("%w", ErrNodeOutsideContainer)
	}
	return total + nodeOffset, nil
}

// LocationOf converts a character offset in the container's flattened text
// into the text node whose span contains it. Offsets past the end of the
// content clamp to the end of the last text node rather than failing; the
// second return value is false only when the container holds no text at all.
func LocationOf(container *html.Node, characterOffset int) (Location, bool) {
	if characterOffset < 0 {
		characterOffset = 0
	}
	var location Location
	var last *html.Node
	lastLength := 0
	found := false
	consumed := 0
	walkTextNodes(container, func(text *html.Node) bool {
		length := utf8.RuneCountInString(text.Data)
		last = text
		lastLength = length
		if characterOffset < consumed+length {
			location = Location{Node: text, Offset: characterOffset - consumed}
			found = true
			return false
		}
		consumed += length
		return true
	})
	if found {
		return location, true
	}
	if last == nil {
		return Location{}, false
	}
	return Location{Node: last, Offset: lastLength}, true
}
