package highlight

import (
	"errors"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/sidenotes/backend/internal/dom"
	"golang.org/x/net/html"
)

// Marker attributes used by the fallback strategy.
const (
	markTag           = "mark"
	AttrHighlightID   = "data-sidenote-id"
	AttrHighlightedAs = "data-sidenote-selected"
)

var errDetachedRange = errors.New("highlight: range is detached from container")

// markStrategy renders highlights by wrapping range content in marker
// elements. A single marker spanning a range that crosses element boundaries
// would have to rip nodes out of their parents and produce invalid nesting,
// so instead every covered text node gets its own marker carrying the
// highlight id. Multi-node selections therefore render as several sibling
// markers, and removal restores the original tree exactly.
type markStrategy struct {
	container *html.Node
}

func newMarkStrategy(container *html.Node) *markStrategy {
	return &markStrategy{container: container}
}

type textSegment struct {
	node *html.Node
	from int
	to   int
}

func (s *markStrategy) add(id string, rng dom.Range) error {
	if !rng.AttachedTo(s.container) {
		return errDetachedRange
	}
	segments := coveredSegments(s.container, rng)
	for _, segment := range segments {
		wrapSegment(segment, id)
	}
	return nil
}

func (s *markStrategy) remove(id string) {
	markers := findMarkers(s.container, id)
	for _, marker := range markers {
		unwrapMarker(marker)
	}
}

func (s *markStrategy) clear(ids []string) {
	for _, id := range ids {
		s.remove(id)
	}
}

func (s *markStrategy) focus(previous, next string) {
	if previous != "" {
		for _, marker := range findMarkers(s.container, previous) {
			removeAttr(marker, AttrHighlightedAs)
		}
	}
	if next != "" {
		for _, marker := range findMarkers(s.container, next) {
			setAttr(marker, AttrHighlightedAs, "true")
		}
	}
}

// coveredSegments lists the text-node slices a range covers, in document
// order, against the unmodified tree.
func coveredSegments(container *html.Node, rng dom.Range) []textSegment {
	var segments []textSegment
	collecting := false
	dom.VisitTextNodes(container, func(node *html.Node) bool {
		length := utf8.RuneCountInString(node.Data)
		from := 0
		to := length
		if node == rng.Start.Node {
			collecting = true
			from = rng.Start.Offset
		}
		if !collecting {
			return true
		}
		last := node == rng.End.Node
		if last {
			to = rng.End.Offset
		}
		if from < to {
			segments = append(segments, textSegment{node: node, from: from, to: to})
		}
		return !last
	})
	return segments
}

// wrapSegment splits the segment's text node at its boundaries and replaces
// the covered slice with a marker element containing it.
func wrapSegment(segment textSegment, id string) {
	node := segment.node
	dom.SplitText(node, segment.to)
	target := dom.SplitText(node, segment.from)

	parent := target.Parent
	if parent == nil {
		return
	}
	marker := &html.Node{
		Type: html.ElementNode,
		Data: markTag,
		Attr: []html.Attribute{{Key: AttrHighlightID, Val: id}},
	}
	parent.InsertBefore(marker, target)
	parent.RemoveChild(target)
	marker.AppendChild(target)
}

// unwrapMarker replaces a marker element with its text content and merges the
// resulting adjacent text nodes.
func unwrapMarker(marker *html.Node) {
	parent := marker.Parent
	if parent == nil {
		return
	}
	for marker.FirstChild != nil {
		child := marker.FirstChild
		marker.RemoveChild(child)
		parent.InsertBefore(child, marker)
	}
	parent.RemoveChild(marker)
	dom.Normalize(parent)
}

func findMarkers(container *html.Node, id string) []*html.Node {
	var markers []*html.Node
	walk(container, func(node *html.Node) bool {
		if node.Type == html.ElementNode && node.Data == markTag && attrValue(node, AttrHighlightID) == id {
			markers = append(markers, node)
		}
		return true
	})
	return markers
}

func walk(node *html.Node, visit func(*html.Node) bool) bool {
	if !visit(node) {
		return false
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if !walk(child, visit) {
			return false
		}
	}
	return true
}

func attrValue(node *html.Node, key string) string {
	for _, attr := range node.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func setAttr(node *html.Node, key, value string) {
	for index, attr := range node.Attr {
		if attr.Key == key {
			node.Attr[index].Val = value
			return
		}
	}
	node.Attr = append(node.Attr, html.Attribute{Key: key, Val: value})
}

func removeAttr(node *html.Node, key string) {
	for index, attr := range node.Attr {
		if attr.Key == key {
			node.Attr = append(node.Attr[:index], node.Attr[index+1:]...)
			return
		}
	}
}
