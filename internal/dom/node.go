package dom

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

var (
	// ErrNoDocumentBody indicates that parsed markup produced no body element.
	ErrNoDocumentBody = errors.New("dom: markup has no body element")
)

// nonRenderingTags lists elements whose text content never contributes to the
// visible flattened text of a container.
var nonRenderingTags = map[string]struct{}{
	"script":   {},
	"style":    {},
	"template": {},
	"noscript": {},
}

func isNonRendering(node *html.Node) bool {
	if node == nil || node.Type != html.ElementNode {
		return false
	}
	_, skipped := nonRenderingTags[node.Data]
	return skipped
}

// ParseFragment parses an HTML fragment and returns its body element, which
// serves as the container for codec and anchoring operations.
func ParseFragment(markup string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	body := findElement(doc, "body")
	if body == nil {
		return nil, ErrNoDocumentBody
	}
	return body, nil
}

func findElement(node *html.Node, tag string) *html.Node {
	if node.Type == html.ElementNode && node.Data == tag {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// walkTextNodes visits every text node under container in document order,
// skipping non-rendering subtrees. Traversal stops when visit returns false.
func walkTextNodes(container *html.Node, visit func(*html.Node) bool) {
	var walk func(*html.Node) bool
	walk = func(node *html.Node) bool {
		if isNonRendering(node) {
			return true
		}
		if node.Type == html.TextNode {
			return visit(node)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if !walk(child) {
				return false
			}
		}
		return true
	}
	walk(container)
}

// VisitTextNodes exposes the document-order text-node traversal to callers
// outside the package; non-rendering subtrees are skipped and traversal stops
// when visit returns false.
func VisitTextNodes(container *html.Node, visit func(*html.Node) bool) {
	walkTextNodes(container, visit)
}

// FlattenText returns the concatenated text content of the container's
// text-bearing descendants in document order.
func FlattenText(container *html.Node) string {
	var builder strings.Builder
	walkTextNodes(container, func(text *html.Node) bool {
		builder.WriteString(text.Data)
		return true
	})
	return builder.String()
}

// TextLength returns the number of characters in the container's flattened text.
func TextLength(container *html.Node) int {
	total := 0
	walkTextNodes(container, func(text *html.Node) bool {
		total += utf8.RuneCountInString(text.Data)
		return true
	})
	return total
}

// Contains reports whether node is the container itself or one of its
// descendants, by walking parent links.
func Contains(container, node *html.Node) bool {
	for current := node; current != nil; current = current.Parent {
		if current == container {
			return true
		}
	}
	return false
}

// SplitText splits a text node at the given character offset, inserting the
// tail as a new sibling immediately after the original node. The original node
// keeps the head. The tail node is returned; when the offset falls on either
// boundary no split occurs and the relevant node is returned unchanged.
func SplitText(text *html.Node, offset int) *html.Node {
	runes := []rune(text.Data)
	if offset <= 0 {
		return text
	}
	if offset >= len(runes) {
		return text
	}
	tail := &html.Node{
		Type: html.TextNode,
		Data: string(runes[offset:]),
	}
	text.Data = string(runes[:offset])
	text.Parent.InsertBefore(tail, text.NextSibling)
	return tail
}

// Normalize merges adjacent text-node siblings under parent and removes empty
// text nodes, mirroring the DOM normalize operation for one level.
func Normalize(parent *html.Node) {
	child := parent.FirstChild
	for child != nil {
		next := child.NextSibling
		if child.Type == html.TextNode {
			if child.Data == "" {
				parent.RemoveChild(child)
			} else if next != nil && next.Type == html.TextNode {
				child.Data += next.Data
				parent.RemoveChild(next)
				continue
			}
		}
		child = next
	}
}
