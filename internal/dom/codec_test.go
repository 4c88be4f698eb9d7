package dom

import (
	"errors"
	"testing"

	"golang.org/x/net/html"
)

func TestOffsetOfCountsPrecedingTextNodes(t *testing.T) {
	container := mustParse(t, "<p>The quick <b>brown</b> fox</p>")
	texts := collectTextNodes(container)
	if len(texts) != 3 {
		t.Fatalf("expected 3 text nodes, got %d", len(texts))
	}

	offset, err := OffsetOf(container, texts[1], 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 12 {
		t.Fatalf("expected offset 12, got %d", offset)
	}
}

func TestOffsetOfRejectsForeignNode(t *testing.T) {
	container := mustParse(t, "<p>hello</p>")
	other := mustParse(t, "<p>world</p>")
	foreign := collectTextNodes(other)[0]

	_, err := OffsetOf(container, foreign, 0)
	if !errors.Is(err, ErrNodeOutsideContainer) {
		t.Fatalf("expected ErrNodeOutsideContainer, got %v", err)
	}
}

func TestOffsetOfSkipsNonRenderingText(t *testing.T) {
	container := mustParse(t, "<p>ab</p><script>var x = 1;</script><p>cd</p>")
	texts := collectTextNodes(container)
	if len(texts) != 2 {
		t.Fatalf("expected script text to be skipped, got %d text nodes", len(texts))
	}

	offset, err := OffsetOf(container, texts[1], 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offset != 3 {
		t.Fatalf("expected offset 3, got %d", offset)
	}
}

func TestLocationOfRoundTripsWithOffsetOf(t *testing.T) {
	container := mustParse(t, "<p>The <em>quick</em> brown</p>")
	flat := FlattenText(container)
	if flat != "The quick brown" {
		t.Fatalf("unexpected flattened text: %q", flat)
	}

	for characterOffset := 0; characterOffset < len([]rune(flat)); characterOffset++ {
		location, ok := LocationOf(container, characterOffset)
		if !ok {
			t.Fatalf("expected location for offset %d", characterOffset)
		}
		back, err := OffsetOf(container, location.Node, location.Offset)
		if err != nil {
			t.Fatalf("unexpected error at offset %d: %v", characterOffset, err)
		}
		if back != characterOffset {
			t.Fatalf("offset %d round-tripped to %d", characterOffset, back)
		}
	}
}

func TestLocationOfClampsPastEnd(t *testing.T) {
	container := mustParse(t, "<p>abc</p>")
	location, ok := LocationOf(container, 99)
	if !ok {
		t.Fatalf("expected clamped location")
	}
	if location.Offset != 3 {
		t.Fatalf("expected offset clamped to 3, got %d", location.Offset)
	}
}

func TestLocationOfEmptyContainer(t *testing.T) {
	container := mustParse(t, "")
	if _, ok := LocationOf(container, 0); ok {
		t.Fatalf("expected no location in an empty container")
	}
}

func TestSplitTextInsertsTailSibling(t *testing.T) {
	container := mustParse(t, "<p>abcdef</p>")
	text := collectTextNodes(container)[0]

	tail := SplitText(text, 2)
	if text.Data != "ab" {
		t.Fatalf("expected head %q, got %q", "ab", text.Data)
	}
	if tail.Data != "cdef" {
		t.Fatalf("expected tail %q, got %q", "cdef", tail.Data)
	}
	if text.NextSibling != tail {
		t.Fatalf("expected tail to follow head")
	}
	if FlattenText(container) != "abcdef" {
		t.Fatalf("split changed flattened text: %q", FlattenText(container))
	}
}

func TestSplitTextBoundaryOffsetsAreNoOps(t *testing.T) {
	container := mustParse(t, "<p>abc</p>")
	text := collectTextNodes(container)[0]

	if got := SplitText(text, 0); got != text {
		t.Fatalf("expected no split at offset 0")
	}
	if got := SplitText(text, 3); got != text {
		t.Fatalf("expected no split at end offset")
	}
	if len(collectTextNodes(container)) != 1 {
		t.Fatalf("boundary split should not create nodes")
	}
}

func TestNormalizeMergesAdjacentTextNodes(t *testing.T) {
	container := mustParse(t, "<p>abcdef</p>")
	paragraph := container.FirstChild
	text := paragraph.FirstChild
	SplitText(text, 2)
	SplitText(text.NextSibling, 2)
	if len(collectTextNodes(container)) != 3 {
		t.Fatalf("expected 3 text nodes after splits")
	}

	Normalize(paragraph)
	texts := collectTextNodes(container)
	if len(texts) != 1 {
		t.Fatalf("expected 1 text node after normalize, got %d", len(texts))
	}
	if texts[0].Data != "abcdef" {
		t.Fatalf("unexpected merged text: %q", texts[0].Data)
	}
}

func TestContainsFollowsParentLinks(t *testing.T) {
	container := mustParse(t, "<p><b>x</b></p>")
	text := collectTextNodes(container)[0]
	if !Contains(container, text) {
		t.Fatalf("expected text node to be contained")
	}
	detached := &html.Node{Type: html.TextNode, Data: "loose"}
	if Contains(container, detached) {
		t.Fatalf("expected detached node not to be contained")
	}
}

func TestTextLengthCountsRunes(t *testing.T) {
	container := mustParse(t, "<p>héllo</p>")
	if got := TextLength(container); got != 5 {
		t.Fatalf("expected 5 characters, got %d", got)
	}
}
