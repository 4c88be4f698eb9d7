package anchor

import (
	"errors"
	"testing"
)

func TestResolveByDirectOffsetsOnUnchangedDocument(t *testing.T) {
	container := mustParse(t, "<p>The quick brown fox jumps.</p>")
	serializer := mustSerializer(t, "anchor-1")
	record, err := serializer.Serialize(container, mustRange(t, container, 4, 15), "body")
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	resolver := NewResolver(ResolverConfig{})
	rng, err := resolver.Resolve(container, record)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if got := rng.Text(); got != "quick brown" {
		t.Fatalf("expected %q, got %q", "quick brown", got)
	}
}

func TestResolveFallsBackToContextAfterPrefixInsertion(t *testing.T) {
	container := mustParse(t, "<p>The quick brown fox jumps.</p>")
	serializer := mustSerializer(t, "anchor-1")
	record, err := serializer.Serialize(container, mustRange(t, container, 4, 15), "body")
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	changed := mustParse(t, "<p>Preface. The quick brown fox jumps.</p>")
	resolver := NewResolver(ResolverConfig{})
	rng, err := resolver.Resolve(changed, record)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if got := rng.Text(); got != "quick brown" {
		t.Fatalf("expected context search to recover %q, got %q", "quick brown", got)
	}
}

func TestResolveFallsBackToBareTextWhenContextChanged(t *testing.T) {
	container := mustParse(t, "<p>The quick brown fox jumps.</p>")
	serializer := mustSerializer(t, "anchor-1")
	record, err := serializer.Serialize(container, mustRange(t, container, 4, 15), "body")
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	changed := mustParse(t, "<p>A very quick brown dog runs.</p>")
	resolver := NewResolver(ResolverConfig{})
	rng, err := resolver.Resolve(changed, record)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	if got := rng.Text(); got != "quick brown" {
		t.Fatalf("expected bare text search to recover %q, got %q", "quick brown", got)
	}
}

func TestResolveReportsOrphanWhenTextGone(t *testing.T) {
	container := mustParse(t, "<p>The quick brown fox jumps.</p>")
	serializer := mustSerializer(t, "anchor-1")
	record, err := serializer.Serialize(container, mustRange(t, container, 4, 15), "body")
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	changed := mustParse(t, "<p>Entirely different content.</p>")
	resolver := NewResolver(ResolverConfig{})
	if _, err := resolver.Resolve(changed, record); !errors.Is(err, ErrUnresolvable) {
		t.Fatalf("expected ErrUnresolvable, got %v", err)
	}
}

func TestResolveDirectOffsetsTolerateSmallLengthDrift(t *testing.T) {
	record := SerializedRange{
		ID:          "anchor-1",
		Text:        "quick brown",
		StartOffset: 4,
		EndOffset:   18,
	}
	container := mustParse(t, "<p>The quick brown fox jumps.</p>")

	resolver := NewResolver(ResolverConfig{})
	rng, err := resolver.Resolve(container, record)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	// The offsets cover three extra characters, inside the tolerance, so the
	// direct strategy keeps the wider range.
	if got := rng.Text(); got != "quick brown fo" {
		t.Fatalf("unexpected resolved text: %q", got)
	}
}

func TestResolveDirectOffsetsRejectDriftBeyondTolerance(t *testing.T) {
	record := SerializedRange{
		ID:            "anchor-1",
		Text:          "quick",
		StartOffset:   4,
		EndOffset:     21,
		BeforeContext: "The ",
		AfterContext:  " brown fox jumps.",
	}
	container := mustParse(t, "<p>The quick brown fox jumps.</p>")

	resolver := NewResolver(ResolverConfig{LengthTolerance: 2})
	rng, err := resolver.Resolve(container, record)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	// Offsets 4..21 cover twelve extra characters, beyond the tolerance of
	// two, so the context strategy supplies the answer.
	if got := rng.Text(); got != "quick" {
		t.Fatalf("expected %q, got %q", "quick", got)
	}
}

func TestResolveBareTextMatchesFirstOccurrence(t *testing.T) {
	record := SerializedRange{
		ID:            "anchor-1",
		Text:          "fox",
		StartOffset:   90,
		EndOffset:     93,
		BeforeContext: "vanished ",
		AfterContext:  " vanished",
	}
	container := mustParse(t, "<p>One fox and another fox.</p>")

	resolver := NewResolver(ResolverConfig{})
	rng, err := resolver.Resolve(container, record)
	if err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
	start, err2 := offsetOfRangeStart(container, rng)
	if err2 != nil {
		t.Fatalf("unexpected offset error: %v", err2)
	}
	if start != 4 {
		t.Fatalf("expected first occurrence at offset 4, got %d", start)
	}
}
