package dom

import "testing"

func TestRangeTextSpansElements(t *testing.T) {
	container := mustParse(t, "<p>The <em>quick</em> brown fox</p>")
	rng := NewRange(mustLocation(t, container, 4), mustLocation(t, container, 15))
	if got := rng.Text(); got != "quick brown" {
		t.Fatalf("expected %q, got %q", "quick brown", got)
	}
}

func TestRangeTextWithinSingleNode(t *testing.T) {
	container := mustParse(t, "<p>hello world</p>")
	rng := NewRange(mustLocation(t, container, 6), mustLocation(t, container, 11))
	if got := rng.Text(); got != "world" {
		t.Fatalf("expected %q, got %q", "world", got)
	}
}

func TestRangeIsCollapsed(t *testing.T) {
	container := mustParse(t, "<p>hello</p>")
	point := mustLocation(t, container, 2)
	if !NewRange(point, point).IsCollapsed() {
		t.Fatalf("expected same-point range to be collapsed")
	}
	if (Range{}).IsCollapsed() == false {
		t.Fatalf("expected zero range to be collapsed")
	}
	rng := NewRange(mustLocation(t, container, 1), mustLocation(t, container, 3))
	if rng.IsCollapsed() {
		t.Fatalf("expected non-empty range not to be collapsed")
	}
}

func TestRangeAttachedTo(t *testing.T) {
	container := mustParse(t, "<p>hello</p>")
	other := mustParse(t, "<p>elsewhere</p>")
	rng := NewRange(mustLocation(t, container, 0), mustLocation(t, container, 5))
	if !rng.AttachedTo(container) {
		t.Fatalf("expected range to be attached to its own container")
	}
	if rng.AttachedTo(other) {
		t.Fatalf("expected range not to be attached to a foreign container")
	}
}

func TestRangeValidWithin(t *testing.T) {
	container := mustParse(t, "<p>The quick brown fox</p>")
	valid := NewRange(mustLocation(t, container, 4), mustLocation(t, container, 9))
	if !valid.ValidWithin(container) {
		t.Fatalf("expected range to be valid")
	}

	short := NewRange(mustLocation(t, container, 3), mustLocation(t, container, 5))
	if short.ValidWithin(container) {
		t.Fatalf("expected sub-minimum trimmed selection to be invalid")
	}

	point := mustLocation(t, container, 4)
	if NewRange(point, point).ValidWithin(container) {
		t.Fatalf("expected collapsed range to be invalid")
	}
}
