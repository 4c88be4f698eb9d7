package sidenotes

import "testing"

func TestBuildReplyForestReconstructsNesting(t *testing.T) {
	replies := []Reply{
		{ReplyID: "r-1", SidenoteID: "s-1", CreatedAtSeconds: 100},
		{ReplyID: "r-2", SidenoteID: "s-1", ParentReplyID: stringPtr("r-1"), CreatedAtSeconds: 200},
		{ReplyID: "r-3", SidenoteID: "s-1", ParentReplyID: stringPtr("r-1"), CreatedAtSeconds: 300},
		{ReplyID: "r-4", SidenoteID: "s-1", ParentReplyID: stringPtr("r-2"), CreatedAtSeconds: 400},
		{ReplyID: "r-5", SidenoteID: "s-1", CreatedAtSeconds: 500},
	}

	forest := BuildReplyForest(replies)
	if len(forest) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(forest))
	}
	if forest[0].ReplyID != "r-1" || forest[1].ReplyID != "r-5" {
		t.Fatalf("unexpected root order: %s, %s", forest[0].ReplyID, forest[1].ReplyID)
	}
	if len(forest[0].Children) != 2 {
		t.Fatalf("expected 2 children under r-1, got %d", len(forest[0].Children))
	}
	if forest[0].Children[0].ReplyID != "r-2" || forest[0].Children[1].ReplyID != "r-3" {
		t.Fatalf("unexpected child order under r-1")
	}
	if len(forest[0].Children[0].Children) != 1 || forest[0].Children[0].Children[0].ReplyID != "r-4" {
		t.Fatalf("expected r-4 nested under r-2")
	}
}

func TestBuildReplyForestTreatsMissingParentAsRoot(t *testing.T) {
	replies := []Reply{
		{ReplyID: "r-1", SidenoteID: "s-1", ParentReplyID: stringPtr("gone"), CreatedAtSeconds: 100},
	}
	forest := BuildReplyForest(replies)
	if len(forest) != 1 || forest[0].ReplyID != "r-1" {
		t.Fatalf("expected orphaned reply to become a root")
	}
}

func TestBuildReplyForestSurvivesParentCycle(t *testing.T) {
	replies := []Reply{
		{ReplyID: "r-1", SidenoteID: "s-1", ParentReplyID: stringPtr("r-2"), CreatedAtSeconds: 100},
		{ReplyID: "r-2", SidenoteID: "s-1", ParentReplyID: stringPtr("r-1"), CreatedAtSeconds: 200},
		{ReplyID: "r-3", SidenoteID: "s-1", CreatedAtSeconds: 300},
	}

	forest := BuildReplyForest(replies)
	flattened := FlattenForest(forest, 0)
	// The earliest cycle member is promoted to a root, so both members stay
	// visible alongside the healthy reply.
	if len(flattened) != 3 {
		t.Fatalf("expected 3 flattened replies, got %d: %#v", len(flattened), flattened)
	}
	depths := make(map[string]int, len(flattened))
	for _, entry := range flattened {
		depths[entry.ReplyID] = entry.Depth
	}
	if depth, present := depths["r-1"]; !present || depth != 0 {
		t.Fatalf("expected r-1 promoted to a root, got depths %#v", depths)
	}
	if depth, present := depths["r-2"]; !present || depth != 1 {
		t.Fatalf("expected r-2 nested under the promoted r-1, got depths %#v", depths)
	}
	if _, present := depths["r-3"]; !present {
		t.Fatalf("expected r-3 in flattened output, got %#v", flattened)
	}
}

func TestBuildReplyForestSelfParentBecomesRoot(t *testing.T) {
	replies := []Reply{
		{ReplyID: "r-1", SidenoteID: "s-1", ParentReplyID: stringPtr("r-1"), CreatedAtSeconds: 100},
	}
	forest := BuildReplyForest(replies)
	if len(forest) != 1 || forest[0].ReplyID != "r-1" {
		t.Fatalf("expected self-parenting reply to become a root")
	}
}

func TestFlattenForestCapsDepth(t *testing.T) {
	replies := make([]Reply, 0, 8)
	var parent *string
	for index := 0; index < 8; index++ {
		id := string(rune('a' + index))
		reply := Reply{ReplyID: id, SidenoteID: "s-1", ParentReplyID: parent, CreatedAtSeconds: int64(100 + index)}
		replies = append(replies, reply)
		parent = stringPtr(id)
	}

	flattened := FlattenForest(BuildReplyForest(replies), 0)
	if len(flattened) != 8 {
		t.Fatalf("expected every reply flattened, got %d", len(flattened))
	}
	for index, entry := range flattened {
		want := index
		if want > ReplyDepthCap {
			want = ReplyDepthCap
		}
		if entry.Depth != want {
			t.Fatalf("expected depth %d at position %d, got %d", want, index, entry.Depth)
		}
	}
}

func TestFlattenForestPreservesPreOrder(t *testing.T) {
	replies := []Reply{
		{ReplyID: "r-1", SidenoteID: "s-1", CreatedAtSeconds: 100},
		{ReplyID: "r-2", SidenoteID: "s-1", ParentReplyID: stringPtr("r-1"), CreatedAtSeconds: 200},
		{ReplyID: "r-3", SidenoteID: "s-1", CreatedAtSeconds: 300},
	}
	flattened := FlattenForest(BuildReplyForest(replies), 3)
	if len(flattened) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(flattened))
	}
	if flattened[0].ReplyID != "r-1" || flattened[1].ReplyID != "r-2" || flattened[2].ReplyID != "r-3" {
		t.Fatalf("unexpected order: %s %s %s", flattened[0].ReplyID, flattened[1].ReplyID, flattened[2].ReplyID)
	}
	if flattened[1].Depth != 1 || flattened[2].Depth != 0 {
		t.Fatalf("unexpected depths")
	}
}
