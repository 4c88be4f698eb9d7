package sidenotes

import "sort"

// ReplyDepthCap bounds the nesting depth used for presentation. Deeper
// replies are still stored and returned, but flatten at the cap.
const ReplyDepthCap = 5

// BuildReplyForest turns a flat reply list for one sidenote into a
// parent/child forest. Each reply attaches as a child of its parent when the
// parent exists in the same set, otherwise it becomes a root. Members of a
// malformed parent cycle never reach a root through their parent links; the
// earliest such member is detached from its parent and promoted to a root so
// the cycle stays visible instead of vanishing. Order within a level follows
// ascending creation time.
func BuildReplyForest(replies []Reply) []*ReplyNode {
	sorted := make([]Reply, len(replies))
	copy(sorted, replies)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAtSeconds != sorted[j].CreatedAtSeconds {
			return sorted[i].CreatedAtSeconds < sorted[j].CreatedAtSeconds
		}
		return sorted[i].ReplyID < sorted[j].ReplyID
	})

	index := make(map[string]*ReplyNode, len(sorted))
	nodes := make([]*ReplyNode, 0, len(sorted))
	for _, reply := range sorted {
		node := &ReplyNode{Reply: reply}
		index[reply.ReplyID] = node
		nodes = append(nodes, node)
	}

	var roots []*ReplyNode
	for _, node := range nodes {
		parentID := node.ParentReplyID
		if parentID == nil || *parentID == node.ReplyID {
			roots = append(roots, node)
			continue
		}
		parent, exists := index[*parentID]
		if !exists {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	reachable := make(map[string]struct{}, len(nodes))
	var mark func(node *ReplyNode)
	mark = func(node *ReplyNode) {
		if _, seen := reachable[node.ReplyID]; seen {
			return
		}
		reachable[node.ReplyID] = struct{}{}
		for _, child := range node.Children {
			mark(child)
		}
	}
	for _, root := range roots {
		mark(root)
	}
	for _, node := range nodes {
		if _, seen := reachable[node.ReplyID]; seen {
			continue
		}
		if parent, exists := index[*node.ParentReplyID]; exists {
			parent.Children = detachChild(parent.Children, node)
		}
		roots = append(roots, node)
		mark(node)
	}
	return roots
}

func detachChild(children []*ReplyNode, child *ReplyNode) []*ReplyNode {
	for position, candidate := range children {
		if candidate == child {
			return append(children[:position], children[position+1:]...)
		}
	}
	return children
}

// FlattenForest walks a reply forest in pre-order and returns every reachable
// reply with its presentation depth, capped at depthCap. A non-positive
// depthCap falls back to ReplyDepthCap.
func FlattenForest(forest []*ReplyNode, depthCap int) []FlattenedReply {
	if depthCap <= 0 {
		depthCap = ReplyDepthCap
	}
	var flattened []FlattenedReply
	visited := make(map[string]struct{})
	var walk func(node *ReplyNode, depth int)
	walk = func(node *ReplyNode, depth int) {
		if _, seen := visited[node.ReplyID]; seen {
			return
		}
		visited[node.ReplyID] = struct{}{}
		capped := depth
		if capped > depthCap {
			capped = depthCap
		}
		flattened = append(flattened, FlattenedReply{
			Reply:      node.Reply,
			Depth:      capped,
			Tally:      node.Tally,
			ViewerVote: node.ViewerVote,
		})
		for _, child := range node.Children {
			walk(child, depth+1)
		}
	}
	for _, root := range forest {
		walk(root, 0)
	}
	return flattened
}
