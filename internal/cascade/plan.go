package cascade

import (
	"sort"

	"marginalia/api/internal/store"
)

// Plan is the leaf-first deletion order for a candidate comment set.
type Plan struct {
	Batches [][]int64
	// Cyclic is set when a round found candidates but no leaf among them.
	Cyclic bool
	// Capped is set when the iteration cap was hit before the set emptied.
	Capped bool
}

func (p Plan) Forced() bool {
	return p.Cyclic || p.Capped
}

// PlanLeafOrder peels leaves off the comment forest: each round deletes the
// candidates no remaining candidate points at as its parent. A round without
// leaves, or reaching maxIterations, schedules everything left as one final
// batch so the loop always terminates.
func PlanLeafOrder(edges []store.CommentEdge, maxIterations int) Plan {
	var plan Plan
	remaining := make(map[int64]*int64, len(edges))
	for _, e := range edges {
		remaining[e.ID] = e.ParentID
	}

	for len(remaining) > 0 {
		if len(plan.Batches) >= maxIterations {
			plan.Capped = true
			plan.Batches = append(plan.Batches, sortedKeys(remaining))
			break
		}

		parents := make(map[int64]bool, len(remaining))
		for _, parent := range remaining {
			if parent == nil {
				continue
			}
			if _, ok := remaining[*parent]; ok {
				parents[*parent] = true
			}
		}

		var leaves []int64
		for id := range remaining {
			if !parents[id] {
				leaves = append(leaves, id)
			}
		}
		if len(leaves) == 0 {
			plan.Cyclic = true
			plan.Batches = append(plan.Batches, sortedKeys(remaining))
			break
		}

		sort.Slice(leaves, func(i, j int) bool { return leaves[i] < leaves[j] })
		for _, id := range leaves {
			delete(remaining, id)
		}
		plan.Batches = append(plan.Batches, leaves)
	}
	return plan
}

func sortedKeys(m map[int64]*int64) []int64 {
	out := make([]int64, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
