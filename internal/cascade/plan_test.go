package cascade

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marginalia/api/internal/store"
)

func edge(id int64, parent ...int64) store.CommentEdge {
	e := store.CommentEdge{ID: id}
	if len(parent) > 0 {
		p := parent[0]
		e.ParentID = &p
	}
	return e
}

func TestPlanLeafOrderChain(t *testing.T) {
	// 1 <- 2 <- 3, plus a lone root 4
	plan := PlanLeafOrder([]store.CommentEdge{edge(1), edge(2, 1), edge(3, 2), edge(4)}, 100)
	require.False(t, plan.Forced())
	require.Equal(t, [][]int64{{3, 4}, {2}, {1}}, plan.Batches)
}

func TestPlanLeafOrderEmpty(t *testing.T) {
	plan := PlanLeafOrder(nil, 100)
	require.Empty(t, plan.Batches)
	require.False(t, plan.Forced())
}

func TestPlanLeafOrderParentsOutsideSetAreIgnored(t *testing.T) {
	plan := PlanLeafOrder([]store.CommentEdge{edge(5, 99), edge(6, 5)}, 100)
	require.Equal(t, [][]int64{{6}, {5}}, plan.Batches)
}

func TestPlanLeafOrderCycleForcesRemainder(t *testing.T) {
	// 1 is a clean leaf; 2 and 3 point at each other.
	plan := PlanLeafOrder([]store.CommentEdge{edge(1), edge(2, 3), edge(3, 2)}, 100)
	require.True(t, plan.Cyclic)
	require.False(t, plan.Capped)
	require.Equal(t, [][]int64{{1}, {2, 3}}, plan.Batches)
}

func TestPlanLeafOrderCapForcesRemainder(t *testing.T) {
	var edges []store.CommentEdge
	edges = append(edges, edge(1))
	for id := int64(2); id <= 10; id++ {
		edges = append(edges, edge(id, id-1))
	}
	plan := PlanLeafOrder(edges, 3)
	require.True(t, plan.Capped)
	require.Len(t, plan.Batches, 4)
	require.Equal(t, []int64{10}, plan.Batches[0])
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, plan.Batches[3])
}

func TestPlanLeafOrderDeletesEveryCandidateOnce(t *testing.T) {
	for depth := 1; depth <= 12; depth++ {
		var edges []store.CommentEdge
		next := int64(1)
		for tree := 0; tree < 3; tree++ {
			root := next
			edges = append(edges, edge(root))
			next++
			prev := root
			for d := 1; d < depth; d++ {
				edges = append(edges, edge(next, prev))
				prev = next
				next++
			}
		}
		plan := PlanLeafOrder(edges, 100)
		require.False(t, plan.Forced())
		require.Len(t, plan.Batches, depth)

		seen := map[int64]int{}
		for _, b := range plan.Batches {
			for _, id := range b {
				seen[id]++
			}
		}
		require.Len(t, seen, len(edges))
		for id, n := range seen {
			require.Equal(t, 1, n, "comment %d scheduled %d times", id, n)
		}
	}
}
