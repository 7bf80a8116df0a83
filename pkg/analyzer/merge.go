package analyzer

import (
	"container/heap"

	"github.com/maxgio92/funclat/pkg/action"
)

// cursor walks one ordered action list.
type cursor struct {
	actions []action.Action
	pos     int
	// index orders sources with equal timestamps.
	index int
}

func (c *cursor) head() *action.Action {
	return &c.actions[c.pos]
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	a, b := h[i].head().TS, h[j].head().TS
	if a != b {
		return a < b
	}
	return h[i].index < h[j].index
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x any) { *h = append(*h, x.(*cursor)) }

func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// Merge interleaves the action sets of one thread, decoded by different
// parse jobs, into a single list ordered by timestamp. Sets are given in
// source order: on equal timestamps, actions of an earlier set come first,
// and normal actions of a set come before its errors. Consecutive data
// loss markers collapse into one.
func Merge(sets []*action.ActionSet) []action.Action {
	h := make(cursorHeap, 0, 2*len(sets))
	total := 0
	for i, set := range sets {
		if set == nil {
			continue
		}
		total += set.Len()
		if len(set.Actions) > 0 {
			h = append(h, &cursor{actions: set.Actions, index: 2 * i})
		}
		if len(set.Errors) > 0 {
			h = append(h, &cursor{actions: set.Errors, index: 2*i + 1})
		}
	}
	heap.Init(&h)

	merged := make([]action.Action, 0, total)
	for h.Len() > 0 {
		c := h[0]
		a := c.head()
		if !a.IsError || len(merged) == 0 || !merged[len(merged)-1].IsError {
			merged = append(merged, *a)
		}
		c.pos++
		if c.pos == len(c.actions) {
			heap.Pop(&h)
			continue
		}
		heap.Fix(&h, 0)
	}

	return merged
}
