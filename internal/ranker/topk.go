package ranker

import (
	"container/heap"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/cranfield-search/internal/corpus"
)

// better reports whether a ranks ahead of b: higher score first, then the
// smaller document id.
func better(a, b ScoredResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return corpus.CompareIDs(a.DocID, b.DocID) < 0
}

// selectTop returns the best limit results in final order. A limit of zero
// or more than len(results) sorts everything.
func selectTop(results []ScoredResult, limit int) []ScoredResult {
	if limit <= 0 || limit >= len(results) {
		sort.Slice(results, func(i, j int) bool { return better(results[i], results[j]) })
		return results
	}
	h := &resultHeap{}
	heap.Init(h)
	for _, r := range results {
		if h.Len() < limit {
			heap.Push(h, r)
			continue
		}
		if better(r, (*h)[0]) {
			(*h)[0] = r
			heap.Fix(h, 0)
		}
	}
	top := make([]ScoredResult, h.Len())
	for i := len(top) - 1; i >= 0; i-- {
		top[i] = heap.Pop(h).(ScoredResult)
	}
	return top
}

// resultHeap is a min-heap on ranking order; the root is the worst kept result.
type resultHeap []ScoredResult

func (h resultHeap) Len() int { return len(h) }

func (h resultHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredResult))
}

func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
