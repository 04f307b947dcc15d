package pit

import "container/heap"

// expiryHeap is a min-heap of *Entry ordered by Expiry tick, implementing
// container/heap.Interface. Each Entry tracks its own heapIndex so fix/
// remove can operate in O(log n) without a linear search, mirroring the
// content store's expiry heap (internal/cstore).
type expiryHeap []*Entry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].Expiry < h[j].Expiry }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *expiryHeap) Push(x any) {
	e := x.(*Entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

func (h *expiryHeap) push(e *Entry) {
	heap.Push(h, e)
}

func (h *expiryHeap) pop() *Entry {
	return heap.Pop(h).(*Entry)
}

func (h *expiryHeap) peek() (*Entry, bool) {
	if len(*h) == 0 {
		return nil, false
	}
	return (*h)[0], true
}

func (h *expiryHeap) fix(e *Entry) {
	if e.heapIndex >= 0 && e.heapIndex < len(*h) {
		heap.Fix(h, e.heapIndex)
	}
}

func (h *expiryHeap) remove(e *Entry) {
	if e.heapIndex >= 0 && e.heapIndex < len(*h) {
		heap.Remove(h, e.heapIndex)
	}
}
