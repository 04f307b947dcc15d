package dispatcher

import "github.com/PARC/Metis/internal/wireformat"

// timerEntry and timerHeap are shared between the epoll and virtual-time
// backends: both order pending timers by deadline tick via the same
// container/heap.Interface implementation.
type timerEntry struct {
	deadline  wireformat.Tick
	period    wireformat.Tick
	cb        TimerCallback
	cancelled bool
	index     int
}

func (t *timerEntry) Cancel() { t.cancelled = true }

type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].deadline < h[j].deadline }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
