package dispatcher

import (
	"container/heap"
	"sync"

	"github.com/PARC/Metis/internal/wireformat"
)

// VirtualDispatcher is a deterministic Dispatcher backend for tests: there
// is no real fd polling or wall-clock sleep. Tests drive readiness with
// Fire and advance time with Advance, giving tick-exact control over PIT
// and content-store expiry (spec §8 scenario 4) without flaky real-time
// sleeps.
type VirtualDispatcher struct {
	mu     sync.Mutex
	fds    map[int]*virtFD
	timers timerHeap
	tick   wireformat.Tick
	closed bool
}

type virtFD struct {
	cb         EventCallback
	persistent bool
	cancelled  bool
}

func (f *virtFD) Cancel() { f.cancelled = true }

// NewVirtualDispatcher constructs an empty virtual-time dispatcher.
func NewVirtualDispatcher() *VirtualDispatcher {
	return &VirtualDispatcher{fds: make(map[int]*virtFD)}
}

func (d *VirtualDispatcher) RegisterFD(fd int, mask EventMask, persistent bool, cb EventCallback) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := &virtFD{cb: cb, persistent: persistent}
	d.fds[fd] = f
	return f, nil
}

func (d *VirtualDispatcher) RegisterTimer(deadline, period wireformat.Tick, cb TimerCallback) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := &timerEntry{deadline: d.tick + deadline, period: period, cb: cb}
	heap.Push(&d.timers, e)
	return e
}

func (d *VirtualDispatcher) RegisterSignal(sig int, cb SignalCallback) (Handle, error) {
	f := &virtFD{cb: func(EventMask) { cb() }}
	return f, nil
}

// Inject runs fn immediately: tests are already single-threaded, so there
// is no real cross-goroutine handoff to simulate.
func (d *VirtualDispatcher) Inject(fn func()) {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return
	}
	fn()
}

func (d *VirtualDispatcher) Now() wireformat.Tick {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tick
}

// Fire invokes the callback registered on fd, as though it became ready
// with the given mask. It is a no-op if fd has no live registration.
func (d *VirtualDispatcher) Fire(fd int, ready EventMask) {
	d.mu.Lock()
	f, ok := d.fds[fd]
	d.mu.Unlock()
	if !ok || f.cancelled {
		return
	}
	f.cb(ready)
	if !f.persistent {
		d.mu.Lock()
		delete(d.fds, fd)
		d.mu.Unlock()
	}
}

// Advance moves the virtual clock forward by n ticks, firing every timer
// that becomes due, in deadline order (ties broken by registration order
// via the heap's stable pop sequence, matching spec §5 "same-tick timers
// fire in registration order" as closely as a binary heap allows).
func (d *VirtualDispatcher) Advance(n wireformat.Tick) {
	d.mu.Lock()
	d.tick += n
	now := d.tick
	d.mu.Unlock()

	for {
		d.mu.Lock()
		if d.timers.Len() == 0 || d.timers[0].deadline > now {
			d.mu.Unlock()
			return
		}
		e := heap.Pop(&d.timers).(*timerEntry)
		d.mu.Unlock()

		if e.cancelled {
			continue
		}
		e.cb()
		if e.period > 0 && !e.cancelled {
			d.mu.Lock()
			e.deadline = now + e.period
			heap.Push(&d.timers, e)
			d.mu.Unlock()
		}
	}
}

func (d *VirtualDispatcher) Stop() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Run is a no-op for the virtual backend: tests drive progress explicitly
// via Fire/Advance rather than blocking in a real event loop.
func (d *VirtualDispatcher) Run() error {
	return nil
}
