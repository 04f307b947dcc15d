//go:build linux

package dispatcher

import (
	"container/heap"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/PARC/Metis/internal/wireformat"
)

// epollDispatcher is the native Dispatcher backend: one goroutine blocked in
// EpollWait, with timers ordered by a min-heap and cross-goroutine work
// (injected callbacks, trapped signals) delivered via a self-pipe folded
// into the same epoll set — the standard technique for mixing os/signal,
// or any other external wakeup source, with a raw epoll loop.
type epollDispatcher struct {
	epfd int

	mu         sync.Mutex
	fds        map[int]*fdReg
	timers     timerHeap
	injectPipe [2]int
	injectQ    []func()

	tick wireformat.Tick
	stop chan struct{}
}

type fdReg struct {
	fd         int
	mask       EventMask
	persistent bool
	cb         EventCallback
	cancelled  bool
}

func (r *fdReg) Cancel() {
	r.cancelled = true
}

// sigHandle cancels a RegisterSignal trap by tearing down its forwarding
// goroutine.
type sigHandle struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
}

func (h *sigHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.cancelled {
		h.cancelled = true
		close(h.done)
	}
}

// NewEpollDispatcher constructs the Linux-native Dispatcher.
func NewEpollDispatcher() (Dispatcher, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	var pipeFds [2]int
	if err := unix.Pipe2(pipeFds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(epfd)
		return nil, err
	}
	d := &epollDispatcher{
		epfd:       epfd,
		fds:        make(map[int]*fdReg),
		injectPipe: pipeFds,
		stop:       make(chan struct{}),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(pipeFds[0])}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, pipeFds[0], &ev); err != nil {
		unix.Close(pipeFds[0])
		unix.Close(pipeFds[1])
		unix.Close(epfd)
		return nil, err
	}
	return d, nil
}

// Inject queues fn and wakes the loop by writing a byte to the self-pipe.
// Safe to call concurrently, and from inside the dispatcher goroutine
// itself.
func (d *epollDispatcher) Inject(fn func()) {
	d.mu.Lock()
	d.injectQ = append(d.injectQ, fn)
	d.mu.Unlock()
	unix.Write(d.injectPipe[1], []byte{0})
}

// drainInjectPipe empties the self-pipe and runs every callback queued
// since the last drain.
func (d *epollDispatcher) drainInjectPipe() {
	var buf [64]byte
	for {
		_, err := unix.Read(d.injectPipe[0], buf[:])
		if err != nil {
			break
		}
	}
	d.mu.Lock()
	q := d.injectQ
	d.injectQ = nil
	d.mu.Unlock()
	for _, fn := range q {
		fn()
	}
}

func toEpollEvents(m EventMask) uint32 {
	var ev uint32
	if m&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if m&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (d *epollDispatcher) RegisterFD(fd int, mask EventMask, persistent bool, cb EventCallback) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	reg := &fdReg{fd: fd, mask: mask, persistent: persistent, cb: cb}
	ev := unix.EpollEvent{Events: toEpollEvents(mask), Fd: int32(fd)}
	if _, exists := d.fds[fd]; exists {
		if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
			return nil, err
		}
	} else {
		if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return nil, err
		}
	}
	d.fds[fd] = reg
	return reg, nil
}

func (d *epollDispatcher) RegisterTimer(deadline, period wireformat.Tick, cb TimerCallback) Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	e := &timerEntry{deadline: d.tick + deadline, period: period, cb: cb}
	heap.Push(&d.timers, e)
	return e
}

// RegisterSignal traps sig via os/signal and forwards it onto the
// dispatcher goroutine through Inject, so cb runs with the same
// single-writer guarantee as any other callback (spec §5). The forwarding
// goroutine exits when the handle is cancelled or the dispatcher stops.
func (d *epollDispatcher) RegisterSignal(sig int, cb SignalCallback) (Handle, error) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.Signal(sig))
	h := &sigHandle{done: make(chan struct{})}
	go func() {
		for {
			select {
			case <-ch:
				d.Inject(cb)
			case <-h.done:
				signal.Stop(ch)
				return
			case <-d.stop:
				signal.Stop(ch)
				return
			}
		}
	}()
	return h, nil
}

func (d *epollDispatcher) Now() wireformat.Tick {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tick
}

func (d *epollDispatcher) Stop() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
}

// Run services epoll readiness and due timers until Stop is called. Each
// iteration waits at most one tick so timers stay reasonably accurate
// without busy-polling.
func (d *epollDispatcher) Run() error {
	events := make([]unix.EpollEvent, 64)
	tickDur := time.Second / HZ
	for {
		select {
		case <-d.stop:
			return nil
		default:
		}

		n, err := unix.EpollWait(d.epfd, events, int(tickDur/time.Millisecond))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		d.mu.Lock()
		d.tick++
		now := d.tick
		d.mu.Unlock()

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == d.injectPipe[0] {
				d.drainInjectPipe()
				continue
			}
			d.mu.Lock()
			reg, ok := d.fds[fd]
			d.mu.Unlock()
			if !ok || reg.cancelled {
				continue
			}
			var ready EventMask
			if events[i].Events&unix.EPOLLIN != 0 {
				ready |= Readable
			}
			if events[i].Events&unix.EPOLLOUT != 0 {
				ready |= Writable
			}
			reg.cb(ready)
			if !reg.persistent && !reg.cancelled {
				d.mu.Lock()
				unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
				delete(d.fds, fd)
				d.mu.Unlock()
			}
		}

		d.runDueTimers(now)
	}
}

func (d *epollDispatcher) runDueTimers(now wireformat.Tick) {
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
