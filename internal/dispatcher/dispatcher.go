// Package dispatcher implements the single-threaded cooperative scheduler
// (spec §4.6): one event loop integrating socket readiness, timers and
// signals, with all core forwarder state owned by the loop goroutine so
// that no table in internal/pit, internal/fib, internal/cstore or
// internal/connection ever needs a lock.
package dispatcher

import (
	"errors"

	"github.com/PARC/Metis/internal/wireformat"
)

// HZ is the process-wide tick rate: ticks per second. A tick is the unit
// PIT/CS expiry and dispatcher timers are expressed in.
const HZ = 100

// NanosToTicks rounds a nanosecond duration up to the dispatcher's tick
// unit, so that any positive duration yields at least 1 tick, per spec
// §4.6 "Time".
func NanosToTicks(ns int64) wireformat.Tick {
	if ns <= 0 {
		return 0
	}
	const nsPerTick = int64(1e9) / HZ
	t := (ns + nsPerTick - 1) / nsPerTick
	if t < 1 {
		t = 1
	}
	return wireformat.Tick(t)
}

// MillisToTicks converts a wire-format millisecond duration (Interest
// lifetimes, cache times) into dispatcher ticks, rounding up so that any
// positive duration yields at least 1 tick.
func MillisToTicks(ms uint64) wireformat.Tick {
	if ms == 0 {
		return 0
	}
	t := (ms*HZ + 999) / 1000
	if t < 1 {
		t = 1
	}
	return wireformat.Tick(t)
}

// EventMask selects which readiness conditions a network-event registration
// cares about.
type EventMask uint8

const (
	Readable EventMask = 1 << iota
	Writable
)

// ErrClosed is returned by dispatcher methods called after Stop.
var ErrClosed = errors.New("dispatcher: closed")

// Handle cancels a registered event, timer or signal trap. Per spec §4.6's
// contract, cancellation from inside any callback (including the
// callback being cancelled) is legal and takes effect immediately: no
// further callback fires for that registration, even one already queued
// runnable in the same poll iteration.
type Handle interface {
	Cancel()
}

// EventCallback is invoked with the readiness mask that fired. Callbacks
// run to completion and must never call back into the dispatcher's Run
// loop (spec §4.6 contract; §5 "no callback may block").
type EventCallback func(ready EventMask)

// TimerCallback is invoked when a timer fires.
type TimerCallback func()

// SignalCallback is invoked when a trapped signal arrives.
type SignalCallback func()

// Dispatcher is the event-loop abstraction spec §4.6 calls for, so the
// backing event mechanism (epoll, or a deterministic virtual clock for
// tests) can be swapped without touching processor/listener code.
type Dispatcher interface {
	// RegisterFD arms a network-event registration on fd for the given
	// readiness mask. If persistent is false, the registration
	// auto-cancels after its callback fires once.
	RegisterFD(fd int, mask EventMask, persistent bool, cb EventCallback) (Handle, error)

	// RegisterTimer arms a timer at deadline ticks from now. period == 0
	// means one-shot; otherwise the timer re-arms every period ticks.
	RegisterTimer(deadline wireformat.Tick, period wireformat.Tick, cb TimerCallback) Handle

	// RegisterSignal traps a process signal for graceful shutdown.
	RegisterSignal(sig int, cb SignalCallback) (Handle, error)

	// Inject schedules fn to run on the dispatcher goroutine at the next
	// loop iteration, waking Run if it is blocked waiting for events. This
	// is the only safe way for another goroutine (a listener's accept or
	// read loop, spec §6.2) to touch core forwarder state: fn runs with
	// the same "only the dispatcher thread mutates PIT/FIB/CS" guarantee
	// as any EventCallback (spec §5).
	Inject(fn func())

	// Now returns the current tick count.
	Now() wireformat.Tick

	// Run blocks, servicing events/timers/signals, until Stop is called.
	Run() error

	// Stop requests the loop to exit after its current iteration.
	Stop()
}
