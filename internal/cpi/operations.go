// Package cpi defines the typed contract between metisd's core and its
// (out-of-scope) JSON Control Plane Interface and interactive CLI: the
// operations they submit and the snapshots they read. The wire transport
// that carries these shapes is explicitly out of scope (spec.md §1) — this
// package is the struct-tagged contract plus a Handler that actually
// applies the operations to the forwarder's live state, grounded on the
// same "JSON-tagged struct consumed by an external loader" shape gravwell
// uses for its own config structs.
package cpi

import (
	"errors"
	"fmt"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/fib"
	"github.com/PARC/Metis/internal/listener"
	"github.com/PARC/Metis/internal/metislog"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/wireformat"
)

var (
	ErrUnknownConnection = errors.New("cpi: unknown connection")
	ErrDuplicateSymbolic = errors.New("cpi: symbolic name already in use")
	ErrInvalidSymbolic   = errors.New("cpi: symbolic name must start with a letter and be alphanumeric")
	ErrBindFailed        = errors.New("cpi: bind failed")
	ErrConnectFailed     = errors.New("cpi: connect failed")
	ErrUnknownKind       = errors.New("cpi: unknown connection kind")
)

// AddRouteRequest adds (or updates the cost of) a FIB entry.
type AddRouteRequest struct {
	Prefix     string `json:"prefix"`
	Connection string `json:"connection"` // symbolic name or numeric connection id
	Cost       uint32 `json:"cost"`
}

// RemoveRouteRequest removes one (prefix, connection) FIB entry.
type RemoveRouteRequest struct {
	Prefix     string `json:"prefix"`
	Connection string `json:"connection"`
}

// AddConnectionRequest is the shape `add_tcp`/`add_udp`/`add_ether`/
// `add_local` share (spec §6.3): a symbolic name, a remote address, and an
// optional local bind. Kind selects which of the four listener
// constructors actually performs the dial.
type AddConnectionRequest struct {
	Symbolic  string `json:"symbolic"`
	Kind      string `json:"kind"` // "tcp", "udp", "ether", "local"
	Remote    string `json:"remote"`
	LocalBind string `json:"local_bind,omitempty"`
	// Interface selects which running EtherListener to dial through;
	// only meaningful when Kind is "ether".
	Interface string `json:"interface,omitempty"`
}

// RemoveConnectionRequest tears down one connection by symbolic name or
// numeric id.
type RemoveConnectionRequest struct {
	Connection string `json:"connection"`
}

// SetDebugRequest toggles debug-level logging (spec §9's InterestReturn
// handling is one consumer: dropped messages only get a log line when
// debug is set).
type SetDebugRequest struct {
	Debug bool `json:"debug"`
}

// RouteSnapshot is one entry of ListRoutes' response.
type RouteSnapshot struct {
	Prefix   string         `json:"prefix"`
	Nexthops []NexthopEntry `json:"nexthops"`
}

// NexthopEntry is one (connection, cost) pair within a RouteSnapshot.
type NexthopEntry struct {
	Connection wireformat.ConnectionID `json:"connection"`
	Cost       uint32                  `json:"cost"`
}

// ConnectionSnapshot is one entry of ListConnections' response.
type ConnectionSnapshot struct {
	ID    wireformat.ConnectionID `json:"id"`
	Kind  string                  `json:"kind"`
	Up    bool                    `json:"up"`
	Local bool                    `json:"local"`
}

// CacheStatsSnapshot reports content-store hit/miss counters (spec §4.5).
type CacheStatsSnapshot struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Puts    int64   `json:"puts"`
	Evicts  int64   `json:"evicts"`
	HitRate float64 `json:"hit_rate"`
}

// Handler applies CPI operations to the forwarder's live state. Every
// mutating method runs its body through disp.Inject (via call) so the
// single-writer discipline (spec §5) holds even though the CPI's own
// transport (out of scope) may be driven from another goroutine, exactly
// like internal/listener's accept/read loops.
type Handler struct {
	disp  dispatcher.Dispatcher
	fib   *fib.Table
	conns *connection.Table
	syms  *connection.SymbolicTable
	st    *stats.Registry
	log   *metislog.Logger
	debug *bool

	sink listener.Sink

	// ether holds one EtherListener per configured interface, so
	// AddConnection can route add_ether requests to the right capture
	// session (spec §6.3).
	ether map[string]*listener.EtherListener
}

// NewHandler constructs a Handler over the forwarder's shared FIB,
// connection table, symbolic-name table, and stats registry. debug is a
// pointer to the dispatcher-owned debug flag that SetDebug toggles; sink is
// the message processor every dialed-out connection feeds into; ether maps
// interface name to the already-running EtherListener for that interface,
// consulted only by AddConnection's "ether" case.
func NewHandler(disp dispatcher.Dispatcher, f *fib.Table, conns *connection.Table, syms *connection.SymbolicTable, st *stats.Registry, log *metislog.Logger, debug *bool, sink listener.Sink, ether map[string]*listener.EtherListener) *Handler {
	return &Handler{disp: disp, fib: f, conns: conns, syms: syms, st: st, log: log, debug: debug, sink: sink, ether: ether}
}

// call runs fn on the dispatcher goroutine and blocks until it has
// completed. Dispatcher.Inject only guarantees fn eventually runs on the
// dispatcher goroutine — on the real epoll dispatcher it just queues fn and
// wakes the loop, so a caller that needs fn's result (every CPI operation
// does) must wait for a completion signal rather than reading state Inject
// set after Inject itself returns. The CPI's own transport is out of
// scope, but whatever drives it must call Handler's methods from a
// goroutine other than the dispatcher's own, or this blocks forever.
func (h *Handler) call(fn func()) {
	done := make(chan struct{})
	h.disp.Inject(func() {
		fn()
		close(done)
	})
	<-done
}

// resolveConnection accepts either a symbolic name or a decimal connection
// id, matching spec §6.3's "by a user-chosen symbolic string" plus the raw
// numeric ids every snapshot already reports.
func (h *Handler) resolveConnection(s string) (wireformat.ConnectionID, error) {
	if id := h.syms.Lookup(s); id != connection.NoConnection {
		return id, nil
	}
	var n uint32
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
		if h.conns.FindByID(wireformat.ConnectionID(n)) != nil {
			return wireformat.ConnectionID(n), nil
		}
	}
	return 0, ErrUnknownConnection
}

// AddRoute installs or updates a FIB entry.
func (h *Handler) AddRoute(req AddRouteRequest) (err error) {
	name, perr := ParseNameURI(req.Prefix)
	if perr != nil {
		return perr
	}
	h.call(func() {
		connID, rerr := h.resolveConnection(req.Connection)
		if rerr != nil {
			err = rerr
			return
		}
		err = h.fib.AddOrUpdate(name, connID, req.Cost)
	})
	return
}

// RemoveRoute removes one (prefix, connection) FIB entry.
func (h *Handler) RemoveRoute(req RemoveRouteRequest) (err error) {
	name, perr := ParseNameURI(req.Prefix)
	if perr != nil {
		return perr
	}
	h.call(func() {
		connID, rerr := h.resolveConnection(req.Connection)
		if rerr != nil {
			err = rerr
			return
		}
		h.fib.Remove(name, connID)
	})
	return
}

// AddConnection dials out a new connection of the requested kind and binds
// it to a symbolic name, implementing add_tcp/add_udp/add_ether/add_local
// (spec §6.3). The dial itself runs on the calling goroutine since it is a
// blocking network call that must not stall the dispatcher; only the
// resulting table/symbolic-name registration is done via h.call.
func (h *Handler) AddConnection(req AddConnectionRequest) (id wireformat.ConnectionID, err error) {
	if !connection.ValidName(req.Symbolic) {
		return 0, ErrInvalidSymbolic
	}
	if h.syms.Lookup(req.Symbolic) != connection.NoConnection {
		return 0, ErrDuplicateSymbolic
	}

	var c connection.Connection
	switch req.Kind {
	case "tcp":
		c, err = listener.DialTCP(req.Remote, req.LocalBind, h.disp, h.sink, h.conns, h.st, h.log)
	case "udp":
		c, err = listener.DialUDP(req.Remote, req.LocalBind, h.disp, h.sink, h.conns, h.st, h.log)
	case "local":
		c, err = listener.DialLocal(req.Remote, h.disp, h.sink, h.conns, h.st, h.log)
	case "ether":
		el, ok := h.ether[req.Interface]
		if !ok {
			return 0, ErrUnknownKind
		}
		c, err = el.Connect(req.Remote)
	default:
		return 0, ErrUnknownKind
	}
	if err != nil {
		if req.LocalBind != "" {
			return 0, fmt.Errorf("%w: %v", ErrBindFailed, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	h.call(func() {
		if !h.syms.Add(req.Symbolic, c.ID()) {
			err = ErrDuplicateSymbolic
			return
		}
		id = c.ID()
	})
	return id, err
}

// RemoveConnection tears down a connection and, via the caller's own
// connection-removal sweep (internal/connection.Table.Remove), its FIB and
// PIT references.
func (h *Handler) RemoveConnection(req RemoveConnectionRequest) (err error) {
	h.call(func() {
		connID, rerr := h.resolveConnection(req.Connection)
		if rerr != nil {
			err = rerr
			return
		}
		if c := h.conns.FindByID(connID); c != nil {
			c.Release()
		}
		h.conns.RemoveByID(connID)
		h.syms.Remove(req.Connection)
	})
	return
}

// SetDebug toggles debug-level logging.
func (h *Handler) SetDebug(req SetDebugRequest) {
	h.call(func() {
		*h.debug = req.Debug
	})
}

// Debug reports the current debug-logging flag.
func (h *Handler) Debug() (d bool) {
	h.call(func() { d = *h.debug })
	return
}

// ListRoutes returns a deterministic snapshot of every FIB entry.
func (h *Handler) ListRoutes() (out []RouteSnapshot) {
	h.call(func() {
		for _, rd := range h.fib.List() {
			rs := RouteSnapshot{Prefix: NameURI(rd.Prefix)}
			for _, nh := range rd.Nexthops {
				rs.Nexthops = append(rs.Nexthops, NexthopEntry{Connection: nh.Connection, Cost: nh.Cost})
			}
			out = append(out, rs)
		}
	})
	return
}

// ListConnections returns a snapshot of every live connection.
func (h *Handler) ListConnections() (out []ConnectionSnapshot) {
	h.call(func() {
		for _, c := range h.conns.Entries() {
			out = append(out, ConnectionSnapshot{
				ID:    c.ID(),
				Kind:  c.Kind().String(),
				Up:    c.IsUp(),
				Local: c.IsLocal(),
			})
		}
	})
	return
}

// CacheStats returns the process-wide content-store counters.
func (h *Handler) CacheStats() (out CacheStatsSnapshot) {
	h.call(func() {
		cc := h.st.Cache
		out = CacheStatsSnapshot{Hits: cc.Hits, Misses: cc.Misses, Puts: cc.Puts, Evicts: cc.Evicts, HitRate: cc.HitRate()}
	})
	return
}
