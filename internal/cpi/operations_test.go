package cpi

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/fib"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/wireformat"
)

// fakeConn is a minimal connection.Connection double so FIB/connection-table
// tests don't need a real socket.
type fakeConn struct {
	id wireformat.ConnectionID
	up bool
}

func (c *fakeConn) ID() wireformat.ConnectionID  { return c.id }
func (c *fakeConn) Pair() connection.Pair        { return connection.Pair{} }
func (c *fakeConn) Kind() connection.Kind        { return connection.KindTCP }
func (c *fakeConn) IsUp() bool                   { return c.up }
func (c *fakeConn) IsLocal() bool                { return false }
func (c *fakeConn) Send(*wireformat.Message) error { return nil }
func (c *fakeConn) Release()                     { c.up = false }

func newTestHandler() *Handler {
	disp := dispatcher.NewVirtualDispatcher()
	f := fib.NewTable()
	conns := connection.NewTable()
	syms := connection.NewSymbolicTable()
	st := stats.NewRegistry()
	return NewHandler(disp, f, conns, syms, st, nil, new(bool), nil, nil)
}

func TestAddRouteAndListRoutes(t *testing.T) {
	h := newTestHandler()

	err := h.AddRoute(AddRouteRequest{Prefix: "ccnx:/a/b", Connection: "1", Cost: 10})
	require.ErrorIs(t, err, ErrUnknownConnection)

	require.NoError(t, h.conns.Add(&fakeConn{id: 1, up: true}))
	require.NoError(t, h.AddRoute(AddRouteRequest{Prefix: "ccnx:/a/b", Connection: "1", Cost: 10}))

	routes := h.ListRoutes()
	require.Len(t, routes, 1)
	assert.Equal(t, "ccnx:/a/b", routes[0].Prefix)
	require.Len(t, routes[0].Nexthops, 1)
	assert.EqualValues(t, 1, routes[0].Nexthops[0].Connection)
	assert.EqualValues(t, 10, routes[0].Nexthops[0].Cost)
}

func TestAddRouteRejectsBadURI(t *testing.T) {
	h := newTestHandler()
	err := h.AddRoute(AddRouteRequest{Prefix: "not-a-uri", Connection: "1"})
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestRemoveRoute(t *testing.T) {
	h := newTestHandler()
	require.NoError(t, h.conns.Add(&fakeConn{id: 2, up: true}))
	require.NoError(t, h.AddRoute(AddRouteRequest{Prefix: "ccnx:/x", Connection: "2", Cost: 1}))
	require.NoError(t, h.RemoveRoute(RemoveRouteRequest{Prefix: "ccnx:/x", Connection: "2"}))
	assert.Empty(t, h.ListRoutes())
}

func TestSetDebugToggles(t *testing.T) {
	h := newTestHandler()
	h.SetDebug(SetDebugRequest{Debug: true})
	assert.True(t, *h.debug)
	h.SetDebug(SetDebugRequest{Debug: false})
	assert.False(t, *h.debug)
}

func TestRemoveConnectionUnknown(t *testing.T) {
	h := newTestHandler()
	err := h.RemoveConnection(RemoveConnectionRequest{Connection: "missing"})
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestRemoveConnectionBySymbolicName(t *testing.T) {
	h := newTestHandler()
	require.NoError(t, h.conns.Add(&fakeConn{id: 3, up: true}))
	require.True(t, h.syms.Add("peerA", 3))

	require.NoError(t, h.RemoveConnection(RemoveConnectionRequest{Connection: "peerA"}))
	assert.Nil(t, h.conns.FindByID(3))
	assert.Equal(t, connection.NoConnection, h.syms.Lookup("peerA"))
}

func TestListConnections(t *testing.T) {
	h := newTestHandler()
	require.NoError(t, h.conns.Add(&fakeConn{id: 4, up: true}))
	conns := h.ListConnections()
	require.Len(t, conns, 1)
	assert.EqualValues(t, 4, conns[0].ID)
	assert.True(t, conns[0].Up)
}

type nopSink struct{}

func (nopSink) OnMessage(*wireformat.Message) {}

func TestAddConnectionTCPRegistersSymbolicName(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(100 * time.Millisecond)
		}
	}()

	disp := dispatcher.NewVirtualDispatcher()
	f := fib.NewTable()
	conns := connection.NewTable()
	syms := connection.NewSymbolicTable()
	st := stats.NewRegistry()
	h := NewHandler(disp, f, conns, syms, st, nil, new(bool), nopSink{}, nil)

	id, err := h.AddConnection(AddConnectionRequest{Symbolic: "peerA", Kind: "tcp", Remote: ln.Addr().String()})
	require.NoError(t, err)
	assert.Equal(t, id, syms.Lookup("peerA"))
	assert.NotNil(t, conns.FindByID(id))
}

func TestAddConnectionRejectsInvalidSymbolic(t *testing.T) {
	h := newTestHandler()
	_, err := h.AddConnection(AddConnectionRequest{Symbolic: "7bad", Kind: "tcp", Remote: "127.0.0.1:0"})
	assert.ErrorIs(t, err, ErrInvalidSymbolic)
}

func TestAddConnectionRejectsDuplicateSymbolic(t *testing.T) {
	h := newTestHandler()
	require.True(t, h.syms.Add("dup", 1))
	_, err := h.AddConnection(AddConnectionRequest{Symbolic: "dup", Kind: "tcp", Remote: "127.0.0.1:0"})
	assert.ErrorIs(t, err, ErrDuplicateSymbolic)
}

func TestAddConnectionRejectsUnknownKind(t *testing.T) {
	h := newTestHandler()
	_, err := h.AddConnection(AddConnectionRequest{Symbolic: "peerB", Kind: "bogus", Remote: "127.0.0.1:0"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCacheStatsReflectsRegistry(t *testing.T) {
	h := newTestHandler()
	h.st.Cache.Hits = 3
	h.st.Cache.Misses = 1
	snap := h.CacheStats()
	assert.EqualValues(t, 3, snap.Hits)
	assert.EqualValues(t, 1, snap.Misses)
}
