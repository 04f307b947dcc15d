package listener

import (
	"net"
	"sync"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/metislog"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/wireformat"
)

// UDPListener is a single bound datagram socket shared by every remote
// peer; each peer address gets its own logical connection-table entry the
// first time a datagram from it arrives, mirroring acceptorUDP()'s
// single-socket, no-accept-loop shape (ingesters/SimpleRelay/simple.go)
// while still giving the PIT/FIB per-neighbor addressing spec §4.2 wants.
type UDPListener struct {
	conn  *net.UDPConn
	disp  dispatcher.Dispatcher
	sink  Sink
	table *connection.Table
	stats *stats.Registry
	log   *metislog.Logger

	mu    sync.Mutex
	peers map[string]*udpConn

	done chan struct{}
}

// ListenUDP binds addr and returns a listener ready to Serve.
func ListenUDP(addr string, disp dispatcher.Dispatcher, sink Sink, table *connection.Table, st *stats.Registry, log *metislog.Logger) (*UDPListener, error) {
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", a)
	if err != nil {
		return nil, err
	}
	return &UDPListener{
		conn: conn, disp: disp, sink: sink, table: table, stats: st, log: log,
		peers: make(map[string]*udpConn),
		done:  make(chan struct{}),
	}, nil
}

// Serve runs the read loop in its own goroutine and returns immediately.
func (l *UDPListener) Serve() {
	go l.readLoop()
}

func (l *UDPListener) readLoop() {
	buf := make([]byte, MaxPacketLength)
	for {
		n, remote, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			continue
		}
		if n < wireformat.FixedHeaderLength {
			continue
		}
		total, err := wireformat.TotalPacketLength(buf[:n])
		if err != nil || total != n {
			// A datagram carries exactly one packet; a declared length that
			// disagrees with what arrived cannot be reassembled (no stream
			// to keep reading from), so it is simply malformed.
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])

		c := l.peerConn(remote)
		deliver(l.disp, l.sink, l.stats, l.log, c.id, pkt)
	}
}

// peerConn returns the logical connection for remote, creating and
// registering one (via the dispatcher goroutine, to keep connection.Table
// single-writer) the first time this peer is seen.
func (l *UDPListener) peerConn(remote *net.UDPAddr) *udpConn {
	key := remote.String()
	l.mu.Lock()
	c, ok := l.peers[key]
	l.mu.Unlock()
	if ok {
		return c
	}

	c = &udpConn{
		id:   IDs.next32(),
		conn: l.conn,
		peer: remote,
		up:   true,
		pair: connection.Pair{
			Local:  udpAddrToAddress(l.conn.LocalAddr()),
			Remote: connection.Address{Kind: ipAddressKind(remote.IP), IP: remote.IP, Port: uint16(remote.Port)},
		},
	}
	l.mu.Lock()
	l.peers[key] = c
	l.mu.Unlock()

	l.disp.Inject(func() {
		if err := l.table.Add(c); err != nil {
			return
		}
		if l.log != nil {
			l.log.Info("new udp peer", metislog.KV("remote", key), metislog.KV("conn", c.id))
		}
	})
	return c
}

// Close stops the read loop and closes the socket.
func (l *UDPListener) Close() error {
	close(l.done)
	return l.conn.Close()
}

func udpAddrToAddress(a net.Addr) connection.Address {
	udp, ok := a.(*net.UDPAddr)
	if !ok {
		return connection.Address{}
	}
	return connection.Address{Kind: ipAddressKind(udp.IP), IP: udp.IP, Port: uint16(udp.Port)}
}

// udpConn implements connection.Connection for one remote peer of a
// shared UDP socket. net.UDPConn is safe for concurrent use by multiple
// goroutines, so every udpConn sharing the same conn can Send
// independently without additional locking.
type udpConn struct {
	id   wireformat.ConnectionID
	pair connection.Pair
	conn *net.UDPConn
	peer *net.UDPAddr

	mu sync.Mutex
	up bool
}

func (c *udpConn) ID() wireformat.ConnectionID { return c.id }
func (c *udpConn) Pair() connection.Pair        { return c.pair }
func (c *udpConn) Kind() connection.Kind        { return connection.KindUDP }
func (c *udpConn) IsLocal() bool                { return false }

func (c *udpConn) IsUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *udpConn) Send(msg *wireformat.Message) error {
	_, err := c.conn.WriteToUDP(msg.Buf, c.peer)
	return err
}

func (c *udpConn) Release() {
	c.mu.Lock()
	c.up = false
	c.mu.Unlock()
}
