package listener

import (
	"io"
	"net"
	"sync"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/metislog"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/wireformat"
)

// TCPListener accepts stream connections and frames CCNx packets off each
// one using the fixed header's TotalLength field, grounded on
// SimpleRelay's acceptor() accept loop (ingesters/SimpleRelay/simple.go).
type TCPListener struct {
	ln    *net.TCPListener
	disp  dispatcher.Dispatcher
	sink  Sink
	table *connection.Table
	stats *stats.Registry
	log   *metislog.Logger

	done chan struct{}
}

// ListenTCP binds addr and returns a listener ready to Serve.
func ListenTCP(addr string, disp dispatcher.Dispatcher, sink Sink, table *connection.Table, st *stats.Registry, log *metislog.Logger) (*TCPListener, error) {
	a, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", a)
	if err != nil {
		return nil, err
	}
	return &TCPListener{ln: ln, disp: disp, sink: sink, table: table, stats: st, log: log, done: make(chan struct{})}, nil
}

// Serve runs the accept loop in its own goroutine and returns immediately.
func (l *TCPListener) Serve() {
	go l.acceptLoop()
}

func (l *TCPListener) acceptLoop() {
	var failCount int
	for {
		conn, err := l.ln.AcceptTCP()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			failCount++
			if failCount > 3 {
				return
			}
			continue
		}
		failCount = 0
		l.handleAccept(conn)
	}
}

func (l *TCPListener) handleAccept(conn *net.TCPConn) {
	id := IDs.next32()
	pair := connection.Pair{
		Local:  tcpAddrToAddress(conn.LocalAddr()),
		Remote: tcpAddrToAddress(conn.RemoteAddr()),
	}
	c := &tcpConn{id: id, pair: pair, conn: conn, up: true}
	// id comes from the process-wide allocator shared by every listener
	// kind, so Table.Add cannot fail on a duplicate here; the registration
	// itself still only happens on the dispatcher goroutine (spec §5).
	l.disp.Inject(func() {
		l.table.Add(c)
		if l.log != nil {
			l.log.Info("accepted tcp connection", metislog.KV("remote", conn.RemoteAddr().String()), metislog.KV("conn", id))
		}
	})
	go l.readLoop(c)
}

// readLoop mirrors acceptor()'s per-connection handler goroutine, but
// frames whole CCNx packets off the stream instead of delimiting on
// newlines.
func (l *TCPListener) readLoop(c *tcpConn) {
	defer func() {
		c.Close()
		l.disp.Inject(func() {
			l.table.RemoveByID(c.id)
			l.stats.Forget(uint32(c.id))
		})
	}()
	hdr := make([]byte, wireformat.FixedHeaderLength)
	for {
		if _, err := io.ReadFull(c.conn, hdr); err != nil {
			return
		}
		total, err := wireformat.TotalPacketLength(hdr)
		if err != nil || total < wireformat.FixedHeaderLength || total > MaxPacketLength {
			l.disp.Inject(func() { l.stats.Link(uint32(c.id)).MalformedPacket++ })
			return
		}
		buf := make([]byte, total)
		copy(buf, hdr)
		if _, err := io.ReadFull(c.conn, buf[wireformat.FixedHeaderLength:]); err != nil {
			return
		}
		deliver(l.disp, l.sink, l.stats, l.log, c.id, buf)
	}
}

// Close stops the accept loop and closes the listening socket; live
// connections are torn down as their read loops notice the error.
func (l *TCPListener) Close() error {
	close(l.done)
	return l.ln.Close()
}

func tcpAddrToAddress(a net.Addr) connection.Address {
	tcp, ok := a.(*net.TCPAddr)
	if !ok {
		return connection.Address{}
	}
	return connection.Address{Kind: ipAddressKind(tcp.IP), IP: tcp.IP, Port: uint16(tcp.Port)}
}

// tcpConn implements connection.Connection over a single *net.TCPConn.
type tcpConn struct {
	id   wireformat.ConnectionID
	pair connection.Pair
	conn *net.TCPConn

	mu sync.Mutex
	up bool
}

func (c *tcpConn) ID() wireformat.ConnectionID { return c.id }
func (c *tcpConn) Pair() connection.Pair        { return c.pair }
func (c *tcpConn) Kind() connection.Kind        { return connection.KindTCP }
func (c *tcpConn) IsLocal() bool                { return false }

func (c *tcpConn) IsUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

// Send writes msg's raw bytes to the stream. Length-prefixing is already
// baked into the wire format itself (FixedHeader.TotalLength), so no
// additional framing is needed on write.
func (c *tcpConn) Send(msg *wireformat.Message) error {
	_, err := c.conn.Write(msg.Buf)
	return err
}

func (c *tcpConn) Close() {
	c.mu.Lock()
	if !c.up {
		c.mu.Unlock()
		return
	}
	c.up = false
	c.mu.Unlock()
	c.conn.Close()
}

func (c *tcpConn) Release() { c.Close() }
