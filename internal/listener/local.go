package listener

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/metislog"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/wireformat"
)

// LocalListener accepts PF_LOCAL (Unix domain) stream connections at a
// filesystem socket path, using the same fixed-header framing as
// TCPListener — the two differ only in address family, matching how
// SimpleRelay's acceptor() is parameterised by bindType rather than
// duplicated per transport.
type LocalListener struct {
	ln    *net.UnixListener
	path  string
	disp  dispatcher.Dispatcher
	sink  Sink
	table *connection.Table
	stats *stats.Registry
	log   *metislog.Logger

	done chan struct{}
}

// ListenLocal binds a Unix domain socket at path. Any stale socket file
// left behind by a prior unclean shutdown is removed first.
func ListenLocal(path string, disp dispatcher.Dispatcher, sink Sink, table *connection.Table, st *stats.Registry, log *metislog.Logger) (*LocalListener, error) {
	os.Remove(path)
	a, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenUnix("unix", a)
	if err != nil {
		return nil, err
	}
	return &LocalListener{ln: ln, path: path, disp: disp, sink: sink, table: table, stats: st, log: log, done: make(chan struct{})}, nil
}

// Serve runs the accept loop in its own goroutine and returns immediately.
func (l *LocalListener) Serve() {
	go l.acceptLoop()
}

func (l *LocalListener) acceptLoop() {
	var failCount int
	for {
		conn, err := l.ln.AcceptUnix()
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

func (l *LocalListener) handleAccept(conn *net.UnixConn) {
	id := IDs.next32()
	// Unix domain sockets carry no meaningful peer address; the accepted
	// connection's own id stands in for one so each accepted client still
	// gets a distinct Pair (Table.byPair is keyed on it).
	pair := connection.Pair{
		Local:  connection.Address{Kind: connection.AddressLocal, Path: l.path},
		Remote: connection.Address{Kind: connection.AddressLocal, Path: fmt.Sprintf("%s#%d", l.path, id)},
	}
	c := &localConn{id: id, pair: pair, conn: conn, up: true}
	l.disp.Inject(func() {
		l.table.Add(c)
		if l.log != nil {
			l.log.Info("accepted local connection", metislog.KV("path", l.path), metislog.KV("conn", id))
		}
	})
	go l.readLoop(c)
}

func (l *LocalListener) readLoop(c *localConn) {
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

// Close stops the accept loop, closes the listening socket and removes
// the socket file.
func (l *LocalListener) Close() error {
	close(l.done)
	err := l.ln.Close()
	os.Remove(l.path)
	return err
}

// localConn implements connection.Connection over a single *net.UnixConn.
// Local connections are the ones spec §4.7's "at-most-one-copy rule"
// applies to.
type localConn struct {
	id   wireformat.ConnectionID
	pair connection.Pair
	conn *net.UnixConn

	mu sync.Mutex
	up bool
}

func (c *localConn) ID() wireformat.ConnectionID { return c.id }
func (c *localConn) Pair() connection.Pair        { return c.pair }
func (c *localConn) Kind() connection.Kind        { return connection.KindLocal }
func (c *localConn) IsLocal() bool                { return true }

func (c *localConn) IsUp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *localConn) Send(msg *wireformat.Message) error {
	_, err := c.conn.Write(msg.Buf)
	return err
}

func (c *localConn) Close() {
	c.mu.Lock()
	if !c.up {
		c.mu.Unlock()
		return
	}
	c.up = false
	c.mu.Unlock()
	c.conn.Close()
}

func (c *localConn) Release() { c.Close() }
