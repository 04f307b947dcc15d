package listener

import (
	"fmt"
	"net"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/metislog"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/wireformat"
)

// DialTCP opens an outgoing TCP connection to remote (optionally binding
// the local address first), registers it in table, and starts its read
// loop — the outbound counterpart of ListenTCP/handleAccept, used by
// spec §6.3's add_tcp configuration operation (internal/cpi.Handler).
func DialTCP(remote, localBind string, disp dispatcher.Dispatcher, sink Sink, table *connection.Table, st *stats.Registry, log *metislog.Logger) (connection.Connection, error) {
	raddr, err := net.ResolveTCPAddr("tcp", remote)
	if err != nil {
		return nil, err
	}
	var laddr *net.TCPAddr
	if localBind != `` {
		if laddr, err = net.ResolveTCPAddr("tcp", localBind); err != nil {
			return nil, err
		}
	}
	conn, err := net.DialTCP("tcp", laddr, raddr)
	if err != nil {
		return nil, err
	}
	id := IDs.next32()
	pair := connection.Pair{Local: tcpAddrToAddress(conn.LocalAddr()), Remote: tcpAddrToAddress(conn.RemoteAddr())}
	c := &tcpConn{id: id, pair: pair, conn: conn, up: true}
	l := &TCPListener{disp: disp, sink: sink, table: table, stats: st, log: log, done: make(chan struct{})}
	disp.Inject(func() { table.Add(c) })
	go l.readLoop(c)
	return c, nil
}

// DialUDP opens a "connected" UDP socket to remote (the kernel filters out
// datagrams from any other source), registers it, and starts a dedicated
// read loop, used by add_udp. Unlike ListenUDP's single shared socket
// demultiplexed by peer address, a dialed-out UDP connection owns its
// socket outright, so it reads for itself rather than through
// UDPListener.peerConn's demux map.
func DialUDP(remote, localBind string, disp dispatcher.Dispatcher, sink Sink, table *connection.Table, st *stats.Registry, log *metislog.Logger) (connection.Connection, error) {
	raddr, err := net.ResolveUDPAddr("udp", remote)
	if err != nil {
		return nil, err
	}
	var laddr *net.UDPAddr
	if localBind != `` {
		if laddr, err = net.ResolveUDPAddr("udp", localBind); err != nil {
			return nil, err
		}
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, err
	}
	id := IDs.next32()
	pair := connection.Pair{Local: udpAddrToAddress(conn.LocalAddr()), Remote: udpAddrToAddress(raddr)}
	c := &udpConn{id: id, pair: pair, conn: conn, peer: raddr, up: true}
	disp.Inject(func() { table.Add(c) })
	go dialedUDPReadLoop(c, disp, sink, table, st, log)
	return c, nil
}

func dialedUDPReadLoop(c *udpConn, disp dispatcher.Dispatcher, sink Sink, table *connection.Table, st *stats.Registry, log *metislog.Logger) {
	defer func() {
		c.Release()
		disp.Inject(func() {
			table.RemoveByID(c.id)
			st.Forget(uint32(c.id))
		})
	}()
	buf := make([]byte, MaxPacketLength)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}
		if n < wireformat.FixedHeaderLength {
			continue
		}
		total, err := wireformat.TotalPacketLength(buf[:n])
		if err != nil || total != n {
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		deliver(disp, sink, st, log, c.id, pkt)
	}
}

// DialLocal opens an outgoing PF_LOCAL stream connection to the socket at
// path, registers it, and starts its read loop, used by add_local.
func DialLocal(path string, disp dispatcher.Dispatcher, sink Sink, table *connection.Table, st *stats.Registry, log *metislog.Logger) (connection.Connection, error) {
	raddr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUnix("unix", nil, raddr)
	if err != nil {
		return nil, err
	}
	id := IDs.next32()
	pair := connection.Pair{
		Local:  connection.Address{Kind: connection.AddressLocal, Path: fmt.Sprintf("%s#%d", path, id)},
		Remote: connection.Address{Kind: connection.AddressLocal, Path: path},
	}
	c := &localConn{id: id, pair: pair, conn: conn, up: true}
	l := &LocalListener{disp: disp, sink: sink, table: table, stats: st, log: log, path: path, done: make(chan struct{})}
	disp.Inject(func() { table.Add(c) })
	go l.readLoop(c)
	return c, nil
}
