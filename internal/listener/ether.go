package listener

import (
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/metislog"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/wireformat"
)

// readTimeout bounds each pcap poll so the capture loop notices Close
// promptly, the same role packetExtractor's time.Ticker plays in
// networkLog/main.go against pcap's own blocking ReadPacketData.
const readTimeout = 200 * time.Millisecond

// EtherListener captures raw frames of a single EtherType on one
// interface, grounded on networkLog/main.go's sniffer type (pcap.Handle +
// BPF filter + promiscuous flag), reassembling CCNx's hop-by-hop Ethernet
// fragments via wireformat.Reassembler before handing packets to the
// dispatcher.
type EtherListener struct {
	handle    *pcap.Handle
	iface     string
	localMAC  net.HardwareAddr
	etherType layers.EthernetType

	disp  dispatcher.Dispatcher
	sink  Sink
	table *connection.Table
	stats *stats.Registry
	log   *metislog.Logger

	reassembler *wireformat.Reassembler

	mu    sync.Mutex
	peers map[[6]byte]*etherConn

	done chan struct{}
}

// ListenEther opens iface in promiscuous capture, filters for ethertype
// via a BPF expression (spec §6's ether(ifname, ethertype) constructor),
// and returns a listener ready to Serve.
func ListenEther(iface string, etherType layers.EthernetType, localMAC net.HardwareAddr, snaplen int32, disp dispatcher.Dispatcher, sink Sink, table *connection.Table, st *stats.Registry, log *metislog.Logger) (*EtherListener, error) {
	if snaplen <= 0 {
		snaplen = 65535
	}
	handle, err := pcap.OpenLive(iface, snaplen, true, readTimeout)
	if err != nil {
		return nil, err
	}
	filter := "ether proto 0x" + etherTypeHex(etherType)
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, err
	}
	return &EtherListener{
		handle: handle, iface: iface, localMAC: localMAC, etherType: etherType,
		disp: disp, sink: sink, table: table, stats: st, log: log,
		reassembler: wireformat.NewReassembler(),
		peers:       make(map[[6]byte]*etherConn),
		done:        make(chan struct{}),
	}, nil
}

func etherTypeHex(et layers.EthernetType) string {
	const hexDigits = "0123456789abcdef"
	v := uint16(et)
	return string([]byte{hexDigits[(v>>12)&0xf], hexDigits[(v>>8)&0xf], hexDigits[(v>>4)&0xf], hexDigits[v&0xf]})
}

// Serve runs the capture loop in its own goroutine and returns
// immediately.
func (l *EtherListener) Serve() {
	go l.captureLoop()
}

func (l *EtherListener) captureLoop() {
	for {
		select {
		case <-l.done:
			return
		default:
		}
		data, _, err := l.handle.ReadPacketData()
		if err != nil {
			if err == pcap.NextErrorTimeoutExpired {
				continue
			}
			return
		}
		l.handleFrame(data)
	}
}

func (l *EtherListener) handleFrame(data []byte) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return
	}
	eth, ok := ethLayer.(*layers.Ethernet)
	if !ok || eth.EthernetType != l.etherType {
		return
	}

	var mac [6]byte
	copy(mac[:], eth.SrcMAC)

	flags, seq, body, err := wireformat.ParseFragmentHeader(eth.Payload)
	if err != nil {
		return
	}
	full, ready, err := l.reassembler.Feed(mac, flags, seq, body)
	conn := l.peerConn(mac, eth.SrcMAC)
	if err != nil {
		l.stats.Link(uint32(conn.id)).MalformedPacket++
		return
	}
	if !ready {
		return
	}
	if len(full) > MaxPacketLength {
		l.stats.Link(uint32(conn.id)).MalformedPacket++
		return
	}
	deliver(l.disp, l.sink, l.stats, l.log, conn.id, full)
}

// peerConn returns the logical connection for a source MAC, creating and
// registering one the first time this peer is seen, same as
// UDPListener.peerConn. Guarded by mu since, unlike the other listener
// kinds, a peer can also be created by Connect from a non-capture-loop
// goroutine (spec §6.3's add_ether).
func (l *EtherListener) peerConn(mac [6]byte, srcMAC net.HardwareAddr) *etherConn {
	l.mu.Lock()
	if c, ok := l.peers[mac]; ok {
		l.mu.Unlock()
		return c
	}
	c := &etherConn{
		id:        IDs.next32(),
		peer:      append(net.HardwareAddr(nil), srcMAC...),
		handle:    l.handle,
		iface:     l.iface,
		local:     l.localMAC,
		etherType: l.etherType,
		up:        true,
		pair: connection.Pair{
			Local:  connection.Address{Kind: connection.AddressLink, MAC: l.localMAC, IfName: l.iface},
			Remote: connection.Address{Kind: connection.AddressLink, MAC: append(net.HardwareAddr(nil), srcMAC...), IfName: l.iface},
		},
	}
	l.peers[mac] = c
	l.mu.Unlock()

	l.disp.Inject(func() {
		if err := l.table.Add(c); err != nil {
			return
		}
		if l.log != nil {
			l.log.Info("new ethernet peer", metislog.KV("mac", srcMAC.String()), metislog.KV("conn", c.id))
		}
	})
	return c
}

// Connect registers an outbound-only peer at remoteMAC, the ether
// counterpart of DialTCP/DialUDP/DialLocal for spec §6.3's add_ether: there
// is no transport-level handshake for raw Ethernet, so "connecting" simply
// means remembering the destination MAC to send to.
func (l *EtherListener) Connect(remoteMAC string) (connection.Connection, error) {
	hw, err := net.ParseMAC(remoteMAC)
	if err != nil {
		return nil, err
	}
	var mac [6]byte
	copy(mac[:], hw)
	return l.peerConn(mac, hw), nil
}

// Close stops the capture loop and releases the pcap handle.
func (l *EtherListener) Close() error {
	close(l.done)
	l.handle.Close()
	return nil
}

const maxEtherFragmentBody = 1486 // 1500 MTU - fragmentHeaderLen(4) - EthernetType-adjacent slack

// etherConn implements connection.Connection over raw frames to one peer
// MAC, fragmenting a packet larger than the link MTU via
// wireformat.PutFragmentHeader the same way the reassembler on the
// receiving side expects (spec §4.1's hop-by-hop fragmentation).
type etherConn struct {
	id        wireformat.ConnectionID
	pair      connection.Pair
	peer      net.HardwareAddr
	local     net.HardwareAddr
	iface     string
	etherType layers.EthernetType
	handle    *pcap.Handle

	up bool
}

func (c *etherConn) ID() wireformat.ConnectionID { return c.id }
func (c *etherConn) Pair() connection.Pair        { return c.pair }
func (c *etherConn) Kind() connection.Kind        { return connection.KindEther }
func (c *etherConn) IsLocal() bool                { return false }
func (c *etherConn) IsUp() bool                   { return c.up }

func (c *etherConn) Send(msg *wireformat.Message) error {
	buf := msg.Buf
	if len(buf) <= maxEtherFragmentBody {
		return c.sendFrame(wireformat.FragmentBegin|wireformat.FragmentEnd, 0, buf)
	}

	var seq uint16
	for off := 0; off < len(buf); off += maxEtherFragmentBody {
		end := off + maxEtherFragmentBody
		if end > len(buf) {
			end = len(buf)
		}
		flags := wireformat.FragmentMiddle
		if off == 0 {
			flags = wireformat.FragmentBegin
		}
		if end == len(buf) {
			flags |= wireformat.FragmentEnd
		}
		if err := c.sendFrame(flags, seq, buf[off:end]); err != nil {
			return err
		}
		seq++
	}
	return nil
}

func (c *etherConn) sendFrame(flags wireformat.FragmentFlag, seq uint16, body []byte) error {
	fragHdr := make([]byte, 4)
	wireformat.PutFragmentHeader(fragHdr, flags, seq)

	ethLayer := &layers.Ethernet{
		SrcMAC:       c.local,
		DstMAC:       c.peer,
		EthernetType: c.etherType,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, ethLayer, gopacket.Payload(append(fragHdr, body...))); err != nil {
		return err
	}
	return c.handle.WritePacketData(buf.Bytes())
}

func (c *etherConn) Release() { c.up = false }
