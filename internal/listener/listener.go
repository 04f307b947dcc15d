// Package listener implements the four listener constructors of spec §6.2:
// tcp, udp, local and ether. Each wraps a transport-specific accept/read
// loop (grounded on SimpleRelay's acceptor/acceptorUDP pattern) and hands
// framed packets to the single-threaded core through
// dispatcher.Dispatcher.Inject, so PIT/FIB/CS state is only ever touched
// from the dispatcher goroutine even though socket I/O happens on
// goroutines of its own per spec §6.2 ("new incoming datagrams/connections
// are injected directly into the processor").
package listener

import (
	"net"

	"github.com/PARC/Metis/internal/connection"
	"github.com/PARC/Metis/internal/dispatcher"
	"github.com/PARC/Metis/internal/metislog"
	"github.com/PARC/Metis/internal/stats"
	"github.com/PARC/Metis/internal/wireformat"
)

// MaxPacketLength bounds a single CCNx packet, matching the 16-bit
// TotalLength field of the fixed header (spec §4.1).
const MaxPacketLength = 1 << 16

// Sink is the subset of internal/processor.Processor a listener depends
// on. Declaring it here rather than importing the processor package keeps
// listener construction free of any dependency on the decision-tree logic
// it merely feeds.
type Sink interface {
	OnMessage(msg *wireformat.Message)
}

// deliver hands buf off to the dispatcher goroutine: it builds the
// Skeleton and either calls sink.OnMessage or records the packet as
// malformed, all under the single-writer discipline spec §5 requires of
// every stats/PIT/FIB/CS mutation.
func deliver(disp dispatcher.Dispatcher, sink Sink, st *stats.Registry, log *metislog.Logger, connID wireformat.ConnectionID, buf []byte) {
	now := disp.Now()
	disp.Inject(func() {
		sk, err := wireformat.Build(buf)
		if err != nil {
			st.Link(uint32(connID)).MalformedPacket++
			if log != nil {
				log.Debug("malformed packet", metislog.KV("conn", connID), metislog.KVErr(err))
			}
			return
		}
		sink.OnMessage(wireformat.NewMessage(buf, sk, now, connID))
	})
}

// ipAddressKind tags ip as an IPv4 or IPv6 Address.Kind value.
func ipAddressKind(ip net.IP) connection.AddressKind {
	if ip.To4() != nil {
		return connection.AddressIPv4
	}
	return connection.AddressIPv6
}
