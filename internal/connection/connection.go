package connection

import "github.com/PARC/Metis/internal/wireformat"

// Kind identifies a connection's transport.
type Kind int

const (
	KindTCP Kind = iota
	KindUDP
	KindLocal
	KindEther
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	case KindLocal:
		return "local"
	case KindEther:
		return "ether"
	default:
		return "unknown"
	}
}

// Connection is the per-link abstraction the rest of the forwarder sends
// through. Implementations are supplied by internal/listener; the
// connection table only ever holds the interface, never assumes a
// transport, per spec §4.2.
type Connection interface {
	ID() wireformat.ConnectionID
	Pair() Pair
	Kind() Kind
	IsUp() bool
	IsLocal() bool
	Send(msg *wireformat.Message) error
	Release()
}
