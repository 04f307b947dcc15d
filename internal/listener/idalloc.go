package listener

import (
	"sync/atomic"

	"github.com/PARC/Metis/internal/wireformat"
)

// idAllocator hands out dense, never-reused-during-process-lifetime
// connection ids, shared across every listener kind so a tcp, udp, local
// and ether connection can never collide in internal/connection.Table.
type idAllocator struct {
	next uint32
}

func (a *idAllocator) next32() wireformat.ConnectionID {
	return wireformat.ConnectionID(atomic.AddUint32(&a.next, 1))
}

// IDs is the process-wide connection id source, a package-level value that
// every listener and dial function in this package draws from directly.
var IDs idAllocator
