// Package pit implements the Pending Interest Table (spec §4.3): three
// matching-rule indexes (Name, Name+KeyId, Name+ObjectHash), interest
// aggregation, and tick-driven expiry.
package pit

import (
	"errors"

	"github.com/PARC/Metis/internal/wireformat"
)

// DefaultLifetimeTicks is a default interest lifetime in ticks. Nothing in
// this package applies it: Receive always takes the lifetime from its
// caller, and internal/processor uses its own DefaultInterestLifetimeTicks
// for interests that carry no Interest-Lifetime TLV.
const DefaultLifetimeTicks wireformat.Tick = 4000

// Verdict is the outcome of Receive, per spec §4.3.
type Verdict int

const (
	VerdictNew Verdict = iota
	VerdictAggregated
	VerdictExtended
)

// ErrOverflow is returned by Receive when the table is at its configured
// capacity and the interest does not match an existing entry (spec §5/§7
// PitOverflow).
var ErrOverflow = errors.New("pit: overflow")

// restriction identifies which of the three matching rules an interest
// key was built under; most-restrictive (hash) wins over keyid, which
// wins over name-only, per spec §4.3.
type restriction int

const (
	restrictName restriction = iota
	restrictKeyID
	restrictHash
)

// key is the matching-rules key for one PIT index entry. Comparable, so it
// can be used directly as a Go map key.
type key struct {
	restriction restriction
	nameHash    uint32
	nameLen     int
	extra       string // raw KeyId or ObjectHash bytes, empty for restrictName
}

// Entry is one PIT entry: aggregation state for one matching key.
type Entry struct {
	k       key
	Name    wireformat.Name
	Created wireformat.Tick
	Expiry  wireformat.Tick

	Ingress map[wireformat.ConnectionID]struct{}
	Egress  map[wireformat.ConnectionID]struct{}

	heapIndex int
}

func (e *Entry) hasIngress(conn wireformat.ConnectionID) bool {
	_, ok := e.Ingress[conn]
	return ok
}

// Table is the Pending Interest Table: three matching-rule indexes sharing
// one expiry heap, per spec §4.3.
type Table struct {
	byName map[key]*Entry
	byKid  map[key]*Entry
	byHash map[key]*Entry

	expiry expiryHeap

	capacity int // 0 means unbounded, per spec §5 "PIT has no hard cap"
}

// NewTable constructs an empty PIT. capacity == 0 means unbounded, per
// spec §5 (the configuration collaborator MAY impose a cap).
func NewTable(capacity int) *Table {
	return &Table{
		byName:   make(map[key]*Entry),
		byKid:    make(map[key]*Entry),
		byHash:   make(map[key]*Entry),
		capacity: capacity,
	}
}

// indexFor returns the map an entry of the given restriction belongs in.
func (t *Table) indexFor(r restriction) map[key]*Entry {
	switch r {
	case restrictHash:
		return t.byHash
	case restrictKeyID:
		return t.byKid
	default:
		return t.byName
	}
}

// interestKey builds the matching key for an Interest, choosing the most
// restrictive field present: ObjectHash > KeyId > Name, per spec §4.3.
func interestKey(name wireformat.Name, keyID, objHash []byte) key {
	k := key{nameHash: name.Hash(), nameLen: name.Len()}
	switch {
	case len(objHash) > 0:
		k.restriction = restrictHash
		k.extra = string(objHash)
	case len(keyID) > 0:
		k.restriction = restrictKeyID
		k.extra = string(keyID)
	default:
		k.restriction = restrictName
	}
	return k
}

// Len returns the total number of entries across all three indexes.
func (t *Table) Len() int {
	return len(t.byName) + len(t.byKid) + len(t.byHash)
}

// Receive processes an incoming Interest from ingressConn, implementing
// spec §4.3's aggregation rules. nowTick is the current dispatcher tick;
// lifetimeTicks is the interest's declared lifetime (or the caller's default
// if absent), already converted from wire units by the caller.
func (t *Table) Receive(name wireformat.Name, keyID, objHash []byte, ingressConn wireformat.ConnectionID, nowTick, lifetimeTicks wireformat.Tick) (Verdict, *Entry, error) {
	k := interestKey(name, keyID, objHash)
	idx := t.indexFor(k.restriction)

	if existing, ok := idx[k]; ok {
		verdict := VerdictAggregated
		// A retransmission from a connection already in Ingress (spec
		// §4.3 step 5) always stays AGGREGATED and never touches Expiry;
		// only a genuinely new ingress connection (step 4) can extend it.
		if !existing.hasIngress(ingressConn) {
			existing.Ingress[ingressConn] = struct{}{}
			newExpiry := nowTick + lifetimeTicks
			if newExpiry > existing.Expiry {
				existing.Expiry = newExpiry
				t.expiry.fix(existing)
				verdict = VerdictExtended
			}
		}
		return verdict, existing, nil
	}

	if t.capacity > 0 && t.Len() >= t.capacity {
		return 0, nil, ErrOverflow
	}

	e := &Entry{
		k:       k,
		Name:    name,
		Created: nowTick,
		Expiry:  nowTick + lifetimeTicks,
		Ingress: map[wireformat.ConnectionID]struct{}{ingressConn: {}},
		Egress:  map[wireformat.ConnectionID]struct{}{},
	}
	idx[k] = e
	t.expiry.push(e)
	return VerdictNew, e, nil
}

// Satisfy matches a Content Object against all three indexes simultaneously
// (spec §4.3), deletes every matched entry, and returns the union of their
// ingress sets as the egress connections to forward the object to.
func (t *Table) Satisfy(name wireformat.Name, keyID []byte, objHash []byte) map[wireformat.ConnectionID]struct{} {
	result := make(map[wireformat.ConnectionID]struct{})

	nameKey := key{restriction: restrictName, nameHash: name.Hash(), nameLen: name.Len()}
	if e, ok := t.byName[nameKey]; ok {
		t.drain(e, result)
		delete(t.byName, nameKey)
		t.expiry.remove(e)
	}
	if len(keyID) > 0 {
		kidKey := key{restriction: restrictKeyID, nameHash: name.Hash(), nameLen: name.Len(), extra: string(keyID)}
		if e, ok := t.byKid[kidKey]; ok {
			t.drain(e, result)
			delete(t.byKid, kidKey)
			t.expiry.remove(e)
		}
	}
	if len(objHash) > 0 {
		hashKey := key{restriction: restrictHash, nameHash: name.Hash(), nameLen: name.Len(), extra: string(objHash)}
		if e, ok := t.byHash[hashKey]; ok {
			t.drain(e, result)
			delete(t.byHash, hashKey)
			t.expiry.remove(e)
		}
	}
	return result
}

func (t *Table) drain(e *Entry, into map[wireformat.ConnectionID]struct{}) {
	for c := range e.Ingress {
		into[c] = struct{}{}
	}
}

// Remove deletes e unconditionally from its index and the expiry heap,
// used by the processor when a freshly created entry turns out to have no
// route (spec §4.7 step 3: "remove the PIT entry just created").
func (t *Table) Remove(e *Entry) {
	delete(t.indexFor(e.k.restriction), e.k)
	t.expiry.remove(e)
}

// RemoveConnection sweeps conn out of every entry's ingress and egress
// sets, and drops any entry left with an empty ingress set, per spec §4.2's
// "sweep on close" requirement as applied to the PIT.
func (t *Table) RemoveConnection(conn wireformat.ConnectionID) {
	for _, idx := range []map[key]*Entry{t.byName, t.byKid, t.byHash} {
		for k, e := range idx {
			delete(e.Ingress, conn)
			delete(e.Egress, conn)
			if len(e.Ingress) == 0 {
				delete(idx, k)
				t.expiry.remove(e)
			}
		}
	}
}

// ExpireBefore removes and returns every entry whose expiry tick is <= now,
// driven by the dispatcher's single expiry timer (spec §4.3/§4.6). An entry
// removed by expiry produces no downstream event; the caller simply
// discards the returned slice (or uses it for logging/metrics).
func (t *Table) ExpireBefore(now wireformat.Tick) []*Entry {
	var expired []*Entry
	for {
		e, ok := t.expiry.peek()
		if !ok || e.Expiry > now {
			break
		}
		t.expiry.pop()
		delete(t.indexFor(e.k.restriction), e.k)
		expired = append(expired, e)
	}
	return expired
}

// NextExpiry returns the tick at which the next entry will expire, and
// whether any entry exists at all (for the dispatcher to arm its timer).
func (t *Table) NextExpiry() (wireformat.Tick, bool) {
	e, ok := t.expiry.peek()
	if !ok {
		return 0, false
	}
	return e.Expiry, true
}
