package connection

import (
	"errors"
	"sort"
	"sync"

	"github.com/PARC/Metis/internal/wireformat"
)

// InitialCapacity is the connection table's initial allocation size, per
// spec §5 resource caps.
const InitialCapacity = 16384

// ErrDuplicateID is returned by Add when a connection with the same id is
// already present.
var ErrDuplicateID = errors.New("connection: duplicate connection id")

// Table is the dual-indexed connection registry described in spec §4.2:
// an owning map keyed by connection id, and a non-owning secondary index
// keyed by address pair, derived from the first.
//
// Table is only ever mutated from the dispatcher thread (spec §5); the
// mutex exists so read-only snapshot calls (Entries, used by the
// control-plane contract) are safe to call from a status/admin goroutine
// without additional coordination, matching the teacher's
// sync.Mutex-guarded ProcessorSet pattern.
type Table struct {
	mu      sync.Mutex
	byID    map[wireformat.ConnectionID]Connection
	byPair  map[string]Connection

	onRemove func(wireformat.ConnectionID)
}

// NewTable constructs an empty Table pre-sized to InitialCapacity.
func NewTable() *Table {
	return &Table{
		byID:   make(map[wireformat.ConnectionID]Connection, InitialCapacity),
		byPair: make(map[string]Connection, InitialCapacity),
	}
}

// SetOnRemove installs fn to run after every RemoveByID/Remove, once the
// connection is gone from both indexes. cmd/metisd wires this to sweep the
// FIB and PIT of the removed connection (spec §3's "on removal, all FIB
// nexthops and PIT entries referencing it MUST be swept"), keeping that
// invariant in one place regardless of which teardown path (CPI request or
// a listener noticing a socket error) triggered the removal.
func (t *Table) SetOnRemove(fn func(wireformat.ConnectionID)) {
	t.mu.Lock()
	t.onRemove = fn
	t.mu.Unlock()
}

// Add inserts c, indexed by both its id and its address pair. Fails with
// ErrDuplicateID if a connection with the same id is already present.
func (t *Table) Add(c Connection) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byID[c.ID()]; exists {
		return ErrDuplicateID
	}
	t.byID[c.ID()] = c
	t.byPair[c.Pair().key()] = c
	return nil
}

// Remove removes c from both indexes and releases it. No-op if c is not
// present under its own id.
func (t *Table) Remove(c Connection) {
	t.RemoveByID(c.ID())
}

// RemoveByID removes the connection with the given id, if present, from
// both indexes and releases it. No-op if absent.
func (t *Table) RemoveByID(id wireformat.ConnectionID) {
	t.mu.Lock()
	c, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.byID, id)
	delete(t.byPair, c.Pair().key())
	onRemove := t.onRemove
	t.mu.Unlock()
	c.Release()
	if onRemove != nil {
		onRemove(id)
	}
}

// FindByID returns the connection with the given id, or nil if absent.
func (t *Table) FindByID(id wireformat.ConnectionID) Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

// FindByPair returns the connection matching the given address pair, or
// nil if absent.
func (t *Table) FindByPair(p Pair) Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byPair[p.key()]
}

// Entries returns a snapshot of all connections, sorted by id, per spec
// §4.2's determinism requirement for configuration dumps.
func (t *Table) Entries() []Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Connection, 0, len(t.byID))
	for _, c := range t.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Len reports the number of connections currently in the table.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
