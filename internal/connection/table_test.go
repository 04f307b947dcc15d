package connection

import (
	"testing"

	"github.com/PARC/Metis/internal/wireformat"
)

type fakeConn struct {
	id       wireformat.ConnectionID
	pair     Pair
	kind     Kind
	up       bool
	local    bool
	released bool
	sent     []*wireformat.Message
}

func (f *fakeConn) ID() wireformat.ConnectionID { return f.id }
func (f *fakeConn) Pair() Pair                  { return f.pair }
func (f *fakeConn) Kind() Kind                   { return f.kind }
func (f *fakeConn) IsUp() bool                   { return f.up }
func (f *fakeConn) IsLocal() bool                { return f.local }
func (f *fakeConn) Send(m *wireformat.Message) error {
	f.sent = append(f.sent, m)
	return nil
}
func (f *fakeConn) Release() { f.released = true }

func newFakeConn(id wireformat.ConnectionID, remotePort uint16) *fakeConn {
	return &fakeConn{
		id: id,
		pair: Pair{
			Local:  Address{Kind: AddressIPv4, Port: 9695},
			Remote: Address{Kind: AddressIPv4, Port: remotePort},
		},
		kind: KindUDP,
		up:   true,
	}
}

func TestTableDualIndex(t *testing.T) {
	tbl := NewTable()
	c := newFakeConn(1, 5000)
	if err := tbl.Add(c); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := tbl.FindByID(1); got != Connection(c) {
		t.Fatal("FindByID did not return the added connection")
	}
	if got := tbl.FindByPair(c.Pair()); got != Connection(c) {
		t.Fatal("FindByPair did not return the added connection")
	}
	// invariant: for all c, find_by_id(c.id) == find_by_pair(c.pair)
	if tbl.FindByID(c.ID()) != tbl.FindByPair(c.Pair()) {
		t.Fatal("dual-index invariant violated")
	}
}

func TestTableDuplicateID(t *testing.T) {
	tbl := NewTable()
	c1 := newFakeConn(1, 5000)
	c2 := newFakeConn(1, 5001)
	if err := tbl.Add(c1); err != nil {
		t.Fatalf("Add c1: %v", err)
	}
	if err := tbl.Add(c2); err != ErrDuplicateID {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestTableRemoveSweepsIndexes(t *testing.T) {
	tbl := NewTable()
	c := newFakeConn(7, 6000)
	tbl.Add(c)
	tbl.Remove(c)
	if got := tbl.FindByID(7); got != nil {
		t.Fatal("expected nil after remove")
	}
	if got := tbl.FindByPair(c.Pair()); got != nil {
		t.Fatal("expected nil after remove")
	}
	if !c.released {
		t.Fatal("expected connection to be released")
	}
}

func TestTableRemoveByIDNoop(t *testing.T) {
	tbl := NewTable()
	tbl.RemoveByID(42) // must not panic
}

func TestTableOnRemoveFiresOnRemoveByID(t *testing.T) {
	tbl := NewTable()
	c := newFakeConn(9, 6001)
	tbl.Add(c)

	var swept wireformat.ConnectionID
	var calls int
	tbl.SetOnRemove(func(id wireformat.ConnectionID) {
		swept = id
		calls++
	})

	tbl.RemoveByID(9)
	if calls != 1 {
		t.Fatalf("expected onRemove to fire exactly once, got %d", calls)
	}
	if swept != 9 {
		t.Fatalf("expected onRemove to be called with id 9, got %d", swept)
	}

	tbl.RemoveByID(9) // already gone: must not fire again
	if calls != 1 {
		t.Fatalf("expected onRemove not to fire for an absent id, got %d calls", calls)
	}
}

func TestTableEntriesSortedByID(t *testing.T) {
	tbl := NewTable()
	tbl.Add(newFakeConn(3, 1))
	tbl.Add(newFakeConn(1, 2))
	tbl.Add(newFakeConn(2, 3))
	entries := tbl.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i-1].ID() > entries[i].ID() {
			t.Fatal("entries not sorted by id")
		}
	}
}

func TestSymbolicTable(t *testing.T) {
	st := NewSymbolicTable()
	if !st.Add("conn7", 7) {
		t.Fatal("expected Add to succeed")
	}
	if st.Add("conn7", 8) {
		t.Fatal("expected duplicate Add to fail")
	}
	if st.Lookup("conn7") != 7 {
		t.Fatal("expected lookup to return 7")
	}
	if st.Lookup("missing") != NoConnection {
		t.Fatal("expected NoConnection sentinel for missing name")
	}
	if st.Add("7conn", 1) {
		t.Fatal("names must begin with a letter")
	}
	if st.Add("conn-7", 1) {
		t.Fatal("names must be alphanumeric only")
	}
}
