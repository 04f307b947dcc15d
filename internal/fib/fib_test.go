package fib

import (
	"testing"

	"github.com/PARC/Metis/internal/wireformat"
)

func name(segs ...string) wireformat.Name {
	s := make([]wireformat.Segment, len(segs))
	for i, v := range segs {
		s[i] = wireformat.Segment{Type: wireformat.TypeNameSegment, Value: []byte(v)}
	}
	return wireformat.NewName(s)
}

func TestAddOrUpdateInvalidCost(t *testing.T) {
	tbl := NewTable()
	if err := tbl.AddOrUpdate(name("a"), 1, 0); err != ErrInvalidCost {
		t.Fatalf("expected ErrInvalidCost, got %v", err)
	}
}

func TestAddOrUpdateUnknownConnection(t *testing.T) {
	tbl := NewTable()
	tbl.ConnectionKnown = func(wireformat.ConnectionID) bool { return false }
	if err := tbl.AddOrUpdate(name("a"), 1, 1); err != ErrUnknownConnection {
		t.Fatalf("expected ErrUnknownConnection, got %v", err)
	}
}

func TestLongestPrefixMatch(t *testing.T) {
	tbl := NewTable()
	tbl.AddOrUpdate(name("a"), 1, 1)
	tbl.AddOrUpdate(name("a", "b"), 2, 1)

	nh, ok := tbl.Lookup(name("a", "b", "c"))
	if !ok || len(nh) != 1 || nh[0].Connection != 2 {
		t.Fatalf("expected deepest match on conn2, got %+v ok=%v", nh, ok)
	}

	nh, ok = tbl.Lookup(name("a", "x"))
	if !ok || len(nh) != 1 || nh[0].Connection != 1 {
		t.Fatalf("expected fallback match on conn1, got %+v ok=%v", nh, ok)
	}
}

func TestLookupNoRoute(t *testing.T) {
	tbl := NewTable()
	if _, ok := tbl.Lookup(name("nowhere")); ok {
		t.Fatal("expected no route")
	}
}

func TestAddOrUpdateAtMostOnePerPrefixConnection(t *testing.T) {
	tbl := NewTable()
	tbl.AddOrUpdate(name("a"), 1, 5)
	tbl.AddOrUpdate(name("a"), 1, 9) // update, not duplicate
	nh, _ := tbl.Lookup(name("a"))
	if len(nh) != 1 || nh[0].Cost != 9 {
		t.Fatalf("expected single updated nexthop with cost 9, got %+v", nh)
	}
}

func TestRemovePrunesEmptyPath(t *testing.T) {
	tbl := NewTable()
	tbl.AddOrUpdate(name("a", "b", "c"), 1, 1)
	tbl.Remove(name("a", "b", "c"), 1)
	if _, ok := tbl.Lookup(name("a", "b", "c")); ok {
		t.Fatal("expected route to be gone")
	}
	if len(tbl.root.children) != 0 {
		t.Fatal("expected empty trie path to be pruned")
	}
}

func TestRemoveByConnectionSweepsEverything(t *testing.T) {
	tbl := NewTable()
	tbl.AddOrUpdate(name("foo"), 1, 1)
	tbl.RemoveByConnection(1)
	if _, ok := tbl.Lookup(name("foo")); ok {
		t.Fatal("expected zero nexthops after connection removal")
	}
}

func TestEmissionOrderIsInsertionOrder(t *testing.T) {
	tbl := NewTable()
	tbl.AddOrUpdate(name("x"), 3, 1)
	tbl.AddOrUpdate(name("x"), 1, 1)
	tbl.AddOrUpdate(name("x"), 2, 1)
	nh, _ := tbl.Lookup(name("x"))
	want := []wireformat.ConnectionID{3, 1, 2}
	for i, w := range want {
		if nh[i].Connection != w {
			t.Fatalf("expected insertion order %v, got %v", want, nh)
		}
	}
}

func TestListOrderedByPrefix(t *testing.T) {
	tbl := NewTable()
	tbl.AddOrUpdate(name("a", "b"), 2, 1)
	tbl.AddOrUpdate(name("a"), 1, 1)
	routes := tbl.List()
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Prefix.Len() != 1 || routes[1].Prefix.Len() != 2 {
		t.Fatalf("expected shorter prefix first, got lens %d, %d", routes[0].Prefix.Len(), routes[1].Prefix.Len())
	}
}

func TestRootRouteFallback(t *testing.T) {
	tbl := NewTable()
	tbl.AddOrUpdate(name(), 1, 1) // default/root route
	nh, ok := tbl.Lookup(name("anything", "at", "all"))
	if !ok || nh[0].Connection != 1 {
		t.Fatalf("expected root route to catch all names, got %+v ok=%v", nh, ok)
	}
}
