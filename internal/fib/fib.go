// Package fib implements the Forwarding Information Base (spec §4.4): a
// trie keyed by name segments, returning the nexthops of the deepest node
// on a name's path that actually has nexthops.
//
// The natural reference for longest-prefix-match in the example pack is
// gaissmai/bart, but bart's fixed-8-bit-stride popcount trie is built for
// IP byte keys and does not transfer to CCNx's variable-length typed name
// segments (see DESIGN.md). Metis borrows only bart's walk-and-remember
// strategy, reimplemented over a segment-keyed map trie.
package fib

import (
	"errors"
	"sort"

	"github.com/PARC/Metis/internal/wireformat"
)

// ErrInvalidCost is returned by AddOrUpdate when cost == 0.
var ErrInvalidCost = errors.New("fib: invalid cost")

// ErrUnknownConnection is returned by AddOrUpdate when the connection id is
// not known to the connection table (checked via the ConnectionKnown callback).
var ErrUnknownConnection = errors.New("fib: unknown connection")

// Nexthop is a (connection, cost) pair, per spec §3.
type Nexthop struct {
	Connection wireformat.ConnectionID
	Cost       uint32
}

// segKey is the comparable map key for one name segment.
type segKey struct {
	typ   uint16
	value string
}

func keyFor(s wireformat.Segment) segKey {
	return segKey{typ: s.Type, value: string(s.Value)}
}

// node is one trie node: its children by segment, and an ordered list of
// nexthops (insertion order preserved, per spec §4.4's emission-ordering
// requirement).
type node struct {
	children map[segKey]*node
	order    []wireformat.ConnectionID // insertion order of nexthops, for deterministic emission
	nexthops map[wireformat.ConnectionID]uint32
}

func newNode() *node {
	return &node{children: make(map[segKey]*node)}
}

func (n *node) hasNexthops() bool { return len(n.nexthops) > 0 }

// Table is the FIB: a segment-keyed trie rooted at an empty name.
type Table struct {
	root *node

	// ConnectionKnown is consulted by AddOrUpdate to validate connection
	// ids before inserting a route; nil means "accept all" (tests may
	// leave it unset).
	ConnectionKnown func(wireformat.ConnectionID) bool
}

// NewTable constructs an empty FIB.
func NewTable() *Table {
	return &Table{root: newNode()}
}

// AddOrUpdate inserts prefix -> connectionID at cost, creating trie nodes
// as needed. Updates the cost in place if the (prefix, connection) pair
// already exists, per spec §4.4's "each (prefix, connection) appears at
// most once" invariant.
func (t *Table) AddOrUpdate(prefix wireformat.Name, connectionID wireformat.ConnectionID, cost uint32) error {
	if cost == 0 {
		return ErrInvalidCost
	}
	if t.ConnectionKnown != nil && !t.ConnectionKnown(connectionID) {
		return ErrUnknownConnection
	}
	n := t.root
	for i := 0; i < prefix.Len(); i++ {
		k := keyFor(prefix.Segment(i))
		child, ok := n.children[k]
		if !ok {
			child = newNode()
			n.children[k] = child
		}
		n = child
	}
	if n.nexthops == nil {
		n.nexthops = make(map[wireformat.ConnectionID]uint32)
	}
	if _, exists := n.nexthops[connectionID]; !exists {
		n.order = append(n.order, connectionID)
	}
	n.nexthops[connectionID] = cost
	return nil
}

// Remove deletes the (prefix, connectionID) nexthop, pruning any trie path
// left with no nexthops and no children below it.
func (t *Table) Remove(prefix wireformat.Name, connectionID wireformat.ConnectionID) {
	path := make([]*node, prefix.Len()+1)
	keys := make([]segKey, prefix.Len())
	path[0] = t.root
	n := t.root
	for i := 0; i < prefix.Len(); i++ {
		k := keyFor(prefix.Segment(i))
		keys[i] = k
		child, ok := n.children[k]
		if !ok {
			return // prefix not present at all
		}
		path[i+1] = child
		n = child
	}
	if n.nexthops == nil {
		return
	}
	delete(n.nexthops, connectionID)
	for i, c := range n.order {
		if c == connectionID {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	t.pruneEmpty(path, keys)
}

// RemoveByConnection sweeps connectionID out of every nexthop set in the
// trie, per spec §4.4's connection-removal sweep helper. O(entries), as
// documented.
func (t *Table) RemoveByConnection(connectionID wireformat.ConnectionID) {
	var walk func(n *node, path []*node, keys []segKey)
	walk = func(n *node, path []*node, keys []segKey) {
		for k, child := range n.children {
			walk(child, append(path, child), append(keys, k))
		}
		if n.nexthops != nil {
			if _, ok := n.nexthops[connectionID]; ok {
				delete(n.nexthops, connectionID)
				for i, c := range n.order {
					if c == connectionID {
						n.order = append(n.order[:i], n.order[i+1:]...)
						break
					}
				}
			}
		}
	}
	walk(t.root, []*node{t.root}, nil)
	t.pruneAll()
}

// pruneEmpty walks path from the leaf back to the root, removing any node
// with no nexthops and no children.
func (t *Table) pruneEmpty(path []*node, keys []segKey) {
	for i := len(path) - 1; i > 0; i-- {
		n := path[i]
		if n.hasNexthops() || len(n.children) > 0 {
			break
		}
		delete(path[i-1].children, keys[i-1])
	}
}

// pruneAll removes every empty leaf in the trie; used after a full sweep
// where many nodes may have emptied at once.
func (t *Table) pruneAll() {
	var prune func(n *node) bool // returns true if n is now empty and prunable
	prune = func(n *node) bool {
		for k, child := range n.children {
			if prune(child) {
				delete(n.children, k)
			}
		}
		return !n.hasNexthops() && len(n.children) == 0
	}
	for k, child := range t.root.children {
		if prune(child) {
			delete(t.root.children, k)
		}
	}
}

// Lookup walks name's segments from the root and returns the nexthops of
// the deepest node on the path that has any, per spec §4.4. Returns
// (nil, false) if no node on the path has nexthops (NoRoute).
func (t *Table) Lookup(name wireformat.Name) ([]Nexthop, bool) {
	n := t.root
	var best *node
	if n.hasNexthops() {
		best = n
	}
	for i := 0; i < name.Len(); i++ {
		child, ok := n.children[keyFor(name.Segment(i))]
		if !ok {
			break
		}
		n = child
		if n.hasNexthops() {
			best = n
		}
	}
	if best == nil {
		return nil, false
	}
	out := make([]Nexthop, 0, len(best.order))
	for _, c := range best.order {
		out = append(out, Nexthop{Connection: c, Cost: best.nexthops[c]})
	}
	return out, true
}

// routeDump is one entry of List's deterministic output.
type routeDump struct {
	Prefix   wireformat.Name
	Nexthops []Nexthop
}

// List returns every route in the FIB, ordered by prefix, for deterministic
// configuration dumps (spec §4.4).
func (t *Table) List() []routeDump {
	var out []routeDump
	var walk func(n *node, prefix []wireformat.Segment)
	walk = func(n *node, prefix []wireformat.Segment) {
		if n.hasNexthops() {
			nhs := make([]Nexthop, 0, len(n.order))
			for _, c := range n.order {
				nhs = append(nhs, Nexthop{Connection: c, Cost: n.nexthops[c]})
			}
			out = append(out, routeDump{Prefix: wireformat.NewName(append([]wireformat.Segment(nil), prefix...)), Nexthops: nhs})
		}
		// deterministic child traversal order
		keys := make([]segKey, 0, len(n.children))
		for k := range n.children {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].typ != keys[j].typ {
				return keys[i].typ < keys[j].typ
			}
			return keys[i].value < keys[j].value
		})
		for _, k := range keys {
			walk(n.children[k], append(prefix, wireformat.Segment{Type: k.typ, Value: []byte(k.value)}))
		}
	}
	walk(t.root, nil)
	return out
}
