// Package connection implements the dual-indexed connection table (spec
// §4.2) and the symbolic-name table used to let configuration refer to a
// connection by a user-chosen alias (spec §4.7).
package connection

import (
	"fmt"
	"net"
)

// AddressKind tags which of the five transport address shapes an Address
// holds.
type AddressKind int

const (
	AddressIPv4 AddressKind = iota
	AddressIPv6
	AddressLink
	AddressLocal
	AddressIface
)

// Address is the tagged union of transport addresses a Connection's local
// or remote endpoint can be, per spec §3.
type Address struct {
	Kind AddressKind

	IP   net.IP // AddressIPv4, AddressIPv6
	Port uint16 // AddressIPv4, AddressIPv6

	MAC     net.HardwareAddr // AddressLink
	IfName  string           // AddressLink, AddressIface
	IfIndex int              // AddressIface

	Path string // AddressLocal
}

// key returns a comparable representation of the address suitable for use
// as a Go map key (net.IP and net.HardwareAddr are slices and cannot be
// compared directly).
func (a Address) key() string {
	switch a.Kind {
	case AddressIPv4, AddressIPv6:
		return fmt.Sprintf("ip:%s:%d", a.IP.String(), a.Port)
	case AddressLink:
		return fmt.Sprintf("link:%s:%s", a.MAC.String(), a.IfName)
	case AddressLocal:
		return fmt.Sprintf("local:%s", a.Path)
	case AddressIface:
		return fmt.Sprintf("iface:%d:%s", a.IfIndex, a.IfName)
	default:
		return "invalid"
	}
}

// hash32 is a small FNV-1a style mix over the address's string key. Spec
// §4.2 requires the address-pair hash to be order-sensitive:
// hash(local) || hash(remote) — i.e. swapping local/remote must not
// collide with the unswapped pair. Pair.key() below concatenates the two
// address keys directly (local first) which already has that property, so
// this helper exists only for callers that want a compact numeric digest
// (e.g. logging) rather than the table's actual lookup key.
func (a Address) hash32() uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(a.key()); i++ {
		h ^= uint32(a.key()[i])
		h *= 16777619
	}
	return h
}

// Pair is a (local, remote) address pair, the connection table's secondary
// index key.
type Pair struct {
	Local  Address
	Remote Address
}

// key returns the order-sensitive lookup key for the pair: the local
// address's string key, "|", then the remote's, matching spec §4.2's "Hash-code over
// address-pair is order-sensitive" requirement directly (swapping Local
// and Remote produces a different key).
func (p Pair) key() string {
	return p.Local.key() + "|" + p.Remote.key()
}

// Hash32 returns an order-sensitive 32-bit digest of the pair, combining
// each address's own hash32 so that swapping Local/Remote changes the
// result.
func (p Pair) Hash32() uint32 {
	return p.Local.hash32()*31 + p.Remote.hash32()
}
