package wireformat

import "hash/fnv"

// Segment is one typed byte-string component of a hierarchical CCNx name.
type Segment struct {
	Type  uint16
	Value []byte
}

// Equal reports whether two segments have the same type and bytes.
func (s Segment) Equal(o Segment) bool {
	if s.Type != o.Type || len(s.Value) != len(o.Value) {
		return false
	}
	for i := range s.Value {
		if s.Value[i] != o.Value[i] {
			return false
		}
	}
	return true
}

// Name is an ordered sequence of name segments together with the cumulative
// hash computed after each segment, so that hashing any prefix of the name
// costs O(1) once the full name has been built once.
//
// Invariant: hash(name.Prefix(k)) == cumulative[k-1] for any 1 <= k <=
// len(segments). This is verified directly in name_test.go.
type Name struct {
	segments   []Segment
	cumulative []uint32 // cumulative[i] is the hash through segments[0..i]
}

// initialNameCap is the starting capacity for a freshly parsed name's
// segment slice; growth beyond this doubles, matching the allocator
// discipline the spec calls for on the name-parsing fast path.
const initialNameCap = 16

// NewName builds a Name from an already-split segment list, computing the
// cumulative hash chain once.
func NewName(segments []Segment) Name {
	n := Name{
		segments:   make([]Segment, 0, max(initialNameCap, len(segments))),
		cumulative: make([]uint32, 0, max(initialNameCap, len(segments))),
	}
	for _, s := range segments {
		n.append(s)
	}
	return n
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (n *Name) append(s Segment) {
	prev := uint32(0)
	if len(n.cumulative) > 0 {
		prev = n.cumulative[len(n.cumulative)-1]
	}
	n.segments = append(n.segments, s)
	n.cumulative = append(n.cumulative, segmentHash(s, prev))
}

// segmentHash combines one segment into the running hash. It is a hand
// rolled FNV-1a mix (stdlib hash/fnv as the primitive) rather than a
// third-party hash library: the requirement is an *incremental* hash where
// hashing a k-segment prefix must reuse the (k-1)-prefix's hash in O(1), a
// shape no general-purpose hash package in the example pack exposes.
func segmentHash(s Segment, prev uint32) uint32 {
	h := fnv.New32a()
	var typeBuf [2]byte
	typeBuf[0] = byte(s.Type >> 8)
	typeBuf[1] = byte(s.Type)
	h.Write(typeBuf[:])
	h.Write(s.Value)
	var prevBuf [4]byte
	prevBuf[0] = byte(prev >> 24)
	prevBuf[1] = byte(prev >> 16)
	prevBuf[2] = byte(prev >> 8)
	prevBuf[3] = byte(prev)
	h.Write(prevBuf[:])
	return h.Sum32()
}

// Len returns the number of segments in the name.
func (n Name) Len() int { return len(n.segments) }

// Segment returns the i'th segment.
func (n Name) Segment(i int) Segment { return n.segments[i] }

// Segments returns the underlying segment slice. Callers must not mutate it.
func (n Name) Segments() []Segment { return n.segments }

// Hash returns the cumulative hash of the full name, i.e. Hash() ==
// PrefixHash(Len()) for Len() > 0.
func (n Name) Hash() uint32 {
	if len(n.cumulative) == 0 {
		return 0
	}
	return n.cumulative[len(n.cumulative)-1]
}

// PrefixHash returns the cumulative hash after exactly k segments, in O(1).
// k must be in [0, Len()]; PrefixHash(0) is the hash of the empty name.
func (n Name) PrefixHash(k int) uint32 {
	if k <= 0 {
		return 0
	}
	return n.cumulative[k-1]
}

// Prefix returns the first k segments of the name as a new Name, reusing
// the already-computed cumulative hashes so no rehashing occurs.
func (n Name) Prefix(k int) Name {
	if k > len(n.segments) {
		k = len(n.segments)
	}
	return Name{
		segments:   append([]Segment(nil), n.segments[:k]...),
		cumulative: append([]uint32(nil), n.cumulative[:k]...),
	}
}

// IsPrefixOf reports whether n is a segment-wise prefix of other.
func (n Name) IsPrefixOf(other Name) bool {
	if n.Len() > other.Len() {
		return false
	}
	for i := 0; i < n.Len(); i++ {
		if !n.segments[i].Equal(other.segments[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether two names have identical segments.
func (n Name) Equal(o Name) bool {
	return n.Len() == o.Len() && n.IsPrefixOf(o)
}

// ParseName parses a TLV-encoded Name body (the bytes inside the outer
// Name TLV, not including its own type/length) into an ordered Name. It
// grows the segment slice by doubling, starting at initialNameCap, per
// spec's allocation-discipline requirement.
func ParseName(buf []byte) (Name, []Extent, error) {
	segs := make([]Segment, 0, initialNameCap)
	extents := make([]Extent, 0, initialNameCap)
	off := 0
	for off < len(buf) {
		typ, length, ok := readTLVHeader(buf, off)
		if !ok || off+tlvHeaderLen+length > len(buf) {
			return Name{}, nil, ErrMalformedPacket
		}
		value := buf[off+tlvHeaderLen : off+tlvHeaderLen+length]
		segs = append(segs, Segment{Type: typ, Value: append([]byte(nil), value...)})
		extents = append(extents, newExtent(off, tlvHeaderLen+length))
		off += tlvHeaderLen + length
	}
	return NewName(segs), extents, nil
}

// EncodeName serialises a Name back into its TLV-encoded Name body, the
// inverse of ParseName. Used by the round-trip / idempotence tests.
func EncodeName(n Name) []byte {
	size := 0
	for _, s := range n.segments {
		size += tlvHeaderLen + len(s.Value)
	}
	buf := make([]byte, size)
	off := 0
	for _, s := range n.segments {
		putTLVHeader(buf, off, s.Type, len(s.Value))
		copy(buf[off+tlvHeaderLen:], s.Value)
		off += tlvHeaderLen + len(s.Value)
	}
	return buf
}
