// Package wireformat implements the CCNx 1.0 wire codec and the zero-copy
// message skeleton: byte-extents into a packet buffer that let the rest of
// the forwarder answer "what is this packet's name/keyid/hash" in O(1)
// without copying or re-parsing.
package wireformat

import "encoding/binary"

// Extent is a byte range (offset, length) into a packet buffer. A zero
// Extent (Length == 0 and Offset == 0) means "field not present"; callers
// must check Present() before slicing, since offset 0 is a valid extent
// start for the first TLV in a buffer.
type Extent struct {
	Offset uint32
	Length uint32
	set    bool
}

// Present reports whether the extent was actually recorded during the
// skeleton build (as opposed to being the zero value of an unset field).
func (e Extent) Present() bool { return e.set }

func newExtent(offset, length int) Extent {
	return Extent{Offset: uint32(offset), Length: uint32(length), set: true}
}

// Slice returns the bytes described by the extent within buf.
func (e Extent) Slice(buf []byte) []byte {
	if !e.set {
		return nil
	}
	return buf[e.Offset : e.Offset+e.Length]
}

// Top-level TLV types recognised by the skeleton builder. Values are this
// codec's own registry; unrecognised types are skipped using their declared
// length rather than rejected, per spec.
const (
	TypeName               uint16 = 0x0000
	TypeNameSegment        uint16 = 0x0001
	TypeKeyId              uint16 = 0x0002
	TypeObjectHash         uint16 = 0x0003
	TypeContentObjectPayload uint16 = 0x0004
	TypeInterestLifetime   uint16 = 0x0005
	TypeRecommendedCacheTime uint16 = 0x0006
	TypeExpiryTime         uint16 = 0x0007
	TypeHopLimit           uint16 = 0x0008
	TypeCacheControl       uint16 = 0x0009
	TypeControlMessage     uint16 = 0x000A
	TypeDoNotCache         uint16 = 0x000B
)

// tlvHeaderLen is the size of a (type uint16, length uint16) TLV header, in
// network byte order, as used throughout the CCNx TLV registry.
const tlvHeaderLen = 4

// readTLVHeader reads a TLV type/length pair at offset off in buf. ok is
// false if there are not enough bytes remaining for a header.
func readTLVHeader(buf []byte, off int) (typ uint16, length int, ok bool) {
	if off+tlvHeaderLen > len(buf) {
		return 0, 0, false
	}
	typ = binary.BigEndian.Uint16(buf[off:])
	length = int(binary.BigEndian.Uint16(buf[off+2:]))
	return typ, length, true
}

// putTLVHeader writes a TLV type/length pair at offset off in buf.
func putTLVHeader(buf []byte, off int, typ uint16, length int) {
	binary.BigEndian.PutUint16(buf[off:], typ)
	binary.BigEndian.PutUint16(buf[off+2:], uint16(length))
}

// varIntToUint64 parses a 1-8 byte big-endian extent as an unsigned
// integer, mirroring metisTlv_ExtentToVarInt in the original codec: a
// varint TLV value is simply its bytes read as a big-endian integer of
// whatever length was declared.
func varIntToUint64(b []byte) (uint64, bool) {
	if len(b) == 0 || len(b) > 8 {
		return 0, false
	}
	var v uint64
	for _, c := range b {
		v = (v << 8) | uint64(c)
	}
	return v, true
}
