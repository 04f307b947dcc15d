package wireformat

import (
	"encoding/binary"
	"errors"
)

// FixedHeaderLength is the size, in bytes, of the fixed header shared by
// every CCNx packet version: (version, packetType, totalLength, hop-limit/
// reserved[3], headerLength).
const FixedHeaderLength = 8

// Version identifies the schema used to interpret the per-hop headers and
// message body that follow the fixed header.
type Version uint8

const (
	VersionV0 Version = 0
	VersionV1 Version = 1
)

// PacketType is the packet-type byte of the fixed header.
type PacketType uint8

const (
	PacketTypeInterest      PacketType = 0x00
	PacketTypeContentObject PacketType = 0x01
	PacketTypeControl       PacketType = 0x02
	PacketTypeInterestReturn PacketType = 0x03
)

// ErrMalformedPacket is returned whenever the codec cannot make sense of a
// buffer: truncated header, declared length exceeding the container, or a
// packet kind missing a field the schema requires of it (e.g. an Interest
// with no Name).
var ErrMalformedPacket = errors.New("wireformat: malformed packet")

// FixedHeader is the 8-byte header common to every CCNx packet.
type FixedHeader struct {
	Version      Version
	PacketType   PacketType
	TotalLength  uint16
	HopLimit     uint8 // reserved/hop-limit byte 0 of the 3-byte reserved block
	HeaderLength uint8
}

// ParseFixedHeader decodes the first FixedHeaderLength bytes of buf. The
// caller must already have at least FixedHeaderLength bytes available;
// framing (reading the remaining TotalLength-FixedHeaderLength bytes) is the
// listener's job, not the codec's.
func ParseFixedHeader(buf []byte) (FixedHeader, error) {
	if len(buf) < FixedHeaderLength {
		return FixedHeader{}, ErrMalformedPacket
	}
	h := FixedHeader{
		Version:      Version(buf[0]),
		PacketType:   PacketType(buf[1]),
		TotalLength:  binary.BigEndian.Uint16(buf[2:4]),
		HopLimit:     buf[4],
		HeaderLength: buf[7],
	}
	if int(h.TotalLength) < int(h.HeaderLength) {
		return FixedHeader{}, ErrMalformedPacket
	}
	return h, nil
}

// PutFixedHeader encodes h into the first FixedHeaderLength bytes of buf.
func PutFixedHeader(buf []byte, h FixedHeader) {
	buf[0] = byte(h.Version)
	buf[1] = byte(h.PacketType)
	binary.BigEndian.PutUint16(buf[2:4], h.TotalLength)
	buf[4] = h.HopLimit
	buf[5] = 0
	buf[6] = 0
	buf[7] = h.HeaderLength
}

// TotalPacketLength returns the full packet length declared by the fixed
// header at the start of buf. buf must contain at least FixedHeaderLength
// bytes. This is the direct analogue of metisTlv_TotalPacketLength: given
// just the first 8 bytes off the wire, a stream listener learns exactly how
// many more bytes to read to have a complete packet.
func TotalPacketLength(buf []byte) (int, error) {
	h, err := ParseFixedHeader(buf)
	if err != nil {
		return 0, err
	}
	return int(h.TotalLength), nil
}
