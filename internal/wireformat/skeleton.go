package wireformat

import "crypto/sha256"

// Kind classifies a parsed packet for dispatch by the message processor.
type Kind int

const (
	KindInterest Kind = iota
	KindContentObject
	KindControl
	KindInterestReturn
)

func kindFromPacketType(pt PacketType) (Kind, error) {
	switch pt {
	case PacketTypeInterest:
		return KindInterest, nil
	case PacketTypeContentObject:
		return KindContentObject, nil
	case PacketTypeControl:
		return KindControl, nil
	case PacketTypeInterestReturn:
		return KindInterestReturn, nil
	default:
		return 0, ErrMalformedPacket
	}
}

// Skeleton holds byte-extents into the original packet buffer for every
// field the forwarder needs to inspect repeatedly. It is built once, at
// ingress, in a single forward pass; every later lookup slices the extent
// out of the same backing buffer rather than re-parsing.
type Skeleton struct {
	Header  FixedHeader
	Kind    Kind
	Version Version

	Name              Extent
	NameExtents       []Extent // per-segment extents within Name, for prefix ops
	KeyId             Extent
	ObjectHash        Extent
	Payload           Extent
	InterestLifetime  Extent
	RecommendedCache  Extent
	ExpiryTime        Extent
	HopLimit          Extent
	CacheControl      Extent
	ControlMessage    Extent
	DoNotCache        bool

	name        Name
	nameParsed  bool
	objHash     [sha256.Size]byte
	objHashSet  bool
}

// Build parses buf (a complete, framed packet: exactly Header.TotalLength
// bytes) into a Skeleton. Both V0 and V1 fixed headers share the same
// layout (spec §4.1), and Build handles both with the same top-level TLV
// walk (walkBody); any other version is rejected as malformed.
func Build(buf []byte) (Skeleton, error) {
	h, err := ParseFixedHeader(buf)
	if err != nil {
		return Skeleton{}, err
	}
	if int(h.TotalLength) != len(buf) {
		return Skeleton{}, ErrMalformedPacket
	}
	if int(h.HeaderLength) > len(buf) {
		return Skeleton{}, ErrMalformedPacket
	}
	kind, err := kindFromPacketType(h.PacketType)
	if err != nil {
		return Skeleton{}, err
	}

	sk := Skeleton{Header: h, Kind: kind, Version: h.Version}

	switch h.Version {
	case VersionV0, VersionV1:
		if err := sk.walkBody(buf); err != nil {
			return Skeleton{}, err
		}
	default:
		return Skeleton{}, ErrMalformedPacket
	}

	if kind == KindInterest && !sk.Name.Present() {
		return Skeleton{}, ErrMalformedPacket
	}
	if kind == KindControl && !sk.ControlMessage.Present() {
		return Skeleton{}, ErrMalformedPacket
	}
	return sk, nil
}

// walkBody performs the single forward pass over the per-hop-header block
// and message body, recording the extent of every TLV it recognises and
// skipping unknown ones by their declared length. V0 and V1 packets are
// walked identically at this layer; the original codec's schema split
// lives entirely in which types map to which field, which is identical
// between the two versions in this implementation (spec: "both produce
// the same logical skeleton fields").
func (sk *Skeleton) walkBody(buf []byte) error {
	off := int(sk.Header.HeaderLength)
	total := len(buf)
	for off < total {
		typ, length, ok := readTLVHeader(buf, off)
		if !ok {
			return ErrMalformedPacket
		}
		valueOff := off + tlvHeaderLen
		if valueOff+length > total {
			return ErrMalformedPacket
		}
		ext := newExtent(valueOff, length)
		switch typ {
		case TypeName:
			sk.Name = ext
			name, nameExtents, err := ParseName(buf[valueOff : valueOff+length])
			if err != nil {
				return err
			}
			sk.name = name
			sk.nameParsed = true
			sk.NameExtents = absoluteExtents(nameExtents, valueOff)
		case TypeKeyId:
			sk.KeyId = ext
		case TypeObjectHash:
			sk.ObjectHash = ext
		case TypeContentObjectPayload:
			sk.Payload = ext
		case TypeInterestLifetime:
			sk.InterestLifetime = ext
		case TypeRecommendedCacheTime:
			sk.RecommendedCache = ext
		case TypeExpiryTime:
			sk.ExpiryTime = ext
		case TypeHopLimit:
			sk.HopLimit = ext
		case TypeCacheControl:
			sk.CacheControl = ext
		case TypeControlMessage:
			sk.ControlMessage = ext
		case TypeDoNotCache:
			sk.DoNotCache = true
		default:
			// unknown TLV: skip using its declared length, per spec.
		}
		off = valueOff + length
	}
	return nil
}

func absoluteExtents(rel []Extent, base int) []Extent {
	out := make([]Extent, len(rel))
	for i, e := range rel {
		out[i] = newExtent(int(e.Offset)+base, int(e.Length))
	}
	return out
}

// ParsedName returns the parsed Name, if this packet carried one.
func (sk Skeleton) ParsedName() (Name, bool) {
	return sk.name, sk.nameParsed
}

// ComputeObjectHash computes and caches the SHA-256 hash of buf from the
// end of headers through the end of the packet, per spec §4.1: "Computed
// on demand ... Cached on the Message once computed." Stdlib crypto/sha256
// is used directly since the wire format mandates this exact algorithm;
// there is no ecosystem choice to make here.
func (sk *Skeleton) ComputeObjectHash(buf []byte) [sha256.Size]byte {
	if !sk.objHashSet {
		sk.objHash = sha256.Sum256(buf[sk.Header.HeaderLength:])
		sk.objHashSet = true
	}
	return sk.objHash
}
