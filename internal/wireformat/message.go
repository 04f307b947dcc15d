package wireformat

// ConnectionID is the dense, never-reused-during-process-lifetime
// identifier for a connection-table entry. Defined here (rather than in
// package connection) so that Message, PIT and FIB can all reference it
// without importing the connection table itself, avoiding the back-pointer
// cycles spec §9 warns against.
type ConnectionID uint32

// Tick is the dispatcher's monotonic time unit (spec §4.6).
type Tick uint64

// Message is a reference-counted, immutable wrapper over a packet's raw
// wire bytes plus its precomputed Skeleton. PIT and the content store both
// hold references to the same Message; the processor that builds it is the
// first owner. Mutation discipline: once built, a Message's Buf is never
// written to again, except for the single hop-limit byte that SetHopLimit
// overwrites in place.
type Message struct {
	Buf      []byte
	Skeleton Skeleton

	IngressTick Tick
	IngressConn ConnectionID

	refs int32
}

// NewMessage builds a Message from a framed packet buffer, ingress tick and
// ingress connection id. Build failures are the caller's (listener's)
// responsibility to surface as MalformedPacket.
func NewMessage(buf []byte, sk Skeleton, ingressTick Tick, ingressConn ConnectionID) *Message {
	return &Message{
		Buf:         buf,
		Skeleton:    sk,
		IngressTick: ingressTick,
		IngressConn: ingressConn,
		refs:        1,
	}
}

// Clone deep-copies the packet buffer and carries the already-computed
// Skeleton over unchanged (its extents are byte offsets/lengths, valid for
// any buffer with the same layout). Used by the processor when a single
// ingress packet fans out to multiple nexthops and each copy needs an
// independently mutable hop-limit byte (spec §4.7 step 4: hop-limit is
// decremented "per outgoing copy").
func (m *Message) Clone() *Message {
	return &Message{
		Buf:         append([]byte(nil), m.Buf...),
		Skeleton:    m.Skeleton,
		IngressTick: m.IngressTick,
		IngressConn: m.IngressConn,
		refs:        1,
	}
}

// Acquire increments the reference count, for a new owner (e.g. the PIT or
// content store) taking a hold on the message. Single-threaded dispatcher
// discipline (spec §5) means this never needs to be atomic.
func (m *Message) Acquire() *Message {
	m.refs++
	return m
}

// Release decrements the reference count. Callers must not dereference m
// after Release returns 0 remaining references. Per spec §5 "Mutation
// discipline": components remove their index entry referencing m before
// calling Release, so no other index is left holding a dangling pointer.
func (m *Message) Release() int32 {
	m.refs--
	return m.refs
}

// Name returns the parsed Name carried by the message, if any.
func (m *Message) Name() (Name, bool) {
	return m.Skeleton.ParsedName()
}

// HopLimit returns the packet's hop-limit value and whether the field was
// present at all (Ethernet Interests in particular always carry one).
func (m *Message) HopLimit() (uint8, bool) {
	ext := m.Skeleton.HopLimit
	if !ext.Present() || ext.Length == 0 {
		return 0, false
	}
	return ext.Slice(m.Buf)[0], true
}

// SetHopLimit overwrites the hop-limit byte in place. Valid only because
// the hop-limit field is a fixed single byte whose position never changes
// the packet's total length.
func (m *Message) SetHopLimit(v uint8) bool {
	ext := m.Skeleton.HopLimit
	if !ext.Present() || ext.Length == 0 {
		return false
	}
	ext.Slice(m.Buf)[0] = v
	return true
}

// InterestLifetimeMillis returns the interest's declared lifetime in
// milliseconds, if present. Converting it into ticks is the caller's job
// via the dispatcher's HZ constant.
func (m *Message) InterestLifetimeMillis() (uint64, bool) {
	ext := m.Skeleton.InterestLifetime
	if !ext.Present() {
		return 0, false
	}
	v, ok := varIntToUint64(ext.Slice(m.Buf))
	return v, ok
}

// RecommendedCacheTimeMillis returns the content object's recommended
// cache-time TLV value, if present.
func (m *Message) RecommendedCacheTimeMillis() (uint64, bool) {
	ext := m.Skeleton.RecommendedCache
	if !ext.Present() {
		return 0, false
	}
	v, ok := varIntToUint64(ext.Slice(m.Buf))
	return v, ok
}

// ExpiryTimeMillis returns the content object's absolute expiry-time TLV
// value (Unix millis), if present.
func (m *Message) ExpiryTimeMillis() (uint64, bool) {
	ext := m.Skeleton.ExpiryTime
	if !ext.Present() {
		return 0, false
	}
	v, ok := varIntToUint64(ext.Slice(m.Buf))
	return v, ok
}

// KeyID returns the raw KeyId TLV bytes, if present.
func (m *Message) KeyID() ([]byte, bool) {
	if !m.Skeleton.KeyId.Present() {
		return nil, false
	}
	return m.Skeleton.KeyId.Slice(m.Buf), true
}

// ObjectHashField returns the raw ObjectHash restriction bytes carried by
// an Interest (not to be confused with ComputeObjectHash, which computes
// the hash of a Content Object).
func (m *Message) ObjectHashField() ([]byte, bool) {
	if !m.Skeleton.ObjectHash.Present() {
		return nil, false
	}
	return m.Skeleton.ObjectHash.Slice(m.Buf), true
}

// CacheControlZero reports whether the CacheControl TLV is present and its
// varint value is exactly zero, which per spec §4.7 makes the object
// uncacheable regardless of any recommended cache time.
func (m *Message) CacheControlZero() bool {
	ext := m.Skeleton.CacheControl
	if !ext.Present() {
		return false
	}
	v, ok := varIntToUint64(ext.Slice(m.Buf))
	return ok && v == 0
}

// DoNotCache reports whether the packet carried an explicit
// "do-not-cache" TLV.
func (m *Message) DoNotCache() bool {
	return m.Skeleton.DoNotCache
}
