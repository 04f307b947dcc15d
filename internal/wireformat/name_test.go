package wireformat

import "testing"

func TestNamePrefixHashLaw(t *testing.T) {
	segs := []Segment{
		{Type: TypeNameSegment, Value: []byte("help")},
		{Type: TypeNameSegment, Value: []byte("me")},
		{Type: TypeNameSegment, Value: []byte("understand")},
	}
	n := NewName(segs)
	for k := 1; k <= n.Len(); k++ {
		prefix := n.Prefix(k)
		if prefix.Hash() != n.PrefixHash(k) {
			t.Fatalf("prefix(%d) hash %d != PrefixHash(%d) %d", k, prefix.Hash(), k, n.PrefixHash(k))
		}
	}
}

func TestNameIsPrefixOf(t *testing.T) {
	a := NewName([]Segment{{Type: TypeNameSegment, Value: []byte("a")}})
	ab := NewName([]Segment{
		{Type: TypeNameSegment, Value: []byte("a")},
		{Type: TypeNameSegment, Value: []byte("b")},
	})
	if !a.IsPrefixOf(ab) {
		t.Fatal("expected a to be a prefix of a/b")
	}
	if ab.IsPrefixOf(a) {
		t.Fatal("a/b must not be a prefix of a")
	}
}

func TestNameEqualityAndHashStability(t *testing.T) {
	n1 := NewName([]Segment{{Type: TypeNameSegment, Value: []byte("foo")}})
	n2 := NewName([]Segment{{Type: TypeNameSegment, Value: []byte("foo")}})
	if !n1.Equal(n2) {
		t.Fatal("identical segments should be Equal")
	}
	if n1.Hash() != n2.Hash() {
		t.Fatal("identical names must hash identically")
	}
}

func TestParseNameEncodeNameRoundTrip(t *testing.T) {
	segs := []Segment{
		{Type: TypeNameSegment, Value: []byte("apple")},
		{Type: TypeNameSegment, Value: []byte("pie")},
	}
	n := NewName(segs)
	encoded := EncodeName(n)

	reparsed, extents, err := ParseName(encoded)
	if err != nil {
		t.Fatalf("ParseName: %v", err)
	}
	if !reparsed.Equal(n) {
		t.Fatal("round-tripped name does not match original")
	}
	if len(extents) != len(segs) {
		t.Fatalf("expected %d extents, got %d", len(segs), len(extents))
	}
	if extents[1].Offset != uint32(tlvHeaderLen+len(segs[0].Value)) {
		t.Fatalf("unexpected second segment extent offset: %+v", extents[1])
	}
}

func TestParseNameRejectsTruncatedTLV(t *testing.T) {
	buf := []byte{0x00, 0x01, 0x00, 0x05, 'a', 'b'} // declares length 5, only 2 bytes present
	if _, _, err := ParseName(buf); err != ErrMalformedPacket {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
}
