package pit

import (
	"testing"

	"github.com/PARC/Metis/internal/wireformat"
)

func testName(s string) wireformat.Name {
	return wireformat.NewName([]wireformat.Segment{{Type: wireformat.TypeNameSegment, Value: []byte(s)}})
}

func TestReceiveNewThenAggregated(t *testing.T) {
	tbl := NewTable(0)
	name := testName("foo")

	v, e, err := tbl.Receive(name, nil, nil, 2, 0, 10)
	if err != nil || v != VerdictNew {
		t.Fatalf("expected NEW, got %v err=%v", v, err)
	}
	if len(e.Ingress) != 1 {
		t.Fatalf("expected 1 ingress, got %d", len(e.Ingress))
	}

	v, e2, err := tbl.Receive(name, nil, nil, 3, 0, 10)
	if err != nil || v != VerdictAggregated {
		t.Fatalf("expected AGGREGATED, got %v err=%v", v, err)
	}
	if e2 != e {
		t.Fatal("expected the same entry to be returned")
	}
	if len(e.Ingress) != 2 {
		t.Fatalf("expected |ingress|=2 after aggregation, got %d", len(e.Ingress))
	}
}

func TestReceiveRetransmissionStillAggregated(t *testing.T) {
	tbl := NewTable(0)
	name := testName("foo")
	tbl.Receive(name, nil, nil, 2, 0, 10)
	v, _, _ := tbl.Receive(name, nil, nil, 2, 0, 10)
	if v != VerdictAggregated {
		t.Fatalf("expected retransmission to be AGGREGATED, got %v", v)
	}
}

// A retransmission from a connection already in Ingress must stay
// AGGREGATED and leave Expiry untouched, even when its declared lifetime
// would push the expiry further out than the first Interest did (spec
// §4.3 step 5, as distinct from step 4's brand-new-ingress EXTENDED path).
func TestReceiveRetransmissionWithLongerLifetimeDoesNotExtend(t *testing.T) {
	tbl := NewTable(0)
	name := testName("foo")
	_, e, _ := tbl.Receive(name, nil, nil, 2, 0, 10)
	if e.Expiry != 10 {
		t.Fatalf("expected initial expiry 10, got %d", e.Expiry)
	}
	v, e2, _ := tbl.Receive(name, nil, nil, 2, 5, 50)
	if v != VerdictAggregated {
		t.Fatalf("expected retransmission with longer lifetime to stay AGGREGATED, got %v", v)
	}
	if e2.Expiry != 10 {
		t.Fatalf("expected expiry to remain 10 for a known-ingress retransmission, got %d", e2.Expiry)
	}
}

func TestReceiveExtendsExpiry(t *testing.T) {
	tbl := NewTable(0)
	name := testName("foo")
	_, e, _ := tbl.Receive(name, nil, nil, 1, 0, 10)
	if e.Expiry != 10 {
		t.Fatalf("expected expiry 10, got %d", e.Expiry)
	}
	v, e2, _ := tbl.Receive(name, nil, nil, 2, 5, 20)
	if v != VerdictExtended {
		t.Fatalf("expected EXTENDED, got %v", v)
	}
	if e2.Expiry != 25 {
		t.Fatalf("expected expiry extended to 25, got %d", e2.Expiry)
	}
}

func TestSatisfyUnionsAndDeletesAcrossIndexes(t *testing.T) {
	tbl := NewTable(0)
	name := testName("bar")
	tbl.Receive(name, nil, nil, 2, 0, 10) // aggregation scenario: conn2 and conn3
	tbl.Receive(name, nil, nil, 3, 0, 10)

	egress := tbl.Satisfy(name, nil, nil)
	if len(egress) != 2 {
		t.Fatalf("expected 2 egress connections, got %d", len(egress))
	}
	for _, c := range []wireformat.ConnectionID{2, 3} {
		if _, ok := egress[c]; !ok {
			t.Fatalf("expected conn %d in egress set", c)
		}
	}
	if tbl.Len() != 0 {
		t.Fatal("expected matched entries to be deleted")
	}
}

func TestSatisfyWithNoMatchIsEmpty(t *testing.T) {
	tbl := NewTable(0)
	egress := tbl.Satisfy(testName("nomatch"), nil, nil)
	if len(egress) != 0 {
		t.Fatal("expected empty egress set for unsolicited object")
	}
}

func TestRemoveConnectionSweepsIngressAndEgress(t *testing.T) {
	tbl := NewTable(0)
	name := testName("baz")
	_, e, _ := tbl.Receive(name, nil, nil, 5, 0, 10)
	e.Egress[9] = struct{}{}

	tbl.RemoveConnection(5)
	if tbl.Len() != 0 {
		t.Fatal("expected entry to be dropped once its only ingress connection is swept")
	}
}

func TestExpireBeforeRemovesOnlyDueEntries(t *testing.T) {
	tbl := NewTable(0)
	tbl.Receive(testName("early"), nil, nil, 1, 0, 10)
	tbl.Receive(testName("late"), nil, nil, 2, 0, 100)

	expired := tbl.ExpireBefore(11)
	if len(expired) != 1 {
		t.Fatalf("expected 1 expired entry, got %d", len(expired))
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", tbl.Len())
	}
	next, ok := tbl.NextExpiry()
	if !ok || next != 100 {
		t.Fatalf("expected next expiry 100, got %d ok=%v", next, ok)
	}
}

func TestReceiveOverflow(t *testing.T) {
	tbl := NewTable(1)
	if _, _, err := tbl.Receive(testName("a"), nil, nil, 1, 0, 10); err != nil {
		t.Fatalf("first receive should succeed: %v", err)
	}
	if _, _, err := tbl.Receive(testName("b"), nil, nil, 1, 0, 10); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestRemoveDropsFreshEntryOnNoRoute(t *testing.T) {
	tbl := NewTable(0)
	_, e, _ := tbl.Receive(testName("noroute"), nil, nil, 1, 0, 10)
	tbl.Remove(e)
	if tbl.Len() != 0 {
		t.Fatalf("expected entry removed, got len %d", tbl.Len())
	}
	if _, ok := tbl.NextExpiry(); ok {
		t.Fatal("expected no pending expiry after removal")
	}
}

func TestHashRestrictionTakesPrecedenceOverKeyID(t *testing.T) {
	tbl := NewTable(0)
	name := testName("restricted")
	hash := []byte("objecthash")
	kid := []byte("keyid")

	_, e1, _ := tbl.Receive(name, kid, hash, 1, 0, 10)
	if e1.k.restriction != restrictHash {
		t.Fatal("expected hash restriction to win over keyid")
	}
	// a second interest with the same name but only keyid must not
	// aggregate onto the hash-restricted entry: it is a distinct key.
	_, e2, _ := tbl.Receive(name, kid, nil, 2, 0, 10)
	if e2 == e1 {
		t.Fatal("keyid-restricted interest must not aggregate onto a hash-restricted entry")
	}
}
