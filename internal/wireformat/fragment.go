package wireformat

import (
	"encoding/binary"
	"errors"
)

// FragmentFlag is the Begin/Middle/End marker in a hop-by-hop fragment
// header, used only on raw Ethernet links (spec §4.1, §6).
type FragmentFlag uint8

const (
	FragmentBegin  FragmentFlag = 0x01
	FragmentMiddle FragmentFlag = 0x02
	FragmentEnd    FragmentFlag = 0x04
)

// fragmentHeaderLen is the size of the FragmentHeader: flags(1) + reserved(1)
// + sequence(2).
const fragmentHeaderLen = 4

// ErrFragmentOverflow is returned when a fragment would push a set past
// MaxFragmentsPerSet; the offending fragment set is dropped. Exceeding
// MaxSetsPerPeer returns no error: the peer's oldest set is evicted instead.
// Resolves spec §9's open question: the original C implementation does not
// bound per-peer reassembly buffers, which is unsafe for a production
// rewrite, so Reassembler enforces MaxSetsPerPeer/MaxFragmentsPerSet.
var ErrFragmentOverflow = errors.New("wireformat: fragment reassembly buffer overflow")

// ParseFragmentHeader reads the 4-byte hop-by-hop fragment header at the
// start of buf.
func ParseFragmentHeader(buf []byte) (flags FragmentFlag, seq uint16, body []byte, err error) {
	if len(buf) < fragmentHeaderLen {
		return 0, 0, nil, ErrMalformedPacket
	}
	flags = FragmentFlag(buf[0])
	seq = binary.BigEndian.Uint16(buf[2:4])
	return flags, seq, buf[fragmentHeaderLen:], nil
}

// PutFragmentHeader encodes a fragment header into buf (must be at least
// fragmentHeaderLen bytes).
func PutFragmentHeader(buf []byte, flags FragmentFlag, seq uint16) {
	buf[0] = byte(flags)
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], seq)
}

// fragmentSet accumulates the pieces of one in-flight fragmented packet
// from a single peer MAC.
type fragmentSet struct {
	pieces   map[uint16][]byte
	began    bool
	complete bool
	endSeen  bool
	end      uint16
	total    int
}

// Reassembler reassembles hop-by-hop fragmented Ethernet packets, keyed by
// peer MAC address, with a hard bound on both the number of concurrent
// fragment sets per peer and the number of fragments accepted into any one
// set. Both bounds are policy choices (spec §9 open question); defaults are
// generous enough for normal reordering/loss without letting a hostile or
// buggy peer exhaust memory.
type Reassembler struct {
	MaxSetsPerPeer      int
	MaxFragmentsPerSet  int

	peers map[[6]byte]map[uint16]*fragmentSet // peer -> first-seq -> set
	order map[[6]byte][]uint16                // per-peer insertion order, for LRU eviction
}

// DefaultMaxSetsPerPeer and DefaultMaxFragmentsPerSet are the bounds used
// when a Reassembler is constructed with NewReassembler's zero-value
// defaults.
const (
	DefaultMaxSetsPerPeer     = 64
	DefaultMaxFragmentsPerSet = 256
)

// NewReassembler constructs a Reassembler with the default bounds.
func NewReassembler() *Reassembler {
	return &Reassembler{
		MaxSetsPerPeer:     DefaultMaxSetsPerPeer,
		MaxFragmentsPerSet: DefaultMaxFragmentsPerSet,
		peers:              make(map[[6]byte]map[uint16]*fragmentSet),
		order:              make(map[[6]byte][]uint16),
	}
}

// Feed offers one fragment from peer mac to the reassembler. When the
// fragment completes a set (an End fragment was received and all pieces
// from Begin..End are present), Feed returns the concatenated packet bytes
// and ok == true. Otherwise it returns ok == false while more fragments are
// awaited.
func (r *Reassembler) Feed(mac [6]byte, flags FragmentFlag, seq uint16, body []byte) ([]byte, bool, error) {
	sets, ok := r.peers[mac]
	if !ok {
		sets = make(map[uint16]*fragmentSet)
		r.peers[mac] = sets
	}

	// A Begin fragment starts a new set keyed by its own sequence number;
	// Middle/End fragments must find the set that is still missing pieces.
	var key uint16
	var set *fragmentSet
	if flags&FragmentBegin != 0 {
		key = seq
		set = &fragmentSet{pieces: make(map[uint16][]byte)}
		if len(sets) >= r.MaxSetsPerPeer {
			r.evictOldest(mac)
		}
		sets[key] = set
		r.order[mac] = append(r.order[mac], key)
	} else {
		set, key = r.findOpenSet(sets)
		if set == nil {
			// Middle/End fragment with no matching Begin: drop silently,
			// matching spec's "no per-operation retry" failure semantics.
			return nil, false, nil
		}
	}

	if len(set.pieces) >= r.MaxFragmentsPerSet {
		delete(sets, key)
		return nil, false, ErrFragmentOverflow
	}
	set.pieces[seq] = append([]byte(nil), body...)
	set.total += len(body)
	if flags&FragmentEnd != 0 {
		set.endSeen = true
		set.end = seq
	}
	// The set is complete once End has arrived and every sequence number
	// from Begin (key) through End is present.
	if set.endSeen && len(set.pieces) == int(set.end-key)+1 {
		set.complete = true
	}

	if !set.complete {
		return nil, false, nil
	}

	out, ok := assemble(set)
	delete(sets, key)
	if !ok {
		return nil, false, ErrMalformedPacket
	}
	return out, true, nil
}

func (r *Reassembler) findOpenSet(sets map[uint16]*fragmentSet) (*fragmentSet, uint16) {
	for k, s := range sets {
		if !s.complete {
			return s, k
		}
	}
	return nil, 0
}

func (r *Reassembler) evictOldest(mac [6]byte) {
	order := r.order[mac]
	if len(order) == 0 {
		return
	}
	oldest := order[0]
	r.order[mac] = order[1:]
	delete(r.peers[mac], oldest)
}

// assemble concatenates a complete set's fragments in sequence order.
func assemble(set *fragmentSet) ([]byte, bool) {
	seqs := make([]uint16, 0, len(set.pieces))
	for s := range set.pieces {
		seqs = append(seqs, s)
	}
	// insertion sort: fragment counts are bounded (MaxFragmentsPerSet) and
	// small, so this is cheap and avoids pulling in sort for a handful of
	// elements on the hot reassembly path.
	for i := 1; i < len(seqs); i++ {
		for j := i; j > 0 && seqs[j-1] > seqs[j]; j-- {
			seqs[j-1], seqs[j] = seqs[j], seqs[j-1]
		}
	}
	out := make([]byte, 0, set.total)
	for _, s := range seqs {
		out = append(out, set.pieces[s]...)
	}
	return out, true
}
