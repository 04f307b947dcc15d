// Package cstore implements the Content Store (spec §4.5): a bounded LRU
// cache of Content Objects indexed three ways so an Interest can be
// satisfied by its most-restrictive matching key, with expiry driven by a
// min-heap.
package cstore

import (
	"errors"

	"github.com/PARC/Metis/internal/wireformat"
)

// DefaultCapacity is the conservative default cache size, per spec §5
// resource caps.
const DefaultCapacity = 65536

// ErrDuplicate is returned by Put when the exact (Name,Hash) object is
// already cached; the existing entry is promoted to LRU front instead of
// being re-inserted.
var ErrDuplicate = errors.New("cstore: duplicate object")

type nameKey struct {
	hash uint32
	len  int
}

type kidKey struct {
	nameKey
	keyID string
}

type hashKey struct {
	nameKey
	objHash string
}

// entry is one content-store slot: the cached message plus its position in
// the LRU slab and the expiry heap.
type entry struct {
	msg     *wireformat.Message
	name    wireformat.Name
	keyID   []byte
	objHash []byte

	slabIdx   int
	expiry    wireformat.Tick
	heapIndex int
}

// Store is the Content Store.
type Store struct {
	Capacity int

	byName map[nameKey][]*entry
	byKid  map[kidKey]*entry
	byHash map[hashKey]*entry

	lru  *lruSlab
	slot map[int]*entry // slab index -> entry, the one owning map

	exp expHeap

	size int

	// DefaultCacheLifetime records the default cache lifetime the store was
	// constructed with. Store itself does not read it: Put takes an absolute
	// expiry already computed by the caller.
	DefaultCacheLifetime wireformat.Tick
}

// NewStore constructs a Store with the given capacity (DefaultCapacity if
// capacity <= 0) and a default cache lifetime in ticks.
func NewStore(capacity int, defaultCacheLifetime wireformat.Tick) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		Capacity:             capacity,
		byName:               make(map[nameKey][]*entry),
		byKid:                make(map[kidKey]*entry),
		byHash:               make(map[hashKey]*entry),
		lru:                  newLRUSlab(),
		slot:                 make(map[int]*entry),
		DefaultCacheLifetime: defaultCacheLifetime,
	}
}

// Len returns the number of cached objects.
func (s *Store) Len() int { return s.size }

func nKey(name wireformat.Name) nameKey {
	return nameKey{hash: name.Hash(), len: name.Len()}
}

// Put inserts msg's content object into the store, per spec §4.5. expiry
// is the absolute tick at which the object should be evicted (the caller,
// typically internal/processor, computes it as the current tick plus the
// recommended-cache-time if present, else the expiry-time, else its
// configured default; no minimum over these is taken).
func (s *Store) Put(msg *wireformat.Message, name wireformat.Name, keyID, objHash []byte, expiry wireformat.Tick) error {
	hk := hashKey{nameKey: nKey(name), objHash: string(objHash)}
	if existing, ok := s.byHash[hk]; ok {
		s.lru.moveToFront(existing.slabIdx)
		return ErrDuplicate
	}

	idx := s.lru.alloc()
	e := &entry{
		msg:     msg,
		name:    name,
		keyID:   append([]byte(nil), keyID...),
		objHash: append([]byte(nil), objHash...),
		slabIdx: idx,
		expiry:  expiry,
	}
	s.slot[idx] = e
	s.byHash[hk] = e
	if len(keyID) > 0 {
		s.byKid[kidKey{nameKey: nKey(name), keyID: string(keyID)}] = e
	}
	nk := nKey(name)
	s.byName[nk] = append(s.byName[nk], e)
	s.exp.push(e)
	s.size++
	msg.Acquire()

	for s.size > s.Capacity {
		s.evictLRUTail()
	}
	return nil
}

// Match looks up the most-restrictive key an Interest carries: ObjectHash
// first, then KeyId, then Name (picking the first matching entry), per
// spec §4.5. A hit is promoted to LRU front; an expired hit is evicted and
// reported as a miss.
func (s *Store) Match(name wireformat.Name, keyID, objHash []byte, now wireformat.Tick) (*wireformat.Message, bool) {
	switch {
	case len(objHash) > 0:
		hk := hashKey{nameKey: nKey(name), objHash: string(objHash)}
		e, ok := s.byHash[hk]
		if !ok {
			return nil, false
		}
		return s.hit(e, now)
	case len(keyID) > 0:
		kk := kidKey{nameKey: nKey(name), keyID: string(keyID)}
		e, ok := s.byKid[kk]
		if !ok {
			return nil, false
		}
		return s.hit(e, now)
	default:
		nk := nKey(name)
		entries := s.byName[nk]
		if len(entries) == 0 {
			return nil, false
		}
		return s.hit(entries[0], now)
	}
}

func (s *Store) hit(e *entry, now wireformat.Tick) (*wireformat.Message, bool) {
	if e.expiry <= now {
		s.remove(e)
		return nil, false
	}
	s.lru.moveToFront(e.slabIdx)
	return e.msg, true
}

// ExpireBefore evicts every entry whose expiry heap-top is <= now, per
// spec §4.5's periodic expiry timer.
func (s *Store) ExpireBefore(now wireformat.Tick) int {
	n := 0
	for {
		e, ok := s.exp.peek()
		if !ok || e.expiry > now {
			break
		}
		s.remove(e)
		n++
	}
	return n
}

func (s *Store) evictLRUTail() {
	idx := s.lru.lruTail()
	if idx == lruNil {
		return
	}
	s.remove(s.slot[idx])
}

// remove deletes e from all three indexes, the LRU slab and the expiry
// heap, releasing its message reference last (spec §5 mutation discipline:
// "remove from indexes before dropping the last reference").
func (s *Store) remove(e *entry) {
	hk := hashKey{nameKey: nKey(e.name), objHash: string(e.objHash)}
	delete(s.byHash, hk)
	if len(e.keyID) > 0 {
		delete(s.byKid, kidKey{nameKey: nKey(e.name), keyID: string(e.keyID)})
	}
	nk := nKey(e.name)
	list := s.byName[nk]
	for i, other := range list {
		if other == e {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.byName, nk)
	} else {
		s.byName[nk] = list
	}
	s.lru.remove(e.slabIdx)
	delete(s.slot, e.slabIdx)
	s.exp.remove(e)
	s.size--
	e.msg.Release()
}
