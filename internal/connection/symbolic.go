package connection

import (
	"math"
	"sync"

	"github.com/PARC/Metis/internal/wireformat"
)

// NoConnection is the sentinel returned by SymbolicTable.Lookup when the
// requested name is not registered, per spec §4.7.
const NoConnection = wireformat.ConnectionID(math.MaxUint32)

// SymbolicTable maps user-chosen alphanumeric aliases (e.g. "conn7") to
// connection ids, per spec §4.7. Names must begin with a letter and
// contain only alphanumerics; they are unique.
type SymbolicTable struct {
	mu    sync.Mutex
	names map[string]wireformat.ConnectionID
}

// NewSymbolicTable constructs an empty SymbolicTable.
func NewSymbolicTable() *SymbolicTable {
	return &SymbolicTable{names: make(map[string]wireformat.ConnectionID)}
}

// ValidName reports whether name begins with a letter and contains only
// letters and digits, per spec §4.7.
func ValidName(name string) bool {
	if len(name) == 0 {
		return false
	}
	if !isLetter(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !isLetter(c) && !isDigit(c) {
			return false
		}
	}
	return true
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Add registers name -> id. Returns false if name is invalid or already
// registered (spec: "Names are unique (add returns false on duplicate)").
func (s *SymbolicTable) Add(name string, id wireformat.ConnectionID) bool {
	if !ValidName(name) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.names[name]; exists {
		return false
	}
	s.names[name] = id
	return true
}

// Remove unregisters name, if present.
func (s *SymbolicTable) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.names, name)
}

// Lookup returns the connection id registered under name, or NoConnection
// if name is not registered.
func (s *SymbolicTable) Lookup(name string) wireformat.ConnectionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.names[name]
	if !ok {
		return NoConnection
	}
	return id
}
