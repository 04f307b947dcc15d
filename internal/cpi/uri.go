package cpi

import (
	"errors"
	"strings"

	"github.com/PARC/Metis/internal/wireformat"
)

// ErrInvalidName is returned by ParseNameURI for a string that isn't a
// well-formed "ccnx:/a/b/c" name.
var ErrInvalidName = errors.New("cpi: invalid name URI")

const uriScheme = "ccnx:"

// ParseNameURI parses the human-readable form routes and connections are
// named with on the CLI (spec §6.5) into a wireformat.Name: an optional
// "ccnx:" scheme, followed by '/'-separated segments, each becoming one
// TypeNameSegment component. "ccnx:/" and "/" both parse to the empty
// (root) name.
func ParseNameURI(s string) (wireformat.Name, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, uriScheme)
	if !strings.HasPrefix(s, "/") {
		return wireformat.Name{}, ErrInvalidName
	}
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return wireformat.NewName(nil), nil
	}
	parts := strings.Split(s, "/")
	segs := make([]wireformat.Segment, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return wireformat.Name{}, ErrInvalidName
		}
		segs = append(segs, wireformat.Segment{Type: wireformat.TypeNameSegment, Value: []byte(p)})
	}
	return wireformat.NewName(segs), nil
}

// NameURI renders name back to its "ccnx:/a/b/c" string form, the inverse
// of ParseNameURI, for route/snapshot listings.
func NameURI(name wireformat.Name) string {
	var b strings.Builder
	b.WriteString(uriScheme)
	for i := 0; i < name.Len(); i++ {
		b.WriteByte('/')
		b.Write(name.Segment(i).Value)
	}
	if name.Len() == 0 {
		b.WriteByte('/')
	}
	return b.String()
}
