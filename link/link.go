// Package link defines the addressing primitive shared by the record/slab
// manager, the hash-map header, and the array map: an unsigned integer of
// configurable on-disk byte width with one reserved terminal value.
package link

import (
	"encoding/binary"
	"fmt"
)

// Link is an address into a body storage: either a byte offset (slab mode)
// or a record index (record mode). The interpretation is fixed at the
// manager that produced it, not at the type level, since the width W is a
// per-store runtime parameter (3-5 bytes in practice) rather than a Go type
// parameter - see spec §9 "Templates over link width and record stride".
type Link int64

// Width describes the little-endian on-disk byte width of a Link and the
// terminal sentinel that width implies.
type Width struct {
	Bytes int
}

// NewWidth validates and returns a Width for the given byte count.
func NewWidth(bytes int) (Width, error) {
	if bytes < 1 || bytes > 7 {
		return Width{}, fmt.Errorf("link width must be between 1 and 7 bytes, got %d", bytes)
	}
	return Width{Bytes: bytes}, nil
}

// Terminal returns the reserved all-ones sentinel for this width, denoting
// "none" or "end of chain".
func (w Width) Terminal() Link {
	return Link(int64(1)<<(8*uint(w.Bytes)) - 1)
}

// Max returns the largest non-terminal value a Link of this width can hold,
// i.e. the maximum number of addressable units minus one.
func (w Width) Max() Link {
	return w.Terminal() - 1
}

// Encode writes l little-endian into buf[:w.Bytes].
func (w Width) Encode(buf []byte, l Link) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(l))
	copy(buf[:w.Bytes], tmp[:w.Bytes])
}

// Decode reads a little-endian Link from buf[:w.Bytes].
func (w Width) Decode(buf []byte) Link {
	var tmp [8]byte
	copy(tmp[:w.Bytes], buf[:w.Bytes])
	return Link(binary.LittleEndian.Uint64(tmp[:]))
}

// IsTerminal reports whether l is the terminal sentinel for this width.
func (w Width) IsTerminal(l Link) bool {
	return l == w.Terminal()
}
