package encoding

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/spacemeshos/gluon/common/types"
)

// SortedIndex encodes an identifier as its big-endian position among the
// sorted set of values. Both sides must hold the same value set.
type SortedIndex struct {
	width  int
	sorted []types.Hash32
	pos    map[types.Hash32]int
}

var _ IDScheme = (*SortedIndex)(nil)

// NewSortedIndex sorts a copy of values. width must be large enough to hold
// len(values)-1.
func NewSortedIndex(values []types.Hash32, width int) (*SortedIndex, error) {
	if width <= 0 || width > 4 {
		return nil, fmt.Errorf("%w: index width %d", ErrBadLength, width)
	}
	if len(values) > 1<<(8*width) {
		return nil, fmt.Errorf("%w: %d values do not fit %d bytes", ErrBadLength, len(values), width)
	}
	s := &SortedIndex{
		width:  width,
		sorted: slices.Clone(values),
		pos:    make(map[types.Hash32]int, len(values)),
	}
	slices.SortFunc(s.sorted, func(a, b types.Hash32) int {
		return bytes.Compare(a[:], b[:])
	})
	s.sorted = slices.Compact(s.sorted)
	for i, v := range s.sorted {
		s.pos[v] = i
	}
	return s, nil
}

// IndexWidth returns the number of bytes needed to index n values.
func IndexWidth(n int) int {
	width := 1
	for width < 4 && n > 1<<(8*width) {
		width++
	}
	return width
}

// Size returns the index width.
func (s *SortedIndex) Size() int { return s.width }

// Encode writes the position of id. id must be one of the values.
func (s *SortedIndex) Encode(id types.Hash32) []byte {
	i, ok := s.pos[id]
	if !ok {
		panic(fmt.Sprintf("BUG: %s is not indexed", id.ShortString()))
	}
	out := make([]byte, s.width)
	for j := s.width - 1; j >= 0; j-- {
		out[j] = byte(i)
		i >>= 8
	}
	return out
}

// Decode reads a position.
func (s *SortedIndex) Decode(key []byte) (types.Hash32, error) {
	if len(key) != s.width {
		return types.Hash32{}, fmt.Errorf("%w: got %d, want %d", ErrBadLength, len(key), s.width)
	}
	i := 0
	for _, b := range key {
		i = i<<8 | int(b)
	}
	if i >= len(s.sorted) {
		return types.Hash32{}, fmt.Errorf("%w: index %d", ErrUnknownIdentifier, i)
	}
	return s.sorted[i], nil
}
