// Package membership is the probabilistic pre-filter: no false negatives,
// false positives at a configured rate.
package membership

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bits-and-blooms/bloom/v3"
)

// MaxBits bounds the size of a deserialized filter.
const MaxBits = 1 << 27

var ErrFilterTooLarge = errors.New("membership: filter too large")

// Filter wraps a bloom filter.
type Filter struct {
	bf *bloom.BloomFilter
}

// New creates a filter sized for capacity items at errorRate false positives.
func New(capacity int, errorRate float64) *Filter {
	if capacity < 1 {
		capacity = 1
	}
	return &Filter{bf: bloom.NewWithEstimates(uint(capacity), errorRate)}
}

// Add inserts item.
func (f *Filter) Add(item []byte) {
	f.bf.Add(item)
}

// Contains reports whether item may have been added.
func (f *Filter) Contains(item []byte) bool {
	return f.bf.Test(item)
}

// Bits returns the size of the bit array.
func (f *Filter) Bits() uint { return f.bf.Cap() }

// NumHashes returns the number of hash functions.
func (f *Filter) NumHashes() uint { return f.bf.K() }

// MarshalBinary implements encoding.BinaryMarshaler.
func (f *Filter) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.bf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize bloom filter: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a serialized filter.
func Unmarshal(data []byte) (*Filter, error) {
	var bf bloom.BloomFilter
	r := bytes.NewReader(data)
	if _, err := bf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("deserialize bloom filter: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("deserialize bloom filter: %d trailing bytes", r.Len())
	}
	if bf.Cap() == 0 || bf.Cap() > MaxBits || bf.K() == 0 {
		return nil, fmt.Errorf("%w: bits=%d hashes=%d", ErrFilterTooLarge, bf.Cap(), bf.K())
	}
	return &Filter{bf: &bf}, nil
}
