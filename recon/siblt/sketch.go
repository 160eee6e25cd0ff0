// Package siblt implements a slim invertible bloom lookup table: a fixed-size
// table of count / key-xor / checksum-xor cells that recovers the symmetric
// difference of two key sets by peeling.
package siblt

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/spacemeshos/gluon/common/util"
	"github.com/spacemeshos/gluon/hash"
)

const (
	// DefaultNumHashes is the number of cells each key is mapped to.
	DefaultNumHashes = 4
	// DefaultChecksumSize is the number of checksum bytes kept per cell.
	DefaultChecksumSize = 4
	// MaxKeySize bounds key length so that a pair of full hashes still fits.
	MaxKeySize = 2 * hash.Size
)

var (
	// ErrSizeMismatch is returned when combining sketches of different shape.
	ErrSizeMismatch = errors.New("siblt: sketch shape mismatch")
	// ErrKeySize is returned when a key of the wrong length is inserted.
	ErrKeySize = errors.New("siblt: bad key size")
)

// Status is the outcome of peeling.
type Status int

const (
	// Fail means cells remained after no pure cell was left.
	Fail Status = iota
	// Success means the table was fully drained.
	Success
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("<unknown status %d>", int(s))
	}
}

type cell struct {
	count    int32
	key      []byte
	checksum []byte
}

func (c *cell) toggle(key, checksum []byte, delta int32) {
	c.count += delta
	util.XorInto(c.key, key)
	util.XorInto(c.checksum, checksum)
}

func (c *cell) isZero() bool {
	return c.count == 0 && util.IsZero(c.key) && util.IsZero(c.checksum)
}

// Sketch is the cell table. The zero value is not usable, see New.
type Sketch struct {
	numHashes    int
	keySize      int
	checksumSize int
	cells        []cell
}

// New creates a zeroed sketch.
func New(numCells, keySize, checksumSize, numHashes int) *Sketch {
	switch {
	case numCells <= 0:
		panic(fmt.Sprintf("BUG: siblt: bad cell count %d", numCells))
	case keySize <= 0 || keySize > MaxKeySize:
		panic(fmt.Sprintf("BUG: siblt: bad key size %d", keySize))
	case checksumSize <= 0 || checksumSize > hash.Size:
		panic(fmt.Sprintf("BUG: siblt: bad checksum size %d", checksumSize))
	case numHashes <= 0 || numHashes > 255:
		panic(fmt.Sprintf("BUG: siblt: bad hash count %d", numHashes))
	}
	s := &Sketch{
		numHashes:    numHashes,
		keySize:      keySize,
		checksumSize: checksumSize,
		cells:        make([]cell, numCells),
	}
	// keys and checksums of all cells share two backing arrays
	keys := make([]byte, numCells*keySize)
	sums := make([]byte, numCells*checksumSize)
	for i := range s.cells {
		s.cells[i].key = keys[i*keySize : (i+1)*keySize : (i+1)*keySize]
		s.cells[i].checksum = sums[i*checksumSize : (i+1)*checksumSize : (i+1)*checksumSize]
	}
	return s
}

// NumCells returns the table size.
func (s *Sketch) NumCells() int { return len(s.cells) }

// KeySize returns the length of the keys stored in the sketch.
func (s *Sketch) KeySize() int { return s.keySize }

// ChecksumSize returns the length of per-cell checksums.
func (s *Sketch) ChecksumSize() int { return s.checksumSize }

// NumHashes returns the number of cells each key is mapped to.
func (s *Sketch) NumHashes() int { return s.numHashes }

// Clone returns a deep copy.
func (s *Sketch) Clone() *Sketch {
	c := New(len(s.cells), s.keySize, s.checksumSize, s.numHashes)
	for i := range s.cells {
		c.cells[i].count = s.cells[i].count
		copy(c.cells[i].key, s.cells[i].key)
		copy(c.cells[i].checksum, s.cells[i].checksum)
	}
	return c
}

// index maps key to a cell for hash function i. Both peers must agree on it.
func (s *Sketch) index(i int, key []byte) int {
	return int(murmur3.Sum32WithSeed(key, uint32(i)) % uint32(len(s.cells)))
}

// indices returns the distinct cells key is mapped to.
func (s *Sketch) indices(key []byte, buf []int) []int {
	buf = buf[:0]
outer:
	for i := 0; i < s.numHashes; i++ {
		idx := s.index(i, key)
		for _, prev := range buf {
			if prev == idx {
				continue outer
			}
		}
		buf = append(buf, idx)
	}
	return buf
}

func (s *Sketch) checksum(key []byte) []byte {
	return hash.Truncated(key, s.checksumSize)
}

func (s *Sketch) apply(key []byte, delta int32, buf []int) []int {
	sum := s.checksum(key)
	buf = s.indices(key, buf)
	for _, idx := range buf {
		s.cells[idx].toggle(key, sum, delta)
	}
	return buf
}

// Insert adds a single key.
func (s *Sketch) Insert(key []byte) error {
	if len(key) != s.keySize {
		return fmt.Errorf("%w: got %d, want %d", ErrKeySize, len(key), s.keySize)
	}
	s.apply(key, 1, make([]int, 0, s.numHashes))
	return nil
}

// Encode adds every key.
func (s *Sketch) Encode(keys [][]byte) error {
	buf := make([]int, 0, s.numHashes)
	for _, key := range keys {
		if len(key) != s.keySize {
			return fmt.Errorf("%w: got %d, want %d", ErrKeySize, len(key), s.keySize)
		}
		buf = s.apply(key, 1, buf)
	}
	return nil
}

// Subtract removes other from s cell by cell. Afterwards s represents the
// difference: keys only in s carry count +1, keys only in other -1.
func (s *Sketch) Subtract(other *Sketch) error {
	if len(s.cells) != len(other.cells) ||
		s.keySize != other.keySize ||
		s.checksumSize != other.checksumSize ||
		s.numHashes != other.numHashes {
		return fmt.Errorf("%w: %s vs %s", ErrSizeMismatch, s.shape(), other.shape())
	}
	for i := range s.cells {
		s.cells[i].toggle(other.cells[i].key, other.cells[i].checksum, -other.cells[i].count)
	}
	return nil
}

func (s *Sketch) shape() string {
	return fmt.Sprintf("cells=%d key=%d checksum=%d hashes=%d",
		len(s.cells), s.keySize, s.checksumSize, s.numHashes)
}

func (s *Sketch) isPure(i int) bool {
	c := &s.cells[i]
	if c.count != 1 && c.count != -1 {
		return false
	}
	return bytes.Equal(c.checksum, s.checksum(c.key))
}

// IsEmpty reports whether every cell is zeroed.
func (s *Sketch) IsEmpty() bool {
	for i := range s.cells {
		if !s.cells[i].isZero() {
			return false
		}
	}
	return true
}

// Decode peels the sketch. Keys from pure cells with positive count are
// returned in left, negative in right. The sketch itself is left untouched.
// Only Success results are complete; on Fail the lists are partial.
func (s *Sketch) Decode() (status Status, left, right [][]byte) {
	work := s.Clone()
	queue := make([]int, 0, len(work.cells))
	for i := range work.cells {
		if work.isPure(i) {
			queue = append(queue, i)
		}
	}
	buf := make([]int, 0, work.numHashes)
	// a genuine difference can not hold more keys than there are cells
	budget := len(work.cells) * work.numHashes
	for len(queue) > 0 && budget > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if !work.isPure(i) {
			continue
		}
		budget--
		c := &work.cells[i]
		key := util.CopyBytes(c.key)
		sign := c.count
		if sign > 0 {
			left = append(left, key)
		} else {
			right = append(right, key)
		}
		buf = work.apply(key, -sign, buf)
		for _, idx := range buf {
			if work.isPure(idx) {
				queue = append(queue, idx)
			}
		}
	}
	if work.IsEmpty() {
		return Success, left, right
	}
	return Fail, left, right
}
