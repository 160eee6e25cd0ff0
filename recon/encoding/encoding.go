// Package encoding compresses 32-byte identifiers into short sketch keys and
// resolves them back against a known candidate set.
package encoding

import (
	"errors"
	"fmt"

	"github.com/spacemeshos/gluon/common/types"
)

var (
	// ErrUnknownIdentifier is returned when no candidate matches a short key.
	ErrUnknownIdentifier = errors.New("encoding: unknown identifier")
	// ErrAmbiguousIdentifier is returned when several candidates share a short key.
	ErrAmbiguousIdentifier = errors.New("encoding: ambiguous identifier")
	// ErrBadLength is returned for keys of unexpected length.
	ErrBadLength = errors.New("encoding: bad key length")
)

// IDScheme maps identifiers to fixed length keys.
type IDScheme interface {
	Size() int
	Encode(id types.Hash32) []byte
	Decode(key []byte) (types.Hash32, error)
}

// PairScheme maps ordered identifier pairs to fixed length keys.
type PairScheme interface {
	Size() int
	Encode(a, b types.Hash32) []byte
	Decode(key []byte) (types.Hash32, types.Hash32, error)
}

// Truncated keeps the first size bytes of an identifier. Decoding looks the
// prefix up among the priors it was built from.
type Truncated struct {
	size      int
	index     map[string]types.Hash32
	ambiguous map[string]struct{}
}

var _ IDScheme = (*Truncated)(nil)

// NewTruncated indexes priors by their size byte prefix.
func NewTruncated(priors []types.Hash32, size int) *Truncated {
	if size <= 0 || size > types.Hash32Length {
		panic(fmt.Sprintf("BUG: bad truncated encoding size %d", size))
	}
	t := &Truncated{
		size:      size,
		index:     make(map[string]types.Hash32, len(priors)),
		ambiguous: make(map[string]struct{}),
	}
	for _, id := range priors {
		k := string(id[:size])
		if prev, ok := t.index[k]; ok && prev != id {
			t.ambiguous[k] = struct{}{}
			continue
		}
		t.index[k] = id
	}
	return t
}

// Size returns the key length.
func (t *Truncated) Size() int { return t.size }

// Collisions returns the number of prefixes shared by distinct priors.
func (t *Truncated) Collisions() int { return len(t.ambiguous) }

// Encode truncates id.
func (t *Truncated) Encode(id types.Hash32) []byte {
	out := make([]byte, t.size)
	copy(out, id[:t.size])
	return out
}

// Decode resolves key to the unique prior with that prefix.
func (t *Truncated) Decode(key []byte) (types.Hash32, error) {
	if len(key) != t.size {
		return types.Hash32{}, fmt.Errorf("%w: got %d, want %d", ErrBadLength, len(key), t.size)
	}
	k := string(key)
	if _, ok := t.ambiguous[k]; ok {
		return types.Hash32{}, fmt.Errorf("%w: %x", ErrAmbiguousIdentifier, key)
	}
	id, ok := t.index[k]
	if !ok {
		return types.Hash32{}, fmt.Errorf("%w: %x", ErrUnknownIdentifier, key)
	}
	return id, nil
}

// Double encodes a pair as the concatenation of two id keys.
type Double struct {
	id IDScheme
}

var _ PairScheme = (*Double)(nil)

// NewDouble wraps an id scheme.
func NewDouble(id IDScheme) *Double {
	return &Double{id: id}
}

// Size returns twice the id key length.
func (d *Double) Size() int { return 2 * d.id.Size() }

// Encode concatenates the keys of a and b.
func (d *Double) Encode(a, b types.Hash32) []byte {
	out := make([]byte, 0, d.Size())
	out = append(out, d.id.Encode(a)...)
	return append(out, d.id.Encode(b)...)
}

// Decode splits key at the midpoint and decodes both halves.
func (d *Double) Decode(key []byte) (types.Hash32, types.Hash32, error) {
	if len(key) != d.Size() {
		return types.Hash32{}, types.Hash32{}, fmt.Errorf("%w: got %d, want %d", ErrBadLength, len(key), d.Size())
	}
	half := len(key) / 2
	a, err := d.id.Decode(key[:half])
	if err != nil {
		return types.Hash32{}, types.Hash32{}, fmt.Errorf("first half: %w", err)
	}
	b, err := d.id.Decode(key[half:])
	if err != nil {
		return types.Hash32{}, types.Hash32{}, fmt.Errorf("second half: %w", err)
	}
	return a, b, nil
}
