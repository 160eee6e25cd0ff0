package types

import (
	"encoding/hex"
	"fmt"

	"github.com/spacemeshos/go-scale"

	"github.com/spacemeshos/gluon/hash"
)

// Hash32Length is 32, the expected length of the hash.
const Hash32Length = 32

// Hash32 represents the 32-byte sha256 hash of arbitrary data. Transaction
// identifiers and hash tree node values are Hash32.
type Hash32 [Hash32Length]byte

// EmptyHash32 is sha256 of empty input. It names the empty payload and pads
// odd hash tree levels.
var EmptyHash32 = Hash32(hash.Sum())

// CalcHash32 returns the 32-byte sha256 sum of the given data.
func CalcHash32(data []byte) Hash32 {
	return hash.Sum(data)
}

// CalcTxHash returns the identifier of a transaction payload.
func CalcTxHash(payload []byte) Hash32 {
	return CalcHash32(payload)
}

// BytesToHash sets b to hash.
// If b is larger than len(h), b will be cropped from the left.
func BytesToHash(b []byte) Hash32 {
	var h Hash32
	h.SetBytes(b)
	return h
}

// ParseHash32 decodes a hex encoded hash.
func ParseHash32(s string) (Hash32, error) {
	var h Hash32
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hash %q: %w", s, err)
	}
	if len(b) != Hash32Length {
		return h, fmt.Errorf("hash %q has length %d, expected %d", s, len(b), Hash32Length)
	}
	copy(h[:], b)
	return h, nil
}

// SetBytes sets the hash to the value of b.
// If b is larger than len(h), b will be cropped from the left.
func (h *Hash32) SetBytes(b []byte) {
	if len(b) > len(h) {
		b = b[len(b)-Hash32Length:]
	}

	copy(h[Hash32Length-len(b):], b)
}

// Bytes gets the byte representation of the underlying hash.
func (h Hash32) Bytes() []byte {
	return h[:]
}

// IsEmpty reports whether h is the hash of empty input.
func (h Hash32) IsEmpty() bool {
	return h == EmptyHash32
}

// Hex converts a hash to a hex string.
func (h Hash32) Hex() string {
	return hex.EncodeToString(h[:])
}

// String implements the stringer interface and is used also by the logger when
// doing full logging into a file.
func (h Hash32) String() string {
	return h.Hex()
}

// ShortString returns the first 5 characters of the hash, for logging purposes.
func (h Hash32) ShortString() string {
	return hex.EncodeToString(h[:3])[:5]
}

// EncodeScale implements scale codec interface.
func (h *Hash32) EncodeScale(e *scale.Encoder) (int, error) {
	return scale.EncodeByteArray(e, h[:])
}

// DecodeScale implements scale codec interface.
func (h *Hash32) DecodeScale(d *scale.Decoder) (int, error) {
	return scale.DecodeByteArray(d, h[:])
}
