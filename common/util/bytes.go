package util

import "fmt"

// MaxUint24 is the largest value that fits a 3-byte length field.
const MaxUint24 = 1<<24 - 1

// CopyBytes returns an exact copy of the provided bytes.
func CopyBytes(b []byte) (copiedBytes []byte) {
	if b == nil {
		return nil
	}
	copiedBytes = make([]byte, len(b))
	copy(copiedBytes, b)

	return
}

// XorInto xors src into dst. Both slices must have the same length.
func XorInto(dst, src []byte) {
	if len(dst) != len(src) {
		panic(fmt.Sprintf("BUG: xor of slices with different lengths %d and %d", len(dst), len(src)))
	}
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// Xor returns a fresh slice holding a ^ b.
func Xor(a, b []byte) []byte {
	out := CopyBytes(a)
	XorInto(out, b)
	return out
}

// IsZero reports whether every byte of b is zero.
func IsZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// PutUint24 writes v as a 3-byte big-endian integer.
func PutUint24(b []byte, v uint32) {
	if v > MaxUint24 {
		panic(fmt.Sprintf("BUG: %d does not fit in 3 bytes", v))
	}
	_ = b[2]
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// Uint24 reads a 3-byte big-endian integer.
func Uint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
