package hash

import "github.com/minio/sha256-simd"

const (
	// Size is an alias to minio sha256.Size (32 bytes).
	Size = sha256.Size
)

// Sum computes sha256 of the concatenation of the chunks.
func Sum(chunks ...[]byte) (rst [Size]byte) {
	hh := GetHasher()
	defer PutHasher(hh)
	for _, chunk := range chunks {
		hh.Write(chunk)
	}
	hh.Sum(rst[:0])
	return rst
}

// Truncated returns the first n bytes of sha256(data).
func Truncated(data []byte, n int) []byte {
	h := sha256.Sum256(data)
	if n > Size {
		n = Size
	}
	out := make([]byte, n)
	copy(out, h[:n])
	return out
}
