package hash

import (
	stdhash "hash"
	"sync"

	"github.com/minio/sha256-simd"
)

var pool = &sync.Pool{
	New: func() any {
		return sha256.New()
	},
}

// GetHasher returns a reset sha256 hasher from the pool.
func GetHasher() stdhash.Hash {
	h := pool.Get().(stdhash.Hash)
	h.Reset()
	return h
}

// PutHasher returns the hasher back to the pool.
func PutHasher(hasher stdhash.Hash) {
	pool.Put(hasher)
}
