package hash

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSumEmpty(t *testing.T) {
	h := Sum()
	require.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		hex.EncodeToString(h[:]))
	require.Equal(t, h, Sum(nil))
}

func TestSumChunks(t *testing.T) {
	require.Equal(t, Sum([]byte("ab"), []byte("cd")), Sum([]byte("abcd")))
	require.NotEqual(t, Sum([]byte("ab")), Sum([]byte("ba")))
}

func TestTruncated(t *testing.T) {
	full := Sum([]byte("payload"))
	require.Equal(t, full[:4], Truncated([]byte("payload"), 4))
	require.Equal(t, full[:], Truncated([]byte("payload"), 64))
}

func TestHasherPool(t *testing.T) {
	h := GetHasher()
	h.Write([]byte("dirty"))
	PutHasher(h)
	for range 4 {
		require.Equal(t, Sum([]byte("x")), Sum([]byte("x")))
	}
	h = GetHasher()
	defer PutHasher(h)
	empty := Sum()
	require.Equal(t, empty[:], h.Sum(nil))
}
