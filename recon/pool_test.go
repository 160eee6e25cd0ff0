package recon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/gluon/common/types"
)

func TestTxPool(t *testing.T) {
	pool := NewTxPool()
	require.Zero(t, pool.Len())
	require.Empty(t, pool.IDs())
	require.True(t, pool.Has(types.EmptyHash32))

	a := pool.Add([]byte("a"))
	b := pool.Add([]byte("b"))
	require.Equal(t, a, pool.Add([]byte("a")))
	require.Equal(t, types.EmptyHash32, pool.Add(nil))
	require.Equal(t, 2, pool.Len())
	require.Equal(t, []types.Hash32{a, b}, pool.IDs())

	payload, ok := pool.Get(b)
	require.True(t, ok)
	require.Equal(t, []byte("b"), payload)
	_, ok = pool.Get(types.CalcTxHash([]byte("c")))
	require.False(t, ok)
}
