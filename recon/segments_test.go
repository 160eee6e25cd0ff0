package recon

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/recon/encoding"
)

func genPayloads(prefix string, n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("%s-%d", prefix, i))
	}
	return out
}

func TestMissingResponseSegments(t *testing.T) {
	pool := NewTxPool(genPayloads("tx", 10)...)
	block := pool.IDs()
	scheme := encoding.NewTruncated(block, 8)
	var requested [][]byte
	for _, i := range []int{9, 3, 2, 7, 4, 3} {
		requested = append(requested, scheme.Encode(block[i]))
	}
	segments, err := missingResponse(block, scheme, pool, requested)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	payload := func(i int) []byte {
		p, ok := pool.Get(block[i])
		require.True(t, ok)
		return p
	}
	require.Equal(t, [][]byte{payload(2), payload(3), payload(4)}, segments[0].Payloads)
	require.Equal(t, scheme.Encode(block[5]), segments[0].Next)
	require.Equal(t, [][]byte{payload(7)}, segments[1].Payloads)
	require.Equal(t, scheme.Encode(block[8]), segments[1].Next)
	require.Equal(t, [][]byte{payload(9)}, segments[2].Payloads)
	require.True(t, segments[2].AtEnd())

	var candidate []types.Hash32
	for i, id := range block {
		switch i {
		case 2, 3, 4, 7, 9:
		default:
			candidate = append(candidate, id)
		}
	}
	spliced, txs, err := spliceSegments(candidate, encoding.NewTruncated(candidate, 8), segments)
	require.NoError(t, err)
	require.Equal(t, block, spliced)
	require.Len(t, txs, 5)
	for _, tx := range txs {
		require.True(t, pool.Has(tx.ID))
	}
}

func TestMissingResponseEmpty(t *testing.T) {
	pool := NewTxPool(genPayloads("tx", 3)...)
	block := pool.IDs()
	segments, err := missingResponse(block, encoding.NewTruncated(block, 8), pool, nil)
	require.NoError(t, err)
	require.Empty(t, segments)

	spliced, txs, err := spliceSegments(block, encoding.NewTruncated(block, 8), nil)
	require.NoError(t, err)
	require.Equal(t, block, spliced)
	require.Empty(t, txs)
}

func TestMissingResponseWholeBlock(t *testing.T) {
	pool := NewTxPool(genPayloads("tx", 4)...)
	block := pool.IDs()
	scheme := encoding.NewTruncated(block, 8)
	var requested [][]byte
	for _, id := range block {
		requested = append(requested, scheme.Encode(id))
	}
	segments, err := missingResponse(block, scheme, pool, requested)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.True(t, segments[0].AtEnd())

	spliced, _, err := spliceSegments(nil, encoding.NewTruncated(nil, 8), segments)
	require.NoError(t, err)
	require.Equal(t, block, spliced)
}

func TestMissingResponseErrors(t *testing.T) {
	pool := NewTxPool(genPayloads("tx", 4)...)
	block := pool.IDs()
	scheme := encoding.NewTruncated(block, 8)

	unknown := types.CalcTxHash([]byte("unknown"))
	_, err := missingResponse(block, scheme, pool, [][]byte{unknown[:8]})
	require.ErrorIs(t, err, encoding.ErrUnknownIdentifier)

	orphan := types.CalcTxHash([]byte("orphan"))
	withOrphan := append(append([]types.Hash32{}, block...), orphan)
	_, err = missingResponse(withOrphan, encoding.NewTruncated(withOrphan, 8), pool, [][]byte{orphan[:8]})
	require.ErrorIs(t, err, ErrMissingPayload)

	segments, err := missingResponse(block, scheme, pool, [][]byte{scheme.Encode(block[1])})
	require.NoError(t, err)
	_, _, err = spliceSegments(block[2:], encoding.NewTruncated(block[2:], 8), segments)
	require.NoError(t, err)
	_, _, err = spliceSegments(block[3:], encoding.NewTruncated(block[:3], 8), segments)
	require.ErrorIs(t, err, encoding.ErrUnknownIdentifier)
}
