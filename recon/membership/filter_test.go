package membership

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func item(prefix byte, i int) []byte {
	b := make([]byte, 9)
	b[0] = prefix
	binary.BigEndian.PutUint64(b[1:], uint64(i))
	return b
}

func TestFilterNoFalseNegatives(t *testing.T) {
	f := New(1000, 0.01)
	for i := 0; i < 1000; i++ {
		f.Add(item('a', i))
	}
	for i := 0; i < 1000; i++ {
		require.True(t, f.Contains(item('a', i)))
	}
	fp := 0
	for i := 0; i < 10000; i++ {
		if f.Contains(item('b', i)) {
			fp++
		}
	}
	require.Less(t, fp, 500)
}

func TestFilterZeroCapacity(t *testing.T) {
	f := New(0, 0.1)
	require.NotZero(t, f.Bits())
	require.NotZero(t, f.NumHashes())
	require.False(t, f.Contains([]byte("x")))
}

func TestFilterSerialization(t *testing.T) {
	f := New(100, 0.05)
	for i := 0; i < 100; i++ {
		f.Add(item('s', i))
	}
	data, err := f.MarshalBinary()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, f.Bits(), decoded.Bits())
	require.Equal(t, f.NumHashes(), decoded.NumHashes())
	for i := 0; i < 100; i++ {
		require.True(t, decoded.Contains(item('s', i)))
	}

	_, err = Unmarshal(data[:len(data)-1])
	require.Error(t, err)
	_, err = Unmarshal(append(data, 0))
	require.Error(t, err)
}
