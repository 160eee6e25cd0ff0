package siblt

import (
	"encoding/binary"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/gluon/hash"
)

func genKeys(prefix string, n, size int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(i))
		keys[i] = hash.Truncated(append([]byte(prefix), b[:]...), size)
	}
	return keys
}

func sorted(keys [][]byte) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	sort.Strings(out)
	return out
}

func encoded(t *testing.T, cells, keySize int, keys [][]byte) *Sketch {
	s := New(cells, keySize, DefaultChecksumSize, DefaultNumHashes)
	require.NoError(t, s.Encode(keys))
	return s
}

func TestNewSketchEmpty(t *testing.T) {
	s := New(10, 8, 4, 4)
	require.True(t, s.IsEmpty())
	require.Equal(t, 10, s.NumCells())
	require.Equal(t, 8, s.KeySize())
	require.Equal(t, 4, s.ChecksumSize())
	require.Equal(t, 4, s.NumHashes())
	status, left, right := s.Decode()
	require.Equal(t, Success, status)
	require.Empty(t, left)
	require.Empty(t, right)
	require.Panics(t, func() { New(0, 8, 4, 4) })
	require.Panics(t, func() { New(10, 0, 4, 4) })
}

func TestSketchRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name          string
		cells         int
		nLeft, nRight int
		shared        int
	}{
		{name: "left only", cells: 60, nLeft: 10},
		{name: "right only", cells: 60, nRight: 10},
		{name: "both", cells: 100, nLeft: 12, nRight: 13, shared: 500},
		{name: "large", cells: 1000, nLeft: 150, nRight: 150, shared: 5000},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			shared := genKeys("shared", tc.shared, 8)
			onlyA := genKeys("a", tc.nLeft, 8)
			onlyB := genKeys("b", tc.nRight, 8)
			a := encoded(t, tc.cells, 8, append(append([][]byte{}, shared...), onlyA...))
			b := encoded(t, tc.cells, 8, append(append([][]byte{}, shared...), onlyB...))
			require.NoError(t, a.Subtract(b))
			status, left, right := a.Decode()
			require.Equal(t, Success, status)
			require.Equal(t, sorted(onlyA), sorted(left))
			require.Equal(t, sorted(onlyB), sorted(right))
		})
	}
}

func TestSketchIdentity(t *testing.T) {
	keys := genKeys("same", 1000, 6)
	a := encoded(t, 20, 6, keys)
	b := encoded(t, 20, 6, keys)
	require.NoError(t, a.Subtract(b))
	require.True(t, a.IsEmpty())
	status, left, right := a.Decode()
	require.Equal(t, Success, status)
	require.Empty(t, left)
	require.Empty(t, right)
}

func TestSketchOverload(t *testing.T) {
	a := encoded(t, 20, 8, genKeys("a", 200, 8))
	b := encoded(t, 20, 8, genKeys("b", 200, 8))
	require.NoError(t, a.Subtract(b))
	status, left, right := a.Decode()
	require.Equal(t, Fail, status)
	require.Less(t, len(left)+len(right), 400)
}

func TestSketchDecodeKeepsTable(t *testing.T) {
	s := encoded(t, 50, 8, genKeys("k", 5, 8))
	before, err := s.MarshalBinary()
	require.NoError(t, err)
	status, left, _ := s.Decode()
	require.Equal(t, Success, status)
	require.Len(t, left, 5)
	after, err := s.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.False(t, s.IsEmpty())
}

func TestSketchShapeMismatch(t *testing.T) {
	a := New(10, 8, 4, 4)
	for _, b := range []*Sketch{
		New(11, 8, 4, 4),
		New(10, 6, 4, 4),
		New(10, 8, 2, 4),
		New(10, 8, 4, 3),
	} {
		require.ErrorIs(t, a.Subtract(b), ErrSizeMismatch)
	}
	require.ErrorIs(t, a.Insert([]byte{1}), ErrKeySize)
	require.ErrorIs(t, a.Encode([][]byte{make([]byte, 8), {1}}), ErrKeySize)
}

func TestSketchDuplicateIndices(t *testing.T) {
	// with a single cell every hash function lands on the same cell
	s := New(1, 4, 4, 4)
	require.NoError(t, s.Insert([]byte{1, 2, 3, 4}))
	status, left, right := s.Decode()
	require.Equal(t, Success, status)
	require.Equal(t, [][]byte{{1, 2, 3, 4}}, left)
	require.Empty(t, right)
}

func TestSketchSerialization(t *testing.T) {
	s := encoded(t, 33, 6, genKeys("ser", 40, 6))
	data, err := s.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, s.EncodedSize())

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	require.Equal(t, s, decoded)

	var other Sketch
	require.NoError(t, other.UnmarshalBinary(data))
	require.Equal(t, s, &other)

	require.NoError(t, decoded.Subtract(s))
	require.True(t, decoded.IsEmpty())
}

func TestSketchUnmarshalErrors(t *testing.T) {
	s := encoded(t, 4, 8, genKeys("err", 3, 8))
	data, err := s.MarshalBinary()
	require.NoError(t, err)

	mutate := func(f func(b []byte) []byte) []byte {
		b := append([]byte{}, data...)
		return f(b)
	}
	for _, tc := range []struct {
		name string
		data []byte
		err  error
	}{
		{name: "short", data: data[:5], err: ErrUnexpectedEncodingSize},
		{name: "truncated cells", data: data[:len(data)-1], err: ErrUnexpectedEncodingSize},
		{name: "magic", data: mutate(func(b []byte) []byte { b[0] = 'X'; return b }), err: ErrBadMagic},
		{name: "version", data: mutate(func(b []byte) []byte { b[4] = 9; return b }), err: ErrUnsupportedVersion},
		{name: "family", data: mutate(func(b []byte) []byte { b[5] = 2; return b }), err: ErrUnsupportedHashFamily},
		{name: "zero hashes", data: mutate(func(b []byte) []byte { b[6] = 0; return b }), err: ErrBadHeader},
		{name: "zero cells", data: mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[9:], 0)
			return b
		}), err: ErrBadHeader},
		{name: "header only", data: mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[9:], MaxCells)
			return b[:headerSize]
		}), err: ErrUnexpectedEncodingSize},
		{name: "cells exceed data", data: mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint32(b[9:], binary.BigEndian.Uint32(b[9:])+1)
			return b
		}), err: ErrUnexpectedEncodingSize},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Unmarshal(tc.data)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "success", Success.String())
	require.Equal(t, "fail", Fail.String())
}
