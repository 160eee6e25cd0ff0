package blocksource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/log/logtest"
)

const (
	hashA = "00000000000000000001a0a448d6cf2546b06801389cc030b2b18c6491266815"
	hashB = "0000000000000000000233611cfaf1f6e34a8c5c52a8d1bd1bd4a3da2a0b3bf3"
)

var (
	blockA = []byte(`{"hash":"a","tx":[{"hash":"t1"},{"hash":"t2"},{"hash":"t3"}]}`)
	blockB = []byte(`{"tx":[{"hash":"t3"},{"hash":"t4"}]}`)
)

func newSource(t *testing.T) (*Source, *MockFetcher, Config) {
	t.Helper()
	fetcher := NewMockFetcher(gomock.NewController(t))
	cfg := DefaultConfig()
	cfg.CacheDir = t.TempDir()
	src, err := New(fetcher, WithConfig(cfg), WithLogger(logtest.New(t)))
	require.NoError(t, err)
	return src, fetcher, cfg
}

func TestParse(t *testing.T) {
	txs, err := Parse(blockA)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.Equal(t, []byte("t2"), txs[1].Payload)
	require.Equal(t, types.CalcTxHash([]byte("t2")), txs[1].ID)

	_, err = Parse([]byte("not json"))
	require.Error(t, err)
	_, err = Parse([]byte(`{"tx":[{"fee":1}]}`))
	require.Error(t, err)
}

func TestFetchCaches(t *testing.T) {
	src, fetcher, cfg := newSource(t)
	fetcher.EXPECT().FetchBlock(gomock.Any(), hashA).Return(blockA, nil).Times(1)

	txs, err := src.Fetch(context.Background(), hashA)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	cached, err := os.ReadFile(filepath.Join(cfg.CacheDir, hashA+".block"))
	require.NoError(t, err)
	require.Equal(t, blockA, cached)

	again, err := src.Fetch(context.Background(), hashA)
	require.NoError(t, err)
	require.Equal(t, txs, again)

	// a new source reuses the disk cache
	other, err := New(fetcher, WithConfig(cfg))
	require.NoError(t, err)
	fromDisk, err := other.Fetch(context.Background(), hashA)
	require.NoError(t, err)
	require.Equal(t, txs, fromDisk)
}

func TestFetchErrors(t *testing.T) {
	src, fetcher, cfg := newSource(t)

	_, err := src.Fetch(context.Background(), "../etc/passwd")
	require.ErrorIs(t, err, ErrBadHash)

	errFetch := errors.New("unavailable")
	fetcher.EXPECT().FetchBlock(gomock.Any(), hashA).Return(nil, errFetch)
	_, err = src.Fetch(context.Background(), hashA)
	require.ErrorIs(t, err, errFetch)

	fetcher.EXPECT().FetchBlock(gomock.Any(), hashB).Return([]byte("garbage"), nil)
	_, err = src.Fetch(context.Background(), hashB)
	require.Error(t, err)
	_, err = os.Stat(filepath.Join(cfg.CacheDir, hashB+".block"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPool(t *testing.T) {
	src, fetcher, _ := newSource(t)
	fetcher.EXPECT().FetchBlock(gomock.Any(), hashA).Return(blockA, nil)
	fetcher.EXPECT().FetchBlock(gomock.Any(), hashB).Return(blockB, nil)

	pool, err := src.Pool(context.Background(), hashA, hashB)
	require.NoError(t, err)
	require.Equal(t, [][]byte{
		[]byte("t1"), []byte("t2"), []byte("t3"), []byte("t4"),
	}, pool)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	cfg.CacheSize = 0
	cfg.BaseURL = ""
	require.Error(t, cfg.Validate())

	_, err := New(nil, WithConfig(cfg))
	require.Error(t, err)
}
