package blocksource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/gluon/log/logtest"
)

func testHTTPConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.RetryMax = 2
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	return cfg
}

func TestHTTPFetcher(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rawblock/" + hashA:
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write(blockA)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f, err := NewHTTPFetcher(testHTTPConfig(srv.URL), WithHTTPLogger(logtest.New(t)))
	require.NoError(t, err)

	data, err := f.FetchBlock(context.Background(), hashA)
	require.NoError(t, err)
	require.Equal(t, blockA, data)
	require.EqualValues(t, 2, calls.Load())

	_, err = f.FetchBlock(context.Background(), hashB)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPFetcherGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	f, err := NewHTTPFetcher(testHTTPConfig(srv.URL), withHTTPClient(srv.Client()))
	require.NoError(t, err)
	_, err = f.FetchBlock(context.Background(), hashA)
	require.Error(t, err)
}

func TestSourceOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(blockB)
	}))
	t.Cleanup(srv.Close)

	cfg := testHTTPConfig(srv.URL)
	cfg.CacheDir = t.TempDir()
	f, err := NewHTTPFetcher(cfg)
	require.NoError(t, err)
	src, err := New(f, WithConfig(cfg))
	require.NoError(t, err)
	txs, err := src.Fetch(context.Background(), hashB)
	require.NoError(t, err)
	require.Len(t, txs, 2)
}
