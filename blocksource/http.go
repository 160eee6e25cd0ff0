package blocksource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// ErrNotFound is returned when the service does not know the block.
var ErrNotFound = errors.New("blocksource: block not found")

// maxBlockSize bounds the response body.
const maxBlockSize = 64 << 20

// A wrapper around zap.Logger to make it compatible with
// retryablehttp.LeveledLogger interface.
type retryableHTTPLogger struct {
	inner *zap.Logger
}

func (r retryableHTTPLogger) Error(format string, args ...any) {
	r.inner.Sugar().Errorw(format, args...)
}

func (r retryableHTTPLogger) Info(format string, args ...any) {
	r.inner.Sugar().Infow(format, args...)
}

func (r retryableHTTPLogger) Warn(format string, args ...any) {
	r.inner.Sugar().Warnw(format, args...)
}

func (r retryableHTTPLogger) Debug(format string, args ...any) {
	r.inner.Sugar().Debugw(format, args...)
}

// HTTPFetcher downloads blocks from a block explorer at
// <base-url>/rawblock/<hash>.
type HTTPFetcher struct {
	logger  *zap.Logger
	baseURL *url.URL
	client  *retryablehttp.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

// HTTPFetcherOpt configures an HTTPFetcher.
type HTTPFetcherOpt func(*HTTPFetcher)

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *zap.Logger) HTTPFetcherOpt {
	return func(f *HTTPFetcher) {
		f.logger = logger
		f.client.Logger = &retryableHTTPLogger{inner: logger}
	}
}

func withHTTPClient(client *http.Client) HTTPFetcherOpt {
	return func(f *HTTPFetcher) {
		f.client.HTTPClient = client
	}
}

// NewHTTPFetcher creates a fetcher for the service at cfg.BaseURL.
func NewHTTPFetcher(cfg Config, opts ...HTTPFetcherOpt) (*HTTPFetcher, error) {
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	f := &HTTPFetcher{
		logger:  zap.NewNop(),
		baseURL: baseURL,
		client:  retryablehttp.NewClient(),
	}
	f.client.RetryMax = cfg.RetryMax
	f.client.RetryWaitMin = cfg.RetryWaitMin
	f.client.RetryWaitMax = cfg.RetryWaitMax
	f.client.Logger = &retryableHTTPLogger{inner: f.logger}
	for _, opt := range opts {
		opt(f)
	}
	f.client.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
		f.logger.Debug("response received",
			zap.Stringer("url", resp.Request.URL),
			zap.Int("status", resp.StatusCode))
	}
	return f, nil
}

// FetchBlock downloads the raw block.
func (f *HTTPFetcher) FetchBlock(ctx context.Context, hash string) ([]byte, error) {
	u := f.baseURL.JoinPath("rawblock", hash)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", hash, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	default:
		return nil, fmt.Errorf("fetch %s: unexpected status %s", hash, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlockSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", hash, err)
	}
	if len(data) > maxBlockSize {
		return nil, fmt.Errorf("fetch %s: block exceeds %d bytes", hash, maxBlockSize)
	}
	return data, nil
}
