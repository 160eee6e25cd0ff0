// Package blocksource loads the transactions of historical blocks. Blocks are
// served from memory, then from an on-disk cache shared between processes, and
// fetched from a block explorer only when both miss.
package blocksource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/spacemeshos/gluon/common/types"
)

const lockRetryDelay = 10 * time.Millisecond

// ErrBadHash is returned for block hashes that are not 32 byte hex strings.
var ErrBadHash = errors.New("blocksource: bad block hash")

// Config for the block source.
type Config struct {
	BaseURL      string        `mapstructure:"base-url"`
	CacheDir     string        `mapstructure:"cache-dir"`
	CacheSize    int           `mapstructure:"cache-size"`
	RetryMax     int           `mapstructure:"retry-max"`
	RetryWaitMin time.Duration `mapstructure:"retry-wait-min"`
	RetryWaitMax time.Duration `mapstructure:"retry-wait-max"`
	LockTimeout  time.Duration `mapstructure:"lock-timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://blockchain.info",
		CacheDir:     "blockdata",
		CacheSize:    16,
		RetryMax:     3,
		RetryWaitMin: time.Second,
		RetryWaitMax: 10 * time.Second,
		LockTimeout:  time.Minute,
	}
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.BaseURL == "" {
		errs = append(errs, errors.New("base-url is required"))
	}
	if cfg.CacheDir == "" {
		errs = append(errs, errors.New("cache-dir is required"))
	}
	if cfg.CacheSize < 1 {
		errs = append(errs, errors.New("cache-size must be positive"))
	}
	if cfg.RetryMax < 0 {
		errs = append(errs, errors.New("retry-max must not be negative"))
	}
	if cfg.LockTimeout <= 0 {
		errs = append(errs, errors.New("lock-timeout must be positive"))
	}
	return errors.Join(errs...)
}

// rawBlock is the part of the explorer's block encoding that is used.
type rawBlock struct {
	Tx []struct {
		Hash string `json:"hash"`
	} `json:"tx"`
}

// Parse extracts the transactions of a raw block. The payload of each
// transaction is its hash string as listed by the explorer.
func Parse(data []byte) ([]types.Transaction, error) {
	var blk rawBlock
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("parse block: %w", err)
	}
	txs := make([]types.Transaction, len(blk.Tx))
	for i, tx := range blk.Tx {
		if tx.Hash == "" {
			return nil, fmt.Errorf("parse block: transaction %d has no hash", i)
		}
		txs[i] = types.NewTransaction([]byte(tx.Hash))
	}
	return txs, nil
}

// Opt configures a Source.
type Opt func(*Source)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(s *Source) {
		s.logger = logger
	}
}

// WithConfig sets the configuration.
func WithConfig(cfg Config) Opt {
	return func(s *Source) {
		s.cfg = cfg
	}
}

// Source loads blocks through the memory and disk caches.
type Source struct {
	logger  *zap.Logger
	cfg     Config
	fetcher Fetcher
	cache   *lru.Cache[string, []types.Transaction]
}

// New creates a source backed by fetcher.
func New(fetcher Fetcher, opts ...Opt) (*Source, error) {
	s := &Source{
		logger:  zap.NewNop(),
		cfg:     DefaultConfig(),
		fetcher: fetcher,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := lru.New[string, []types.Transaction](s.cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create block cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

func (s *Source) path(hash string) string {
	return filepath.Join(s.cfg.CacheDir, hash+".block")
}

// Fetch returns the transactions of the block in block order.
func (s *Source) Fetch(ctx context.Context, hash string) ([]types.Transaction, error) {
	if _, err := types.ParseHash32(hash); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHash, err)
	}
	if txs, ok := s.cache.Get(hash); ok {
		return txs, nil
	}
	data, err := s.load(ctx, hash)
	if err != nil {
		return nil, err
	}
	txs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", hash, err)
	}
	s.cache.Add(hash, txs)
	return txs, nil
}

// load reads the block from disk, fetching and storing it first when absent.
// The cache file lock keeps concurrent processes from fetching the same block.
func (s *Source) load(ctx context.Context, hash string) ([]byte, error) {
	if err := os.MkdirAll(s.cfg.CacheDir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	path := s.path(hash)
	lock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", lock.Path())
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		s.logger.Debug("block loaded from disk", zap.String("hash", hash))
		return data, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read cached block: %w", err)
	}
	data, err = s.fetcher.FetchBlock(ctx, hash)
	if err != nil {
		return nil, err
	}
	if _, err := Parse(data); err != nil {
		return nil, fmt.Errorf("fetched block %s: %w", hash, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("write cached block: %w", err)
	}
	s.logger.Info("block fetched", zap.String("hash", hash), zap.Int("bytes", len(data)))
	return data, nil
}

// Pool returns the payloads of the union of the blocks, in block order with
// duplicates dropped.
func (s *Source) Pool(ctx context.Context, hashes ...string) ([][]byte, error) {
	seen := make(map[types.Hash32]struct{})
	var out [][]byte
	for _, hash := range hashes {
		txs, err := s.Fetch(ctx, hash)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			if _, ok := seen[tx.ID]; ok {
				continue
			}
			seen[tx.ID] = struct{}{}
			out = append(out, tx.Payload)
		}
	}
	return out, nil
}
