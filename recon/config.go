package recon

import (
	"errors"
	"fmt"
	"time"

	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/recon/siblt"
)

// Sizing selects how the content filter and sketch are sized.
type Sizing string

const (
	// SizingOptimum minimizes the filter and sketch for the estimated
	// difference.
	SizingOptimum Sizing = "optimum"
	// SizingGraphene searches the combined size assuming at most one missing
	// transaction.
	SizingGraphene Sizing = "graphene"
)

// PairEncoding selects how sibling pairs are keyed in order sketches.
type PairEncoding string

const (
	// PairEncodingTruncated keys each half of a pair by a prefix of its hash.
	PairEncodingTruncated PairEncoding = "truncated"
	// PairEncodingSortedIndex keys each half of a level 0 pair by its position
	// in the sorted frontier. Higher levels fall back to truncated prefixes.
	// Both peers must use the same encoding.
	PairEncodingSortedIndex PairEncoding = "sorted-index"
)

const (
	// pair prefix bounds used when the prefix is sized per level
	minPairPrefix = 2
	maxPairPrefix = types.Hash32Length
	// collision margin, in bits, for per level pair prefixes
	pairPrefixMargin = 20

	// one descriptor per level of the largest tree a 3 byte pool size allows
	minOrderQueueSize = 32
)

// Config holds the reconciliation parameters.
type Config struct {
	// IDPrefixSize is the number of identifier bytes used as content sketch
	// keys.
	IDPrefixSize int `mapstructure:"id-prefix-size"`

	// PairPrefixSize is the number of bytes per pair half in order sketches.
	// Zero sizes it per level from the frontier width.
	PairPrefixSize int          `mapstructure:"pair-prefix-size"`
	PairEncoding   PairEncoding `mapstructure:"pair-encoding"`

	NumHashes    int `mapstructure:"num-hashes"`
	ChecksumSize int `mapstructure:"checksum-size"`

	// EstMissing is the expected share of the block missing from the pool.
	EstMissing float64 `mapstructure:"est-missing"`

	// EstExcess is the share of the receiver pool outside of the block.
	// Zero derives it from the block size, the pool size and EstMissing.
	EstExcess float64 `mapstructure:"est-excess"`

	// EstPairMissing is the expected share of sibling pairs the receiver
	// lacks at each level. A shift of the block by an odd count misaligns
	// every pair of a level.
	EstPairMissing float64 `mapstructure:"est-pair-missing"`
	CellMultiplier float64 `mapstructure:"cell-multiplier"`
	MinSketchCells int     `mapstructure:"min-sketch-cells"`
	Sizing         Sizing  `mapstructure:"sizing"`

	// OrderInterval is the cadence of unsolicited order descriptors.
	OrderInterval  time.Duration `mapstructure:"order-interval"`
	OrderQueueSize int           `mapstructure:"order-queue-size"`

	// MessageTimeout bounds every wait for an expected message.
	MessageTimeout time.Duration `mapstructure:"message-timeout"`

	// CompleteTimeout bounds the sender's wait for the completion signal.
	CompleteTimeout time.Duration `mapstructure:"complete-timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		IDPrefixSize:    8,
		PairPrefixSize:  0,
		PairEncoding:    PairEncodingTruncated,
		NumHashes:       siblt.DefaultNumHashes,
		ChecksumSize:    siblt.DefaultChecksumSize,
		EstMissing:      0.01,
		EstPairMissing:  1,
		CellMultiplier:  1.5,
		MinSketchCells:  16,
		Sizing:          SizingOptimum,
		OrderInterval:   2 * time.Second,
		OrderQueueSize:  64,
		MessageTimeout:  30 * time.Second,
		CompleteTimeout: 5 * time.Minute,
	}
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.IDPrefixSize < 1 || cfg.IDPrefixSize > types.Hash32Length {
		errs = append(errs, fmt.Errorf("id-prefix-size must be in [1, %d]", types.Hash32Length))
	}
	if cfg.PairPrefixSize < 0 || cfg.PairPrefixSize > maxPairPrefix {
		errs = append(errs, fmt.Errorf("pair-prefix-size must be in [0, %d]", maxPairPrefix))
	}
	switch cfg.PairEncoding {
	case PairEncodingTruncated, PairEncodingSortedIndex:
	default:
		errs = append(errs, fmt.Errorf("unknown pair-encoding %q", cfg.PairEncoding))
	}
	if cfg.NumHashes < 1 || cfg.NumHashes > 255 {
		errs = append(errs, errors.New("num-hashes must be in [1, 255]"))
	}
	if cfg.ChecksumSize < 1 || cfg.ChecksumSize > types.Hash32Length {
		errs = append(errs, fmt.Errorf("checksum-size must be in [1, %d]", types.Hash32Length))
	}
	if cfg.EstMissing < 0 || cfg.EstMissing > 1 {
		errs = append(errs, errors.New("est-missing must be in [0, 1]"))
	}
	if cfg.EstExcess < 0 || cfg.EstExcess > 1 {
		errs = append(errs, errors.New("est-excess must be in [0, 1]"))
	}
	if cfg.EstPairMissing < 0 || cfg.EstPairMissing > 1 {
		errs = append(errs, errors.New("est-pair-missing must be in [0, 1]"))
	}
	if cfg.CellMultiplier <= 0 {
		errs = append(errs, errors.New("cell-multiplier must be positive"))
	}
	if cfg.MinSketchCells < 1 {
		errs = append(errs, errors.New("min-sketch-cells must be positive"))
	}
	switch cfg.Sizing {
	case SizingOptimum, SizingGraphene:
	default:
		errs = append(errs, fmt.Errorf("unknown sizing %q", cfg.Sizing))
	}
	if cfg.OrderInterval <= 0 || cfg.MessageTimeout <= 0 || cfg.CompleteTimeout <= 0 {
		errs = append(errs, errors.New("intervals and timeouts must be positive"))
	}
	if cfg.OrderQueueSize < minOrderQueueSize {
		errs = append(errs, fmt.Errorf("order-queue-size must be at least %d", minOrderQueueSize))
	}
	return errors.Join(errs...)
}
