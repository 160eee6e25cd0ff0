// Package config aggregates the configuration of gluon components and loads
// it from a file through viper.
package config

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/spacemeshos/gluon/blocksource"
	"github.com/spacemeshos/gluon/log"
	"github.com/spacemeshos/gluon/metrics"
	"github.com/spacemeshos/gluon/recon"
	"github.com/spacemeshos/gluon/recon/transport"
)

// Config is the process configuration.
type Config struct {
	ConfigFile string `mapstructure:"config"`

	Log     log.Config     `mapstructure:",squash"`
	Metrics metrics.Config `mapstructure:",squash"`

	Recon       recon.Config       `mapstructure:"recon"`
	Transport   transport.Config   `mapstructure:"transport"`
	BlockSource blocksource.Config `mapstructure:"blocksource"`
	Node        NodeConfig         `mapstructure:"node"`
}

// NodeConfig selects the blocks a node works with.
type NodeConfig struct {
	// Block is the hash of the block to send.
	Block string `mapstructure:"block"`
	// PoolBlocks are hashes of blocks whose transactions make up the pool.
	PoolBlocks []string `mapstructure:"pool-blocks"`
	// PoolFile holds additional pool payloads, one per line.
	PoolFile string `mapstructure:"pool-file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Log:         log.DefaultConfig(),
		Metrics:     metrics.DefaultConfig(),
		Recon:       recon.DefaultConfig(),
		Transport:   transport.DefaultConfig(),
		BlockSource: blocksource.DefaultConfig(),
	}
}

// LoadConfig reads the config file at path into vip. An empty path leaves
// vip untouched.
func LoadConfig(path string, vip *viper.Viper) error {
	if path == "" {
		return nil
	}
	vip.SetConfigFile(path)
	if err := vip.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Unmarshal decodes the values held by vip on top of the defaults.
func Unmarshal(vip *viper.Viper) (*Config, error) {
	conf := DefaultConfig()
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := vip.Unmarshal(&conf, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &conf, nil
}

// Load reads the file at path, applies the values bound to vip and validates
// the result.
func Load(path string, vip *viper.Viper) (*Config, error) {
	if err := LoadConfig(path, vip); err != nil {
		return nil, log.ErrMalformedConfig(err)
	}
	conf, err := Unmarshal(vip)
	if err != nil {
		return nil, log.ErrMalformedConfig(err)
	}
	conf.ConfigFile = path
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks every section and reports all problems at once.
func (cfg *Config) Validate() error {
	var errs []error
	if _, err := log.New(cfg.Log); err != nil {
		errs = append(errs, err)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics-address is required when metrics are enabled"))
	}
	if err := cfg.Recon.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("recon: %w", err))
	}
	if err := cfg.Transport.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("transport: %w", err))
	}
	if err := cfg.BlockSource.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("blocksource: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return log.ErrMalformedConfig(err)
	}
	return nil
}
