package rto

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config controls the join graph search.
type Config struct {
	// InitialLimit is the sample limit of the first round. Round r samples at
	// InitialLimit*(r+1).
	InitialLimit int `mapstructure:"initial_limit"`

	// MaxLimit caps the sample limit of any round or retry.
	MaxLimit int `mapstructure:"max_limit"`

	// Parallelism bounds the number of sibling extensions estimated at once.
	Parallelism int `mapstructure:"parallelism"`

	// EdgeCacheSize is the number of edge samples kept for reuse by paths
	// sharing a history.
	EdgeCacheSize int `mapstructure:"edge_cache_size"`

	// RetryUnderflow retries an underflowed edge once at twice the limit.
	RetryUnderflow bool `mapstructure:"retry_underflow"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		InitialLimit:   100,
		MaxLimit:       10000,
		Parallelism:    4,
		EdgeCacheSize:  1024,
		RetryUnderflow: true,
	}
}

// Validate checks that the configuration can drive a search.
func (c Config) Validate() error {
	if c.InitialLimit <= 0 {
		return ErrInvalidArgument.New(fmt.Sprintf("initial_limit must be positive, got %d", c.InitialLimit))
	}
	if c.MaxLimit < c.InitialLimit {
		return ErrInvalidArgument.New(fmt.Sprintf("max_limit %d is below initial_limit %d", c.MaxLimit, c.InitialLimit))
	}
	if c.Parallelism <= 0 {
		return ErrInvalidArgument.New(fmt.Sprintf("parallelism must be positive, got %d", c.Parallelism))
	}
	if c.EdgeCacheSize <= 0 {
		return ErrInvalidArgument.New(fmt.Sprintf("edge_cache_size must be positive, got %d", c.EdgeCacheSize))
	}
	return nil
}

// LoadConfig loads the configuration from an optional file and from
// environment variables with the given prefix, e.g. RTO_INITIAL_LIMIT.
// Unset keys keep their DefaultConfig value.
func LoadConfig(prefix, path string) (Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("initial_limit", def.InitialLimit)
	v.SetDefault("max_limit", def.MaxLimit)
	v.SetDefault("parallelism", def.Parallelism)
	v.SetDefault("edge_cache_size", def.EdgeCacheSize)
	v.SetDefault("retry_underflow", def.RetryUnderflow)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
