package cache

import (
	"fmt"
	"time"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/cache/eviction"
)

// Defaults for the coordinator and tiers. The promotion threshold and the
// per-tier TTL split (short for memory, long for disk) are tunables, not
// asserted optima; long-lived content is biased toward the durable tier.
const (
	DefaultPromotionThreshold      = 3
	DefaultMemoryTTL               = 1 * time.Hour
	DefaultDiskTTL                 = 24 * time.Hour
	DefaultRemoteTTL               = 1 * time.Hour
	DefaultMemoryMaxItems          = 10000
	DefaultMemoryMaxSizeBytes      = 64 << 20 // 64MB
	DefaultDiskMaxItems            = 100000
	DefaultDiskMaxSizeBytes        = 1 << 30 // 1GB
	DefaultCompressionMinSizeBytes = 1024
	DefaultRemoteOperationTimeout  = 250 * time.Millisecond
	DefaultRemoteDialTimeout       = 5 * time.Second
)

// TierConfig bounds one cache tier
type TierConfig struct {
	Enabled        bool                `mapstructure:"enabled"`
	MaxSizeBytes   int64               `mapstructure:"max_size_bytes"`
	MaxItems       int                 `mapstructure:"max_items"`
	DefaultTTL     time.Duration       `mapstructure:"default_ttl"`
	EvictionPolicy eviction.PolicyType `mapstructure:"eviction_policy"`
}

// DiskConfig configures the file-backed tier
type DiskConfig struct {
	TierConfig `mapstructure:",squash"`
	Path       string `mapstructure:"path"`
}

// RemoteConfig configures the shared remote KV tier
type RemoteConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Addr             string        `mapstructure:"addr"`
	Password         string        `mapstructure:"password"`
	DB               int           `mapstructure:"db"`
	KeyPrefix        string        `mapstructure:"key_prefix"`
	DefaultTTL       time.Duration `mapstructure:"default_ttl"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
}

// CompressionConfig controls value compression
type CompressionConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	MinSizeBytes int             `mapstructure:"min_size_bytes"`
	Algorithm    CompressionAlgo `mapstructure:"algorithm"`
}

// Config configures the tier coordinator
type Config struct {
	Memory TierConfig   `mapstructure:"memory"`
	Disk   DiskConfig   `mapstructure:"disk"`
	Remote RemoteConfig `mapstructure:"remote"`

	PromotionThreshold int               `mapstructure:"promotion_threshold"`
	Compression        CompressionConfig `mapstructure:"compression"`

	// SweepInterval enables the optional background expiry sweeper when
	// positive. Lazy expiry at read time remains authoritative either way.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// DefaultConfig returns the default coordinator configuration: memory tier
// enabled, disk tier off until a path is configured, remote tier off until
// an address is configured.
func DefaultConfig() Config {
	return Config{
		Memory: TierConfig{
			Enabled:        true,
			MaxSizeBytes:   DefaultMemoryMaxSizeBytes,
			MaxItems:       DefaultMemoryMaxItems,
			DefaultTTL:     DefaultMemoryTTL,
			EvictionPolicy: eviction.LRU,
		},
		Disk: DiskConfig{
			TierConfig: TierConfig{
				Enabled:        false,
				MaxSizeBytes:   DefaultDiskMaxSizeBytes,
				MaxItems:       DefaultDiskMaxItems,
				DefaultTTL:     DefaultDiskTTL,
				EvictionPolicy: eviction.TTL,
			},
		},
		Remote: RemoteConfig{
			Enabled:          false,
			DefaultTTL:       DefaultRemoteTTL,
			OperationTimeout: DefaultRemoteOperationTimeout,
			DialTimeout:      DefaultRemoteDialTimeout,
			KeyPrefix:        "kmesh:cache:",
		},
		PromotionThreshold: DefaultPromotionThreshold,
		Compression: CompressionConfig{
			Enabled:      true,
			MinSizeBytes: DefaultCompressionMinSizeBytes,
			Algorithm:    CompressionGzip,
		},
	}
}

// Validate fails fast on configuration that cannot produce a working
// coordinator. Called by NewCoordinator before any tier is constructed.
func (c *Config) Validate() error {
	if !c.Memory.Enabled {
		return fmt.Errorf("%w: memory tier must be enabled", ErrInvalidConfig)
	}
	if c.PromotionThreshold < 1 {
		return fmt.Errorf("%w: promotion_threshold must be >= 1, got %d", ErrInvalidConfig, c.PromotionThreshold)
	}
	if c.Compression.MinSizeBytes < 0 {
		return fmt.Errorf("%w: compression min_size_bytes must be >= 0", ErrInvalidConfig)
	}
	if c.Compression.Enabled {
		switch c.Compression.Algorithm {
		case CompressionGzip, CompressionZstd:
		default:
			return fmt.Errorf("%w: unsupported compression algorithm %q", ErrInvalidConfig, c.Compression.Algorithm)
		}
	}

	if err := validateTier("memory", c.Memory); err != nil {
		return err
	}
	if c.Disk.Enabled {
		if err := validateTier("disk", c.Disk.TierConfig); err != nil {
			return err
		}
		if c.Disk.Path == "" {
			return fmt.Errorf("%w: disk tier requires a path", ErrInvalidConfig)
		}
	}
	if c.Remote.Enabled {
		if c.Remote.Addr == "" {
			return fmt.Errorf("%w: remote tier requires an address", ErrInvalidConfig)
		}
		if c.Remote.OperationTimeout <= 0 {
			return fmt.Errorf("%w: remote operation_timeout must be positive", ErrInvalidConfig)
		}
	}

	return nil
}

func validateTier(name string, cfg TierConfig) error {
	if cfg.MaxSizeBytes < 0 {
		return fmt.Errorf("%w: %s max_size_bytes must be >= 0", ErrInvalidConfig, name)
	}
	if cfg.MaxItems < 0 {
		return fmt.Errorf("%w: %s max_items must be >= 0", ErrInvalidConfig, name)
	}
	if cfg.DefaultTTL < 0 {
		return fmt.Errorf("%w: %s default_ttl must be >= 0", ErrInvalidConfig, name)
	}
	if !cfg.EvictionPolicy.Valid() {
		return fmt.Errorf("%w: %s eviction_policy %q is not supported", ErrInvalidConfig, name, cfg.EvictionPolicy)
	}
	return nil
}
