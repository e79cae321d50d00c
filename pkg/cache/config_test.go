package cache

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/cache/eviction"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "memory tier disabled",
			mutate:  func(c *Config) { c.Memory.Enabled = false },
			wantErr: "memory tier must be enabled",
		},
		{
			name:    "zero promotion threshold",
			mutate:  func(c *Config) { c.PromotionThreshold = 0 },
			wantErr: "promotion_threshold",
		},
		{
			name:    "unknown eviction policy",
			mutate:  func(c *Config) { c.Memory.EvictionPolicy = "arc" },
			wantErr: "eviction_policy",
		},
		{
			name:    "unknown compression algorithm",
			mutate:  func(c *Config) { c.Compression.Algorithm = "lz4" },
			wantErr: "compression algorithm",
		},
		{
			name:    "disk enabled without path",
			mutate:  func(c *Config) { c.Disk.Enabled = true },
			wantErr: "disk tier requires a path",
		},
		{
			name:    "remote enabled without address",
			mutate:  func(c *Config) { c.Remote.Enabled = true },
			wantErr: "remote tier requires an address",
		},
		{
			name:    "negative memory TTL",
			mutate:  func(c *Config) { c.Memory.DefaultTTL = -time.Second },
			wantErr: "default_ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigFromViper(t *testing.T) {
	v := viper.New()
	v.Set("cache.memory.max_items", 500)
	v.Set("cache.memory.eviction_policy", "lfu")
	v.Set("cache.disk.enabled", true)
	v.Set("cache.disk.path", t.TempDir())
	v.Set("cache.remote.addr", "localhost:6379")
	v.Set("cache.remote.enabled", true)
	v.Set("cache.promotion_threshold", 5)
	v.Set("cache.compression.algorithm", "zstd")
	v.Set("cache.sweep_interval", "30s")

	cfg, err := LoadConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Memory.MaxItems)
	assert.Equal(t, eviction.LFU, cfg.Memory.EvictionPolicy)
	assert.True(t, cfg.Disk.Enabled)
	assert.True(t, cfg.Remote.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Remote.Addr)
	assert.Equal(t, 5, cfg.PromotionThreshold)
	assert.Equal(t, CompressionZstd, cfg.Compression.Algorithm)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)

	// Unset keys keep their defaults
	assert.Equal(t, int64(DefaultMemoryMaxSizeBytes), cfg.Memory.MaxSizeBytes)
	assert.Equal(t, time.Duration(DefaultRemoteOperationTimeout), cfg.Remote.OperationTimeout)
}

func TestLoadConfigFromViperRejectsInvalid(t *testing.T) {
	v := viper.New()
	v.Set("cache.memory.eviction_policy", "random")

	_, err := LoadConfigFromViper(v)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
