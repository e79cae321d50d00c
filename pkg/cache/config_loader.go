package cache

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/knowledge-mesh/knowledge-mesh/pkg/cache/eviction"
)

// LoadConfigFromViper loads the coordinator configuration from a viper
// instance, layering configured values over DefaultConfig. Recognized keys
// live under the "cache." prefix, e.g. cache.memory.max_items,
// cache.disk.path, cache.remote.addr, cache.promotion_threshold.
func LoadConfigFromViper(v *viper.Viper) (Config, error) {
	config := DefaultConfig()

	if v.IsSet("cache.memory.enabled") {
		config.Memory.Enabled = v.GetBool("cache.memory.enabled")
	}
	if maxSize := v.GetInt64("cache.memory.max_size_bytes"); maxSize > 0 {
		config.Memory.MaxSizeBytes = maxSize
	}
	if maxItems := v.GetInt("cache.memory.max_items"); maxItems > 0 {
		config.Memory.MaxItems = maxItems
	}
	if ttl := v.GetDuration("cache.memory.default_ttl"); ttl > 0 {
		config.Memory.DefaultTTL = ttl
	}
	if policy := v.GetString("cache.memory.eviction_policy"); policy != "" {
		config.Memory.EvictionPolicy = eviction.PolicyType(policy)
	}

	if v.IsSet("cache.disk.enabled") {
		config.Disk.Enabled = v.GetBool("cache.disk.enabled")
	}
	if path := v.GetString("cache.disk.path"); path != "" {
		config.Disk.Path = path
	}
	if maxSize := v.GetInt64("cache.disk.max_size_bytes"); maxSize > 0 {
		config.Disk.MaxSizeBytes = maxSize
	}
	if maxItems := v.GetInt("cache.disk.max_items"); maxItems > 0 {
		config.Disk.MaxItems = maxItems
	}
	if ttl := v.GetDuration("cache.disk.default_ttl"); ttl > 0 {
		config.Disk.DefaultTTL = ttl
	}
	if policy := v.GetString("cache.disk.eviction_policy"); policy != "" {
		config.Disk.EvictionPolicy = eviction.PolicyType(policy)
	}

	if v.IsSet("cache.remote.enabled") {
		config.Remote.Enabled = v.GetBool("cache.remote.enabled")
	}
	if addr := v.GetString("cache.remote.addr"); addr != "" {
		config.Remote.Addr = addr
	}
	config.Remote.Password = v.GetString("cache.remote.password")
	config.Remote.DB = v.GetInt("cache.remote.db")
	if prefix := v.GetString("cache.remote.key_prefix"); prefix != "" {
		config.Remote.KeyPrefix = prefix
	}
	if ttl := v.GetDuration("cache.remote.default_ttl"); ttl > 0 {
		config.Remote.DefaultTTL = ttl
	}
	if timeout := v.GetDuration("cache.remote.operation_timeout"); timeout > 0 {
		config.Remote.OperationTimeout = timeout
	}
	if timeout := v.GetDuration("cache.remote.dial_timeout"); timeout > 0 {
		config.Remote.DialTimeout = timeout
	}

	if v.IsSet("cache.promotion_threshold") {
		config.PromotionThreshold = v.GetInt("cache.promotion_threshold")
	}
	if v.IsSet("cache.compression.enabled") {
		config.Compression.Enabled = v.GetBool("cache.compression.enabled")
	}
	if minSize := v.GetInt("cache.compression.min_size_bytes"); minSize > 0 {
		config.Compression.MinSizeBytes = minSize
	}
	if algo := v.GetString("cache.compression.algorithm"); algo != "" {
		config.Compression.Algorithm = CompressionAlgo(algo)
	}
	if interval := v.GetDuration("cache.sweep_interval"); interval > 0 {
		config.SweepInterval = interval
	}

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("cache configuration rejected: %w", err)
	}

	return config, nil
}
