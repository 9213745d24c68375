package models

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	ServerAddr  string `yaml:"server_addr"`
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	KafkaBroker string `yaml:"kafka_broker"`
	KafkaTopic  string `yaml:"kafka_topic"`
	StoragePath string `yaml:"storage_path"`

	// DimensionsEnabled gates the whole dimension subsystem: routes,
	// event handling and write-through caching.
	DimensionsEnabled   bool `yaml:"dimensions_enabled"`
	BulkCacheTTLSeconds int  `yaml:"bulk_cache_ttl_seconds"`
	MaxBulkURLs         int  `yaml:"max_bulk_urls"`
}

const (
	DefaultBulkCacheTTL = 10 * time.Minute
	DefaultMaxBulkURLs  = 100
)

// BulkCacheTTL is the configured shared-cache expiry, defaulted when unset.
func (c *Config) BulkCacheTTL() time.Duration {
	if c.BulkCacheTTLSeconds <= 0 {
		return DefaultBulkCacheTTL
	}
	return time.Duration(c.BulkCacheTTLSeconds) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.MaxBulkURLs <= 0 {
		cfg.MaxBulkURLs = DefaultMaxBulkURLs
	}
	return &cfg, nil
}
