package config

import (
	"os"
	"time"
)

// CatalogCacheConfig controls the Redis copy of the known product
// reference set consulted by the webhook reconciler.  When Enabled is
// false or no Redis client is configured, the set is read from the
// database on every lookup.
type CatalogCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Key     string
}

// LoadCatalogCacheConfig reads environment variables to build a
// CatalogCacheConfig.  Defaults are used when variables are not set.
func LoadCatalogCacheConfig() CatalogCacheConfig {
	return CatalogCacheConfig{
		Enabled: getenv("CATALOG_CACHE_ENABLED", "true") == "true",
		TTL:     parseDur(getenv("CATALOG_CACHE_TTL", "5m")),
		Key:     getenv("CATALOG_CACHE_KEY", "catalog:product_refs"),
	}
}

// EventLogConfig controls the Redis record of processed webhook event
// ids.  The record only short-circuits redeliveries; correctness never
// depends on it.
type EventLogConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadEventLogConfig reads the webhook event log settings.
func LoadEventLogConfig() EventLogConfig {
	return EventLogConfig{
		Enabled: getenv("WEBHOOK_EVENT_LOG_ENABLED", "true") == "true",
		TTL:     parseDur(getenv("WEBHOOK_EVENT_LOG_TTL", "72h")),
		Prefix:  getenv("WEBHOOK_EVENT_LOG_PREFIX", "stripe:event"),
	}
}

// Helper functions reused from redis.go and ratelimit.go
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDur(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Second
	}
	return d
}
