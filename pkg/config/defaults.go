package config

import "time"

// Server defaults.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultSessionTTL      = 30 * time.Minute
	DefaultMaxSessions     = 1024
)

// Dataset defaults.
const (
	DefaultDatasetSource = "data.json"
	DefaultMaxBytes      = "256MiB"
)

// Condense and UI defaults.
const (
	DefaultMaxPoints      = 150
	DefaultEvenSpacing    = false
	DefaultHighlightWidth = 400.0
	DefaultTooltipOffset  = 10.0
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Cache defaults.
const (
	DefaultCacheBackend = CacheMemory
	DefaultCachePrefix  = "trendscope"
	DefaultCacheTTL     = time.Hour
	DefaultCacheMaxSize = "64MiB"
)

// Logging defaults.
const (
	DefaultLogLevel = "info"
)
