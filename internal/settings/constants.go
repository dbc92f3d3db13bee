package settings

// DB config keys and defaults for settings.
const (
	// RateLimitKey controls how many asks a member may send per window.
	RateLimitKey = "RATE_LIMIT"
	// RateLimitWindowSecondsKey controls the rate limit window length in seconds.
	RateLimitWindowSecondsKey = "RATE_LIMIT_WINDOW_SECONDS"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// ModelCatalogTTLSecondsKey controls how long cached provider model lists stay fresh.
	ModelCatalogTTLSecondsKey = "MODEL_CATALOG_TTL_SECONDS"
	// DefaultRateLimit is the fallback rate limit (0 means unlimited).
	DefaultRateLimit = 0
	// DefaultRateLimitWindowSeconds is the fallback window length.
	DefaultRateLimitWindowSeconds = 60
	// DefaultRateLimitRedisEnabled sets the Redis toggle default.
	DefaultRateLimitRedisEnabled = false
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "botanswer:rl"
	// DefaultModelCatalogTTLSeconds is the fallback catalog freshness (one hour).
	DefaultModelCatalogTTLSeconds = 3600
)
