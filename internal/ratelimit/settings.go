package ratelimit

import (
	"strings"
	"time"

	internalsettings "github.com/eamarucci/bot-answer/internal/settings"
)

// SettingsConfig is the rate limit slice of the DB settings.
type SettingsConfig struct {
	Limit         int           // asks per window; 0 disables limiting
	Window        time.Duration // at least one second
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// LoadSettingsConfig reads the current settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	window := time.Duration(internalsettings.IntValue(internalsettings.RateLimitWindowSecondsKey, internalsettings.DefaultRateLimitWindowSeconds)) * time.Second
	if window < time.Second {
		window = time.Duration(internalsettings.DefaultRateLimitWindowSeconds) * time.Second
	}
	prefix := strings.TrimSpace(internalsettings.StringValue(internalsettings.RateLimitRedisPrefixKey, ""))
	if prefix == "" {
		prefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	return SettingsConfig{
		Limit:         internalsettings.IntValue(internalsettings.RateLimitKey, internalsettings.DefaultRateLimit),
		Window:        window,
		RedisEnabled:  internalsettings.BoolValue(internalsettings.RateLimitRedisEnabledKey, internalsettings.DefaultRateLimitRedisEnabled),
		RedisAddr:     strings.TrimSpace(internalsettings.StringValue(internalsettings.RateLimitRedisAddrKey, "")),
		RedisPassword: strings.TrimSpace(internalsettings.StringValue(internalsettings.RateLimitRedisPasswordKey, "")),
		RedisDB:       internalsettings.IntValue(internalsettings.RateLimitRedisDBKey, 0),
		RedisPrefix:   prefix,
	}
}
