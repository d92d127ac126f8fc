package config

import "time"

// RateLimitConfig drives the token bucket in front of the write endpoints.
// Propagation and unlock requests are the expensive ones, so reads are not
// limited.  Capacity tokens are available in a burst and RefillTokens are
// added every RefillInterval.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration // idle buckets expire after TTL
	KeyStrategy    string        // "ip", "user", "ip_user_route" or "user_scene"
	Prefix         string
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  Values are clamped so
// that a misconfigured bucket still admits at least one request.
func LoadRateLimitConfig() RateLimitConfig {
	c := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 30),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "user_scene"),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	// A bucket must outlive a full refill or it resets to full too early.
	if floor := time.Duration(c.Capacity/c.RefillTokens+1) * c.RefillInterval; c.TTL < floor {
		c.TTL = floor
	}
	return c
}
