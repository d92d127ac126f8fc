package config

import "time"

// StateCacheConfig controls the Redis read-through cache in front of
// continuity state resolution.  Entries are keyed by branch, asset, a
// per-asset generation counter and the scene bound, so a write only needs to
// bump the generation.  TTL bounds how long an entry survives if an
// invalidation is lost.
type StateCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadStateCacheConfig reads STATE_CACHE_* variables.
func LoadStateCacheConfig() StateCacheConfig {
	c := StateCacheConfig{
		Enabled: envBool("STATE_CACHE_ENABLED", true),
		TTL:     envDur("STATE_CACHE_TTL", 30*time.Second),
		Prefix:  envStr("STATE_CACHE_PREFIX", "continuity"),
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Second
	}
	return c
}
