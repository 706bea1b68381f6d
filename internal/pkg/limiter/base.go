package limiter

import (
	"context"
	"time"
)

type LimiterConfig struct {
	Capacity int
	RatePS   float64 // tokens/秒
	// key 閒置多久後可以被清掉
	IdleTTL time.Duration
}

func GetDefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Capacity: 10,
		RatePS:   2,
		IdleTTL:  10 * time.Minute,
	}
}

func (c LimiterConfig) withDefaults() LimiterConfig {
	def := GetDefaultLimiterConfig()
	if c.Capacity <= 0 {
		c.Capacity = def.Capacity
	}
	if c.RatePS <= 0 {
		c.RatePS = def.RatePS
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = def.IdleTTL
	}
	return c
}

// Limiter 以 key 區分 (例如 client ip)
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}
