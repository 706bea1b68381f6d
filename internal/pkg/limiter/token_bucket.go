package limiter

import (
	"context"
	"math"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

/*
TokenBucket 單機版，每個 key 一個 bucket
取用時才依經過時間補 token，不需要背景 goroutine
*/
type TokenBucket struct {
	LimiterConfig
	mu        sync.Mutex
	buckets   map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

func NewTokenBucket(config *LimiterConfig) *TokenBucket {
	cfg := GetDefaultLimiterConfig()
	if config != nil {
		cfg = config.withDefaults()
	}
	return &TokenBucket{
		LimiterConfig: cfg,
		buckets:       make(map[string]*bucket),
		now:           time.Now,
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.sweep(now)

	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(t.Capacity), lastRefill: now}
		t.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(float64(t.Capacity), b.tokens+elapsed*t.RatePS)
		b.lastRefill = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// 閒置的 bucket 早就補滿了，刪掉等同重新開始
func (t *TokenBucket) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < t.IdleTTL {
		return
	}
	t.lastSweep = now
	for key, b := range t.buckets {
		if now.Sub(b.lastRefill) >= t.IdleTTL {
			delete(t.buckets, key)
		}
	}
}

func (t *TokenBucket) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}
