package redis_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CartRepo 購物車整包 json 存在一個 key，每次寫入重設 TTL
type CartRepo struct {
	cartCache *redis.Client
	ttl       time.Duration
}

func NewCartRepo(cartCache *redis.Client, ttl time.Duration) *CartRepo {
	return &CartRepo{cartCache: cartCache, ttl: ttl}
}

func generateCartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func (r *CartRepo) Load(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := r.cartCache.Get(ctx, generateCartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return data, nil
}

func (r *CartRepo) Save(ctx context.Context, sessionID string, data []byte) error {
	if err := r.cartCache.Set(ctx, generateCartKey(sessionID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (r *CartRepo) Remove(ctx context.Context, sessionID string) error {
	if err := r.cartCache.Del(ctx, generateCartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to remove cart: %w", err)
	}
	return nil
}
