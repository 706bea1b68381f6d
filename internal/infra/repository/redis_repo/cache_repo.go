package redis_repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// JSONCacheRepo 外部資料的快取，例如取貨點清單
type JSONCacheRepo struct {
	cache *redis.Client
}

func NewJSONCacheRepo(cache *redis.Client) *JSONCacheRepo {
	return &JSONCacheRepo{cache: cache}
}

// GetJSON key 不存在時回傳 false
func (r *JSONCacheRepo) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	data, err := r.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to decode cache %s: %w", key, err)
	}
	return true, nil
}

func (r *JSONCacheRepo) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache %s: %w", key, err)
	}
	if err := r.cache.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache %s: %w", key, err)
	}
	return nil
}
