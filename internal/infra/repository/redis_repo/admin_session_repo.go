package redis_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type IAdminSessionRepository interface {
	CreateSession(ctx context.Context, token string, ttl time.Duration) error
	SessionExists(ctx context.Context, token string) (bool, error)
	DeleteSession(ctx context.Context, token string) error
}

type AdminSessionRepo struct {
	sessionCache *redis.Client
}

func NewAdminSessionRepo(sessionCache *redis.Client) *AdminSessionRepo {
	return &AdminSessionRepo{sessionCache: sessionCache}
}

var _ IAdminSessionRepository = (*AdminSessionRepo)(nil)

func generateAdminSessionKey(token string) string {
	return fmt.Sprintf("admin:session:%s", token)
}

func (r *AdminSessionRepo) CreateSession(ctx context.Context, token string, ttl time.Duration) error {
	ok, err := r.sessionCache.SetNX(ctx, generateAdminSessionKey(token), time.Now().Unix(), ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create admin session: %w", err)
	}
	if !ok {
		return errors.New("admin session token collision")
	}
	return nil
}

func (r *AdminSessionRepo) SessionExists(ctx context.Context, token string) (bool, error) {
	n, err := r.sessionCache.Exists(ctx, generateAdminSessionKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check admin session: %w", err)
	}
	return n == 1, nil
}

func (r *AdminSessionRepo) DeleteSession(ctx context.Context, token string) error {
	if err := r.sessionCache.Del(ctx, generateAdminSessionKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete admin session: %w", err)
	}
	return nil
}
