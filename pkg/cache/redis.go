package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s", ErrCacheMiss, key)
	}
	if err != nil {
		return fmt.Errorf("failed to get key: %w", err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal: %w", err)
	}

	return nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value interface{}) error {
	return r.SetWithTTL(ctx, key, value, r.ttl)
}

func (r *RedisCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}

	return nil
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return count > 0, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

type CacheKey struct {
	Prefix string
	ID     string
}

func (ck CacheKey) String() string {
	return fmt.Sprintf("%s:%s", ck.Prefix, ck.ID)
}

// ReportCacheKey keys a finished report by the transcript content hash,
// which is what makes recomputation of an unchanged transcript a cache hit.
func ReportCacheKey(contentHash string) string {
	return CacheKey{Prefix: "report:hash", ID: contentHash}.String()
}

// SessionReportCacheKey keys the latest report of a session.
func SessionReportCacheKey(sessionID string) string {
	return CacheKey{Prefix: "report:session", ID: sessionID}.String()
}

// SessionCacheKey keys session metadata.
func SessionCacheKey(sessionID string) string {
	return CacheKey{Prefix: "session", ID: sessionID}.String()
}
