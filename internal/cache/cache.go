package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kiranshivaraju/trialscope/pkg/models"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetSnapshot(ctx context.Context, snap *models.StatusResponse, ttl time.Duration) error
	GetSnapshot(ctx context.Context, jobID string) (*models.StatusResponse, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// ErrNotTerminal is returned when storing a snapshot of a job that can
// still change.
var ErrNotTerminal = errors.New("snapshot status is not terminal")

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// get reports found=false, with no error, for a missing key.
func (c *RedisCache) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// SetSnapshot stores a terminal status response under its job id. Terminal
// jobs never change, so a snapshot is only refreshed by expiry.
func (c *RedisCache) SetSnapshot(ctx context.Context, snap *models.StatusResponse, ttl time.Duration) error {
	if !snap.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrNotTerminal, snap.Status)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return c.set(ctx, SnapshotKey(snap.JobID), data, ttl)
}

func (c *RedisCache) GetSnapshot(ctx context.Context, jobID string) (*models.StatusResponse, bool, error) {
	data, found, err := c.get(ctx, SnapshotKey(jobID))
	if err != nil || !found {
		return nil, false, err
	}
	var snap models.StatusResponse
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Compile-time check that RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
