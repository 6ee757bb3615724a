package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ArtifactCache stores intermediate artifacts per job phase in one hash, so a
// phase's resources can be released with a single delete.
type ArtifactCache struct {
	client *Client
	ttl    time.Duration
}

// NewArtifactCache creates a cache whose hashes expire after ttl (24h when zero).
func NewArtifactCache(client *Client, ttl time.Duration) *ArtifactCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ArtifactCache{client: client, ttl: ttl}
}

// Put stores an artifact and refreshes the phase TTL.
func (c *ArtifactCache) Put(ctx context.Context, jobID, phase, name string, value []byte) error {
	key := c.client.artifactsKey(jobID, phase)
	_, err := c.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, name, value)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache artifact %s: %w", name, err)
	}
	return nil
}

// Get returns an artifact, or nil when absent.
func (c *ArtifactCache) Get(ctx context.Context, jobID, phase, name string) ([]byte, error) {
	val, err := c.client.rdb.HGet(ctx, c.client.artifactsKey(jobID, phase), name).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget failed: %w", err)
	}
	return val, nil
}

// Release drops every artifact of the phase and returns how many there were.
func (c *ArtifactCache) Release(ctx context.Context, jobID, phase string) (int, error) {
	key := c.client.artifactsKey(jobID, phase)

	var count *redis.IntCmd
	_, err := c.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.HLen(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to release artifacts: %w", err)
	}
	return int(count.Val()), nil
}
