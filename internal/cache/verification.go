package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moats-ai/moats-backend/internal/model"
)

// VerificationCache stores full verification results in Redis so identical
// re-verifications against an unchanged library skip the pipeline. Cache
// misses and Redis outages are both just misses; the pipeline is the source
// of truth.
type VerificationCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewVerificationCache connects to Redis at the given URL
// (redis://host:port/db). Returns an error when the URL does not parse; a
// down server only surfaces as misses at call time.
func NewVerificationCache(redisURL string, ttl time.Duration) (*VerificationCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache.NewVerificationCache: parse url: %w", err)
	}
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &VerificationCache{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

// Key derives the cache key from library id and input text. Any document
// change bumps the library's chunk count, which is part of the key, so stale
// results age out naturally.
func (c *VerificationCache) Key(libraryID string, chunkCount int, inputText string) string {
	sum := sha256.Sum256([]byte(inputText))
	return fmt.Sprintf("verify:%s:%d:%s", libraryID, chunkCount, hex.EncodeToString(sum[:]))
}

// Get returns a cached result, or nil on miss or Redis error.
func (c *VerificationCache) Get(ctx context.Context, key string) *model.VerificationResult {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("verification cache get failed", "error", err)
		}
		return nil
	}

	var result model.VerificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		slog.Warn("verification cache entry corrupt, ignoring", "key", key, "error", err)
		return nil
	}
	return &result
}

// Set stores a result. Failures are logged and swallowed.
func (c *VerificationCache) Set(ctx context.Context, key string, result *model.VerificationResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Warn("verification cache set failed", "error", err)
	}
}

// Close releases the Redis connection.
func (c *VerificationCache) Close() error {
	return c.client.Close()
}
