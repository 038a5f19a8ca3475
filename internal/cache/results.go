package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"streamscribe/internal/types"
)

// Results is the shared short-lived cache of completed transcription results,
// keyed by (user, normalized URL) with an explicit TTL. Being in redis rather
// than a process map, it holds across instances and restarts.
type Results struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewResults(rdb *redis.Client, ttl time.Duration) *Results {
	return &Results{rdb: rdb, ttl: ttl}
}

func resultKey(userID, normalizedURL string) string {
	return fmt.Sprintf("scribe:result:%s:%s", userID, normalizedURL)
}

// Get returns the cached record for the user and URL, or ok=false on a miss.
// Cache errors are returned but callers treat the cache as best-effort.
func (c *Results) Get(ctx context.Context, userID, normalizedURL string) (*types.TranscriptionRecord, bool, error) {
	raw, err := c.rdb.Get(ctx, resultKey(userID, normalizedURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("result cache get: %w", err)
	}
	var rec types.TranscriptionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// poisoned entry, drop it
		c.rdb.Del(ctx, resultKey(userID, normalizedURL))
		return nil, false, nil
	}
	return &rec, true, nil
}

// Put stores a completed record under the cache TTL.
func (c *Results) Put(ctx context.Context, userID, normalizedURL string, rec *types.TranscriptionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("result cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, resultKey(userID, normalizedURL), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("result cache put: %w", err)
	}
	return nil
}

// Invalidate drops the entry, called when the owning record is deleted so a
// resubmission does real work again.
func (c *Results) Invalidate(ctx context.Context, userID, normalizedURL string) error {
	return c.rdb.Del(ctx, resultKey(userID, normalizedURL)).Err()
}
