package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/auctionarb/internal/domain"
)

// LookupCache implements domain.LookupCache. Each entry is a hash holding
// the JSON result and the time it was cached.
//
// Key schema:
//
//	lookup:{source}:{sha256(query)} - hash {data, cached_at}
type LookupCache struct {
	c *Client
}

// NewLookupCache creates a LookupCache backed by the given Client.
func NewLookupCache(c *Client) *LookupCache {
	return &LookupCache{c: c}
}

func (lc *LookupCache) lookupKey(source, query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return lc.c.key("lookup", source, hex.EncodeToString(sum[:16]))
}

// Get decodes the cached result into dst. A miss yields domain.ErrNotFound.
func (lc *LookupCache) Get(ctx context.Context, source, query string, dst any) error {
	data, err := lc.c.rdb.HGet(ctx, lc.lookupKey(source, query), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("redis: get lookup %s: %w", source, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("redis: unmarshal lookup %s: %w", source, err)
	}
	return nil
}

// Set caches v for ttl.
func (lc *LookupCache) Set(ctx context.Context, source, query string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal lookup %s: %w", source, err)
	}

	key := lc.lookupKey(source, query)
	pipe := lc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data, "cached_at", time.Now().UTC().Format(time.RFC3339))
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set lookup %s: %w", source, err)
	}
	return nil
}

var _ domain.LookupCache = (*LookupCache)(nil)
