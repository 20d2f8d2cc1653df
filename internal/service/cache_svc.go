package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// PostCacheTTL bounds how stale a cached post document can get. Crispness is
// recomputed from the document at read time, so the TTL only limits ledger
// staleness, not score staleness.
const PostCacheTTL = 5 * time.Minute

// CacheService is a Redis cache-aside layer for post documents. With no
// Redis configured every operation is a no-op, so the engine works unchanged
// without a cache.
type CacheService struct {
	rdb *redis.Client
}

// NewCacheService connects to Redis at the given URL. An empty URL or a
// failed connection yields a disabled cache rather than an error.
func NewCacheService(redisURL string) *CacheService {
	if redisURL == "" {
		log.Println("redis: no URL configured, caching disabled")
		return &CacheService{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("redis: invalid URL %q, caching disabled: %v", redisURL, err)
		return &CacheService{}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("redis: connection failed, caching disabled: %v", err)
		return &CacheService{}
	}

	log.Println("redis: connected, caching enabled")
	return &CacheService{rdb: rdb}
}

// Client returns the underlying Redis client for health checks. May be nil.
func (c *CacheService) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

// GetPost retrieves a cached post document. Returns nil bytes on a miss or
// when the cache is disabled.
func (c *CacheService) GetPost(ctx context.Context, postID string) ([]byte, error) {
	if c == nil || c.rdb == nil {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, postKey(postID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

// SetPost stores a canonical post document.
func (c *CacheService) SetPost(ctx context.Context, postID string, doc []byte) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, postKey(postID), doc, PostCacheTTL).Err()
}

// InvalidatePost drops a post from cache. Called after every commit.
func (c *CacheService) InvalidatePost(ctx context.Context, postID string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, postKey(postID)).Err(); err != nil {
		log.Printf("redis: invalidate post %s: %v", postID, err)
	}
}

// Close shuts down the Redis connection.
func (c *CacheService) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func postKey(postID string) string {
	return fmt.Sprintf("post:%s", postID)
}
