package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayCache remembers callback nonces for the replay window. MarkSeen
// returns true when the nonce is fresh and has now been recorded, false when
// it was already used.
type ReplayCache interface {
	MarkSeen(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// RedisReplayCache shares the nonce window across processes.
type RedisReplayCache struct {
	client *redis.Client
	prefix string
}

func NewRedisReplayCache(client *redis.Client) *RedisReplayCache {
	return &RedisReplayCache{client: client, prefix: "trustcore:webhook:nonce:"}
}

func (c *RedisReplayCache) MarkSeen(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+nonce, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("nonce cache: %w", err)
	}
	return ok, nil
}

// MemoryReplayCache is the single-process fallback when Redis is not
// configured. Expired entries are swept lazily on each call.
type MemoryReplayCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{seen: make(map[string]time.Time), now: time.Now}
}

func (c *MemoryReplayCache) MarkSeen(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for n, exp := range c.seen {
		if now.After(exp) {
			delete(c.seen, n)
		}
	}
	if _, ok := c.seen[nonce]; ok {
		return false, nil
	}
	c.seen[nonce] = now.Add(ttl)
	return true, nil
}
