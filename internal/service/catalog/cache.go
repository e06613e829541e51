package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const cacheSweepInterval = time.Minute

// Cache stores encoded upstream payloads. Implementations must be safe for
// concurrent use. A miss is reported with ok=false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close()
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache returns a process-local TTL cache with a background sweeper.
func NewMemoryCache() Cache {
	c := newMemoryCache(time.Now)
	go c.sweepLoop()
	return c
}

func newMemoryCache(now func() time.Time) *memoryCache {
	return &memoryCache{
		entries: make(map[string]cacheEntry),
		stopCh:  make(chan struct{}),
		now:     now,
	}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *memoryCache) sweepLoop() {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

func (c *memoryCache) cleanup() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *memoryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *memoryCache) Close() {
	c.once.Do(func() {
		close(c.stopCh)
	})
}

type redisCache struct {
	client  *redis.Client
	logger  *slog.Logger
	prefix  string
	timeout time.Duration
}

// NewRedisCache constructs a Redis backed catalog cache.
func NewRedisCache(addr, password string, db int, logger *slog.Logger) (Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisCache{
		client:  client,
		logger:  logger,
		prefix:  "reelview:catalog:",
		timeout: 250 * time.Millisecond,
	}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// Ping reports whether Redis is reachable.
func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *redisCache) Close() {
	if c.client == nil {
		return
	}
	if err := c.client.Close(); err != nil && c.logger != nil {
		c.logger.Warn("catalog cache close failed", "error", err)
	}
}
