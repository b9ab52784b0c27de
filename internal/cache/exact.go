package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/pkg/logger"
)

type exactEntry struct {
	response string
	created  time.Time
}

// ExactCache maps a normalized query in a given context to a response.
type ExactCache struct {
	mu      sync.Mutex
	entries map[string]exactEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    int64
	misses  int64
}

func NewExactCache(maxSize int, ttl time.Duration, opts ...Option) *ExactCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := buildOptions(opts)
	return &ExactCache{
		entries: make(map[string]exactEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     o.now,
	}
}

func (c *ExactCache) Get(query string, ctx Context) (string, bool) {
	if query == "" {
		return "", false
	}
	key, err := Key(query, ctx)
	if err != nil {
		logger.Debug("Exact cache lookup skipped", zap.Error(err))
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.now().Sub(entry.created) >= c.ttl {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return "", false
	}
	c.hits++
	return entry.response, true
}

func (c *ExactCache) Set(query string, ctx Context, response string) {
	if query == "" || response == "" {
		return
	}
	key, err := Key(query, ctx)
	if err != nil {
		logger.Debug("Exact cache store skipped", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}
	c.entries[key] = exactEntry{response: response, created: c.now()}
}

func (c *ExactCache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.created.Before(oldest) || (entry.created.Equal(oldest) && key < oldestKey) {
			oldestKey, oldest, first = key, entry.created, false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

func (c *ExactCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ExactCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]exactEntry)
}

func (c *ExactCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:         len(c.entries),
		MaxSize:      c.maxSize,
		UsagePercent: usagePercent(len(c.entries), c.maxSize),
		Hits:         c.hits,
		Misses:       c.misses,
	}
}
