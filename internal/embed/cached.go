package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached memoizes vectors from another embedder in an expiring LRU.
type Cached struct {
	next  Embedder
	cache *expirable.LRU[string, []float32]
}

// NewCached wraps e with an LRU of the given size and TTL. A non-positive
// size or TTL disables caching and returns e itself.
func NewCached(e Embedder, size int, ttl time.Duration) Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &Cached{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (c *Cached) Embed(ctx context.Context, text, taskType string) ([]float32, error) {
	key := cacheKey(c.next.Name(), taskType, text)
	if cached, ok := c.cache.Get(key); ok {
		return cloneVector(cached), nil
	}
	vec, err := c.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cloneVector(vec))
	return vec, nil
}

func (c *Cached) Dimension() int { return c.next.Dimension() }
func (c *Cached) Name() string   { return c.next.Name() }

// Len reports the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }

func cacheKey(name, taskType, text string) string {
	sum := sha256.Sum256([]byte(name + "\x00" + taskType + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
