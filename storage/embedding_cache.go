package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheMetrics 缓存指标
type CacheMetrics struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	EntryCount int64 `json:"entry_count"`
}

// CachedEmbedder 缓存向量，避免对同一文本重复调用 embeddings 接口
// 超过 maxEntries 淘汰最久未访问的条目，超过 maxAge 的条目失效
type CachedEmbedder struct {
	inner   Embedder
	entries *expirable.LRU[string, []float32]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func NewCachedEmbedder(inner Embedder, maxEntries int, maxAge time.Duration) *CachedEmbedder {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	c := &CachedEmbedder{inner: inner}
	c.entries = expirable.NewLRU[string, []float32](maxEntries, func(string, []float32) {
		c.evictions.Add(1)
	}, maxAge)
	return c
}

func (c *CachedEmbedder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if vec, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return append([]float32(nil), vec...), nil
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.entries.Add(key, append([]float32(nil), vec...))
	return vec, nil
}

// Metrics 返回指标快照
func (c *CachedEmbedder) Metrics() CacheMetrics {
	return CacheMetrics{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		EntryCount: int64(c.entries.Len()),
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
