package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of query vectors kept by Cached.
const DefaultCacheSize = 512

// Cached memoizes single-text embeddings of an Engine. It is meant for the
// query path, where the same short texts are embedded repeatedly.
type Cached struct {
	Engine
	cache *lru.Cache[string, []float32]
}

// NewCached wraps e with an LRU of the given size.
func NewCached(e Engine, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &Cached{Engine: e, cache: c}, nil
}

// Embed returns cached vectors where available and embeds the rest in one
// call to the wrapped engine.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var slots []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.Engine.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vecs {
		out[slots[j]] = v
		c.cache.Add(missing[j], v)
	}
	return out, nil
}
