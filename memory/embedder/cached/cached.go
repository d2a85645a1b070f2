// Package cached memoizes embeddings in a ristretto cache. Turn texts are
// embedded once at commit and often again as queries, and user messages
// repeat, so a small cache saves most embedding calls.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/travel-memory/memory"
)

// DefaultSize is the default number of cached embeddings.
const DefaultSize = 4096

// Embedder wraps another embedder with a bounded cache keyed by text.
type Embedder struct {
	next  memory.Embedder
	cache *ristretto.Cache
}

// New wraps next with a cache of up to size embeddings.
func New(next memory.Embedder, size int) (*Embedder, error) {
	if size <= 0 {
		size = DefaultSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        int64(size) * 10,
		MaxCost:            int64(size),
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Embedder{next: next, cache: cache}, nil
}

// Embed returns the cached embedding for text or computes and caches it.
// Failures are never cached.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		return clone(v.([]float32)), nil
	}

	embedding, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, clone(embedding), 1)
	return embedding, nil
}

// Dimensions delegates to the wrapped embedder.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Wait blocks until pending cache writes are visible.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Close releases the cache.
func (e *Embedder) Close() {
	e.cache.Close()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
