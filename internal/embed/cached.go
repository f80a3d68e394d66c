package embed

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/ppiankov/factrag/internal/cache"
)

// CachedEmbedder memoizes another embedder's vectors in a byte cache
type CachedEmbedder struct {
	inner Embedder
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedEmbedder wraps inner. A zero ttl uses the cache's default.
func NewCachedEmbedder(inner Embedder, c cache.Cache, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl}
}

func (e *CachedEmbedder) key(text string) string {
	return cache.Key("emb:v1", e.inner.ModelInfo(), text)
}

// Embed returns the cached vector or computes and stores it
func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if v, ok := e.lookup(key); ok {
		return v, nil
	}

	v, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	_ = e.cache.Set(key, encodeVector(v), e.ttl)
	return v, nil
}

// EmbedBatch embeds only the cache misses, in one inner batch call
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		missIdx   []int
		missTexts []string
	)
	for i, text := range texts {
		if v, ok := e.lookup(e.key(text)); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		if j >= len(vecs) {
			break
		}
		out[idx] = vecs[j]
		_ = e.cache.Set(e.key(missTexts[j]), encodeVector(vecs[j]), e.ttl)
	}
	return out, nil
}

func (e *CachedEmbedder) lookup(key string) ([]float32, bool) {
	data, ok := e.cache.Get(key)
	if !ok {
		return nil, false
	}
	v, ok := decodeVector(data)
	if !ok || len(v) != e.inner.Dimension() {
		return nil, false
	}
	return v, true
}

// Dimension returns the embedding dimension
func (e *CachedEmbedder) Dimension() int {
	return e.inner.Dimension()
}

// ModelInfo returns the wrapped model information
func (e *CachedEmbedder) ModelInfo() string {
	return e.inner.ModelInfo()
}

// encodeVector stores v as little-endian float32 bits
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, bool) {
	if len(data)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, true
}
