package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

type entry struct {
	vector []float32
	norm   float64
}

// Memory is an exact in-process cosine index
type Memory struct {
	mu      sync.RWMutex
	dim     int
	entries map[string]entry
	order   []string
}

// NewMemory creates an empty index for vectors of length dim
func NewMemory(dim int) *Memory {
	return &Memory{
		dim:     dim,
		entries: make(map[string]entry),
	}
}

// Upsert stores a copy of vector under id. Metadata is ignored.
func (m *Memory) Upsert(_ context.Context, id string, vector []float32, _ map[string]any) error {
	if len(vector) != m.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vector), m.dim)
	}

	v := make([]float32, len(vector))
	copy(v, vector)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		m.order = append(m.order, id)
	}
	m.entries[id] = entry{vector: v, norm: norm(v)}
	return nil
}

// Query returns up to k hits ordered by ascending distance.
// Ties keep insertion order.
func (m *Memory) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vector), m.dim)
	}
	if k <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qn := norm(vector)

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		hits = append(hits, Hit{ID: id, Distance: 1 - cosine(vector, qn, e.vector, e.norm)})
	}
	m.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Len returns the number of stored vectors
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// cosine is 0 when either vector is zero
func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
