package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ragroute/ragroute/embedding"
	"github.com/ragroute/ragroute/schema"
)

// MemoryProvider is an in-process cosine-similarity store used in tests
// and single-node development. Text queries are embedded locally.
type MemoryProvider struct {
	mu          sync.RWMutex
	collections map[string]map[string]schema.Point
	embedder    embedding.Provider
}

func NewMemoryProvider(embedder embedding.Provider) *MemoryProvider {
	return &MemoryProvider{
		collections: make(map[string]map[string]schema.Point),
		embedder:    embedder,
	}
}

func (m *MemoryProvider) EnsureCollection(_ context.Context, name string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		m.collections[name] = make(map[string]schema.Point)
	}
	return nil
}

func (m *MemoryProvider) Upsert(ctx context.Context, collection string, points []schema.Point) error {
	for i := range points {
		if len(points[i].Vector) == 0 && points[i].Text != "" {
			if m.embedder == nil {
				return ErrTextQueryUnsupported
			}
			vec, err := m.embedder.Embed(ctx, points[i].Text)
			if err != nil {
				return fmt.Errorf("embed point text failed, err: %w", err)
			}
			points[i].Vector = vec
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		coll = make(map[string]schema.Point)
		m.collections[collection] = coll
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

func (m *MemoryProvider) Search(ctx context.Context, collection string, query schema.VectorQuery, opts schema.SearchOptions) ([]schema.ScoredPoint, error) {
	vec := query.Vector
	if len(vec) == 0 {
		if query.Text == "" {
			return nil, fmt.Errorf("search requires a vector or text query")
		}
		if m.embedder == nil {
			return nil, ErrTextQueryUnsupported
		}
		var err error
		vec, err = m.embedder.Embed(ctx, query.Text)
		if err != nil {
			return nil, fmt.Errorf("embed query failed, err: %w", err)
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	coll := m.collections[collection]

	hits := make([]schema.ScoredPoint, 0, len(coll))
	for _, p := range coll {
		if !matchFilters(p.Payload, opts.Filters) {
			continue
		}
		sp := schema.ScoredPoint{
			ID:      p.ID,
			Score:   Cosine(vec, p.Vector),
			Payload: p.Payload,
		}
		if opts.WithVectors {
			sp.Vector = p.Vector
		}
		hits = append(hits, sp)
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if opts.TopK > 0 && len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits, nil
}

func (m *MemoryProvider) GetByID(_ context.Context, collection, id string) (*schema.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.collections[collection][id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *MemoryProvider) Delete(_ context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collections[collection]
	for _, id := range ids {
		delete(coll, id)
	}
	return nil
}

func (m *MemoryProvider) Close() error { return nil }

func matchFilters(payload, filters map[string]any) bool {
	for k, want := range filters {
		if payload[k] != want {
			return false
		}
	}
	return true
}

// Cosine computes cosine similarity between two vectors; mismatched or
// zero-length vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
