package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ragroute/ragroute/common/logger"
	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/embedding"
	"github.com/ragroute/ragroute/schema"
	"github.com/ragroute/ragroute/vectordb"
)

// Entry is a semantic cache hit.
type Entry struct {
	Query      string
	Answer     string
	Sources    []schema.Source
	Mode       schema.Mode
	UserID     string
	Metadata   map[string]any
	Similarity float64
	AgeMinutes int64
	// ServerTimeMs and NetworkMs split the lookup latency when the store
	// reports server-side timing (remote inference observability).
	ServerTimeMs int64
	NetworkMs    int64
}

// SemanticCache maps queries to previously computed answers by embedding
// similarity. Entries live in a dedicated vector store collection; reads
// treat sub-threshold matches and expired entries as absent. The embedding
// path (local vs store-side inference) must match between reads and writes
// for a deployment.
type SemanticCache struct {
	store      vectordb.Provider
	embedder   embedding.Provider
	collection string
	threshold  float64
	ttl        time.Duration
	remote     bool
}

func NewSemanticCache(store vectordb.Provider, embedder embedding.Provider, collection string, cfg config.CacheConfig) *SemanticCache {
	return &SemanticCache{
		store:      store,
		embedder:   embedder,
		collection: collection,
		threshold:  cfg.SimilarityThreshold,
		ttl:        time.Duration(cfg.TTLHours) * time.Hour,
		remote:     cfg.RemoteInference,
	}
}

// Initialize idempotently ensures the backing collection exists.
func (c *SemanticCache) Initialize(ctx context.Context) error {
	dims := 0
	if c.embedder != nil {
		dims = c.embedder.Dimensions()
	}
	if err := c.store.EnsureCollection(ctx, c.collection, dims); err != nil {
		return fmt.Errorf("ensure cache collection failed, err: %w", err)
	}
	return nil
}

// Get looks up the nearest cached entry for query. Absence, a sub-threshold
// match and an expired entry all return (nil, nil).
func (c *SemanticCache) Get(ctx context.Context, query, userID string) (*Entry, error) {
	start := time.Now()

	var vq schema.VectorQuery
	if c.remote {
		vq.Text = query
	} else {
		vec, err := c.embedder.Embed(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("embed cache query failed, err: %w", err)
		}
		vq.Vector = vec
	}

	hits, err := c.store.Search(ctx, c.collection, vq, schema.SearchOptions{TopK: 1})
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed, err: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}
	hit := hits[0]
	if hit.Score < c.threshold {
		logger.Debugf("cache: nearest entry below threshold (%.3f < %.3f), treating as miss", hit.Score, c.threshold)
		return nil, nil
	}

	ts, err := time.Parse(time.RFC3339, str(hit.Payload["timestamp"]))
	if err != nil {
		logger.Warnf("cache: entry %s has unparseable timestamp, treating as miss: %v", hit.ID, err)
		return nil, nil
	}
	age := time.Since(ts)
	if c.ttl > 0 && age > c.ttl {
		logger.Debugf("cache: entry %s expired (age %s > ttl %s)", hit.ID, age, c.ttl)
		return nil, nil
	}

	entry := &Entry{
		Query:      str(hit.Payload["query"]),
		Answer:     str(hit.Payload["answer"]),
		Sources:    payloadSources(hit.Payload["sources"]),
		Mode:       schema.Mode(str(hit.Payload["mode"])),
		UserID:     str(hit.Payload["user_id"]),
		Similarity: hit.Score,
		AgeMinutes: int64(age.Minutes()),
	}
	if md, ok := hit.Payload["metadata"].(map[string]any); ok {
		entry.Metadata = md
	}
	if c.remote && hit.ServerTimeMs > 0 {
		entry.ServerTimeMs = hit.ServerTimeMs
		if total := time.Since(start).Milliseconds(); total > hit.ServerTimeMs {
			entry.NetworkMs = total - hit.ServerTimeMs
		}
	}
	return entry, nil
}

// Set writes a fresh entry under a new id. Callers treat failures as
// best-effort; the cache never mutates existing entries.
func (c *SemanticCache) Set(ctx context.Context, query, answer string, sources []schema.Source, mode schema.Mode, userID string, metadata map[string]any) error {
	payload := map[string]any{
		"query":     query,
		"answer":    answer,
		"sources":   sourcesPayload(sources),
		"mode":      string(mode),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"user_id":   userID,
	}
	if metadata != nil {
		payload["metadata"] = metadata
	}

	point := schema.Point{ID: uuid.NewString(), Payload: payload}
	if c.remote {
		point.Text = query
	} else {
		vec, err := c.embedder.Embed(ctx, query)
		if err != nil {
			return fmt.Errorf("embed cache entry failed, err: %w", err)
		}
		point.Vector = vec
	}

	if err := c.store.Upsert(ctx, c.collection, []schema.Point{point}); err != nil {
		return fmt.Errorf("cache write failed, err: %w", err)
	}
	return nil
}

func sourcesPayload(sources []schema.Source) []any {
	out := make([]any, 0, len(sources))
	for _, s := range sources {
		m := map[string]any{
			"doc_name":   s.DocName,
			"doc_id":     s.DocID,
			"chunk_text": s.ChunkText,
			"score":      s.Score,
		}
		if s.Page != nil {
			m["page"] = *s.Page
		}
		if s.ImageURL != "" {
			m["image_url"] = s.ImageURL
		}
		out = append(out, m)
	}
	return out
}

func payloadSources(v any) []schema.Source {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]schema.Source, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		s := schema.Source{
			DocName:   str(m["doc_name"]),
			DocID:     str(m["doc_id"]),
			ChunkText: str(m["chunk_text"]),
			ImageURL:  str(m["image_url"]),
			Score:     num(m["score"]),
		}
		if p, ok := m["page"]; ok {
			page := int(num(p))
			s.Page = &page
		}
		out = append(out, s)
	}
	return out
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
