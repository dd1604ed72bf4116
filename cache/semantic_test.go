package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/embedding"
	"github.com/ragroute/ragroute/schema"
	"github.com/ragroute/ragroute/vectordb"
)

const testCollection = "test_query_cache"

func newTestCache(t *testing.T, cfg config.CacheConfig) (*SemanticCache, *vectordb.MemoryProvider, embedding.Provider) {
	t.Helper()
	embedder := embedding.NewMockProvider(64)
	store := vectordb.NewMemoryProvider(embedder)
	c := NewSemanticCache(store, embedder, testCollection, cfg)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return c, store, embedder
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:             true,
		SimilarityThreshold: 0.95,
		TTLHours:            24,
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	c, _, _ := newTestCache(t, cacheConfig())
	ctx := context.Background()

	sources := []schema.Source{{DocName: "guide", DocID: "d1", ChunkText: "python basics", Score: 0.9}}
	if err := c.Set(ctx, "what is python", "Python is a language.", sources, schema.ModeLocal, "user_1", nil); err != nil {
		t.Fatalf("set: %v", err)
	}

	entry, err := c.Get(ctx, "what is python", "user_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a hit for the identical query")
	}
	if entry.Similarity < 0.99 {
		t.Errorf("identical query similarity = %v, want ~1.0", entry.Similarity)
	}
	if entry.Answer != "Python is a language." {
		t.Errorf("unexpected answer: %q", entry.Answer)
	}
	if entry.Mode != schema.ModeLocal {
		t.Errorf("unexpected mode: %q", entry.Mode)
	}
	if len(entry.Sources) != 1 || entry.Sources[0].DocID != "d1" {
		t.Errorf("sources not round-tripped: %+v", entry.Sources)
	}
	if entry.AgeMinutes != 0 {
		t.Errorf("fresh entry age = %d min, want 0", entry.AgeMinutes)
	}
}

func TestGetRespectsThreshold(t *testing.T) {
	c, _, _ := newTestCache(t, cacheConfig())
	ctx := context.Background()

	if err := c.Set(ctx, "how do neural networks learn", "answer", nil, schema.ModeLocal, "u", nil); err != nil {
		t.Fatalf("set: %v", err)
	}

	entry, err := c.Get(ctx, "recipe for sourdough bread", "u")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry != nil {
		t.Errorf("dissimilar query returned a hit with similarity %v", entry.Similarity)
	}
}

func TestGetRespectsTTL(t *testing.T) {
	c, store, embedder := newTestCache(t, cacheConfig())
	ctx := context.Background()

	// Plant an entry stamped 25 hours in the past.
	vec, err := embedder.Embed(ctx, "stale question")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	old := time.Now().UTC().Add(-25 * time.Hour).Format(time.RFC3339)
	point := schema.Point{
		ID:     uuid.NewString(),
		Vector: vec,
		Payload: map[string]any{
			"query":     "stale question",
			"answer":    "stale answer",
			"mode":      "local",
			"timestamp": old,
			"user_id":   "u",
		},
	}
	if err := store.Upsert(ctx, testCollection, []schema.Point{point}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entry, err := c.Get(ctx, "stale question", "u")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry != nil {
		t.Errorf("expired entry returned as hit (age %d min)", entry.AgeMinutes)
	}
}

func TestGetReportsAge(t *testing.T) {
	c, store, embedder := newTestCache(t, cacheConfig())
	ctx := context.Background()

	vec, err := embedder.Embed(ctx, "aged question")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	ts := time.Now().UTC().Add(-90 * time.Minute).Format(time.RFC3339)
	point := schema.Point{
		ID:     uuid.NewString(),
		Vector: vec,
		Payload: map[string]any{
			"query":     "aged question",
			"answer":    "aged answer",
			"mode":      "hybrid",
			"timestamp": ts,
			"user_id":   "u",
		},
	}
	if err := store.Upsert(ctx, testCollection, []schema.Point{point}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entry, err := c.Get(ctx, "aged question", "u")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry == nil {
		t.Fatal("expected hit within ttl")
	}
	if entry.AgeMinutes < 89 || entry.AgeMinutes > 91 {
		t.Errorf("age = %d min, want ~90", entry.AgeMinutes)
	}
}

func TestGetMissOnEmptyCollection(t *testing.T) {
	c, _, _ := newTestCache(t, cacheConfig())

	entry, err := c.Get(context.Background(), "anything", "u")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry != nil {
		t.Error("expected miss on empty collection")
	}
}

func TestSetGeneratesFreshIDs(t *testing.T) {
	c, store, _ := newTestCache(t, cacheConfig())
	ctx := context.Background()

	// Two writes of the same query must coexist, never overwrite.
	if err := c.Set(ctx, "same query", "first", nil, schema.ModeLocal, "u", nil); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "same query", "second", nil, schema.ModeLocal, "u", nil); err != nil {
		t.Fatalf("set: %v", err)
	}

	hits, err := store.Search(ctx, testCollection, schema.VectorQuery{Text: "same query"}, schema.SearchOptions{TopK: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 coexisting entries, got %d", len(hits))
	}
}
