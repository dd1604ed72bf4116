package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ragroute/ragroute/common/httpx"
	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/embedding"
	"github.com/ragroute/ragroute/schema"
)

// ErrTextQueryUnsupported is returned by stores that cannot embed
// server-side when a query carries raw text instead of a vector.
var ErrTextQueryUnsupported = errors.New("store does not support server-side text queries")

// Provider is the vector store contract. Implementations must score
// similarity search with cosine distance so thresholds are comparable
// across backends.
type Provider interface {
	EnsureCollection(ctx context.Context, name string, dims int) error
	Upsert(ctx context.Context, collection string, points []schema.Point) error
	Search(ctx context.Context, collection string, query schema.VectorQuery, opts schema.SearchOptions) ([]schema.ScoredPoint, error)
	GetByID(ctx context.Context, collection, id string) (*schema.Point, error)
	Delete(ctx context.Context, collection string, ids []string) error
	Close() error
}

// NewProvider builds the configured vector store. The embedder backs the
// in-memory store's text queries; network stores ignore it.
func NewProvider(ctx context.Context, cfg config.VectorDBConfig, client *httpx.Client, embedder embedding.Provider) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "qdrant":
		return newQdrantProvider(cfg, client), nil
	case "milvus":
		return newMilvusProvider(ctx, cfg)
	case "memory":
		return NewMemoryProvider(embedder), nil
	default:
		return nil, fmt.Errorf("unknown vectordb provider: %s", cfg.Provider)
	}
}
