package vectordb

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ragroute/ragroute/common/httpx"
	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/schema"
)

// qdrantProvider speaks the Qdrant REST API. With an inference model
// configured it supports server-side embedding: points and queries carry
// raw text and the cluster embeds them, so no local embedding round-trip
// happens at all.
type qdrantProvider struct {
	baseURL        string
	apiKey         string
	inferenceModel string
	client         *httpx.Client
}

func newQdrantProvider(cfg config.VectorDBConfig, client *httpx.Client) *qdrantProvider {
	scheme := "http"
	if cfg.TLS {
		scheme = "https"
	}
	port := cfg.Port
	if port == 0 {
		port = 6333
	}
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	return &qdrantProvider{
		baseURL:        fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port),
		apiKey:         cfg.APIKey,
		inferenceModel: cfg.InferenceModel,
		client:         client,
	}
}

func (q *qdrantProvider) headers() map[string]string {
	if q.apiKey == "" {
		return nil
	}
	return map[string]string{"api-key": q.apiKey}
}

// document is Qdrant's inference object: text the cluster embeds with the
// named model.
type document struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

func (q *qdrantProvider) EnsureCollection(ctx context.Context, name string, dims int) error {
	var existing struct {
		Status string `json:"status"`
	}
	err := q.client.DoJSON(ctx, http.MethodGet, q.baseURL+"/collections/"+name, q.headers(), nil, &existing)
	if err == nil && existing.Status == "ok" {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{"size": dims, "distance": "Cosine"},
	}
	if err := q.client.DoJSON(ctx, http.MethodPut, q.baseURL+"/collections/"+name, q.headers(), body, nil); err != nil {
		return fmt.Errorf("create collection %s failed, err: %w", name, err)
	}
	return nil
}

func (q *qdrantProvider) Upsert(ctx context.Context, collection string, points []schema.Point) error {
	pts := make([]map[string]any, 0, len(points))
	for _, p := range points {
		pt := map[string]any{"id": p.ID, "payload": p.Payload}
		if len(p.Vector) > 0 {
			pt["vector"] = p.Vector
		} else if p.Text != "" && q.inferenceModel != "" {
			pt["vector"] = document{Text: p.Text, Model: q.inferenceModel}
		} else {
			return fmt.Errorf("point %s has neither vector nor inferable text", p.ID)
		}
		pts = append(pts, pt)
	}
	url := q.baseURL + "/collections/" + collection + "/points?wait=true"
	if err := q.client.DoJSON(ctx, http.MethodPut, url, q.headers(), map[string]any{"points": pts}, nil); err != nil {
		return fmt.Errorf("upsert %d points into %s failed, err: %w", len(points), collection, err)
	}
	return nil
}

type qdrantQueryResponse struct {
	Result struct {
		Points []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
			Vector  []float32      `json:"vector"`
		} `json:"points"`
	} `json:"result"`
	Time float64 `json:"time"` // server-side seconds
}

func (q *qdrantProvider) Search(ctx context.Context, collection string, query schema.VectorQuery, opts schema.SearchOptions) ([]schema.ScoredPoint, error) {
	body := map[string]any{
		"limit":        opts.TopK,
		"with_payload": true,
		"with_vector":  opts.WithVectors,
	}
	switch {
	case len(query.Vector) > 0:
		body["query"] = query.Vector
	case query.Text != "" && q.inferenceModel != "":
		body["query"] = document{Text: query.Text, Model: q.inferenceModel}
	case query.Text != "":
		return nil, ErrTextQueryUnsupported
	default:
		return nil, fmt.Errorf("search requires a vector or text query")
	}
	if len(opts.Filters) > 0 {
		must := make([]map[string]any, 0, len(opts.Filters))
		for k, v := range opts.Filters {
			must = append(must, map[string]any{"key": k, "match": map[string]any{"value": v}})
		}
		body["filter"] = map[string]any{"must": must}
	}

	var resp qdrantQueryResponse
	url := q.baseURL + "/collections/" + collection + "/points/query"
	if err := q.client.DoJSON(ctx, http.MethodPost, url, q.headers(), body, &resp); err != nil {
		return nil, fmt.Errorf("search in %s failed, err: %w", collection, err)
	}

	serverMs := int64(resp.Time * 1000)
	hits := make([]schema.ScoredPoint, 0, len(resp.Result.Points))
	for _, p := range resp.Result.Points {
		hits = append(hits, schema.ScoredPoint{
			ID:           fmt.Sprintf("%v", p.ID),
			Score:        p.Score,
			Payload:      p.Payload,
			Vector:       p.Vector,
			ServerTimeMs: serverMs,
		})
	}
	return hits, nil
}

func (q *qdrantProvider) GetByID(ctx context.Context, collection, id string) (*schema.Point, error) {
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Payload map[string]any `json:"payload"`
			Vector  []float32      `json:"vector"`
		} `json:"result"`
	}
	body := map[string]any{"ids": []string{id}, "with_payload": true, "with_vector": true}
	url := q.baseURL + "/collections/" + collection + "/points"
	if err := q.client.DoJSON(ctx, http.MethodPost, url, q.headers(), body, &resp); err != nil {
		return nil, fmt.Errorf("get point %s failed, err: %w", id, err)
	}
	if len(resp.Result) == 0 {
		return nil, nil
	}
	r := resp.Result[0]
	return &schema.Point{ID: fmt.Sprintf("%v", r.ID), Vector: r.Vector, Payload: r.Payload}, nil
}

func (q *qdrantProvider) Delete(ctx context.Context, collection string, ids []string) error {
	url := q.baseURL + "/collections/" + collection + "/points/delete?wait=true"
	if err := q.client.DoJSON(ctx, http.MethodPost, url, q.headers(), map[string]any{"points": ids}, nil); err != nil {
		return fmt.Errorf("delete %d points from %s failed, err: %w", len(ids), collection, err)
	}
	return nil
}

func (q *qdrantProvider) Close() error { return nil }
