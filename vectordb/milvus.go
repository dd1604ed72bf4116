package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/schema"
)

const (
	milvusIDField      = "id"
	milvusVectorField  = "vector"
	milvusPayloadField = "payload"

	milvusIDMaxLength = 128
	hnswM             = 8
	hnswEfConstruct   = 200
	hnswEfSearch      = 64
)

// milvusProvider stores points in Milvus with a fixed three-field schema:
// varchar primary key, float vector, JSON payload. Cosine metric keeps
// scores comparable with the other providers. Milvus has no server-side
// text embedding, so text queries are rejected.
type milvusProvider struct {
	c client.Client
}

func newMilvusProvider(ctx context.Context, cfg config.VectorDBConfig) (*milvusProvider, error) {
	port := cfg.Port
	if port == 0 {
		port = 19530
	}
	c, err := client.NewClient(ctx, client.Config{
		Address:  fmt.Sprintf("%s:%d", cfg.Host, port),
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to milvus failed, err: %w", err)
	}
	return &milvusProvider{c: c}, nil
}

func (m *milvusProvider) EnsureCollection(ctx context.Context, name string, dims int) error {
	has, err := m.c.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection %s failed, err: %w", name, err)
	}
	if has {
		return nil
	}

	sch := &entity.Schema{
		CollectionName: name,
		Fields: []*entity.Field{
			entity.NewField().WithName(milvusIDField).WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).WithMaxLength(milvusIDMaxLength),
			entity.NewField().WithName(milvusVectorField).WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(dims)),
			entity.NewField().WithName(milvusPayloadField).WithDataType(entity.FieldTypeJSON),
		},
	}
	if err := m.c.CreateCollection(ctx, sch, 1); err != nil {
		return fmt.Errorf("create collection %s failed, err: %w", name, err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, hnswM, hnswEfConstruct)
	if err != nil {
		return fmt.Errorf("build hnsw index failed, err: %w", err)
	}
	if err := m.c.CreateIndex(ctx, name, milvusVectorField, idx, false); err != nil {
		return fmt.Errorf("create index on %s failed, err: %w", name, err)
	}
	if err := m.c.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("load collection %s failed, err: %w", name, err)
	}
	return nil
}

func (m *milvusProvider) Upsert(ctx context.Context, collection string, points []schema.Point) error {
	if len(points) == 0 {
		return nil
	}
	ids := make([]string, 0, len(points))
	vecs := make([][]float32, 0, len(points))
	payloads := make([][]byte, 0, len(points))
	for _, p := range points {
		if len(p.Vector) == 0 {
			return ErrTextQueryUnsupported
		}
		data, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for point %s failed, err: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
		vecs = append(vecs, p.Vector)
		payloads = append(payloads, data)
	}
	dim := len(vecs[0])
	_, err := m.c.Upsert(ctx, collection, "",
		entity.NewColumnVarChar(milvusIDField, ids),
		entity.NewColumnFloatVector(milvusVectorField, dim, vecs),
		entity.NewColumnJSONBytes(milvusPayloadField, payloads),
	)
	if err != nil {
		return fmt.Errorf("upsert %d points into %s failed, err: %w", len(points), collection, err)
	}
	return nil
}

func (m *milvusProvider) Search(ctx context.Context, collection string, query schema.VectorQuery, opts schema.SearchOptions) ([]schema.ScoredPoint, error) {
	if len(query.Vector) == 0 {
		if query.Text != "" {
			return nil, ErrTextQueryUnsupported
		}
		return nil, fmt.Errorf("search requires a vector query")
	}
	sp, err := entity.NewIndexHNSWSearchParam(hnswEfSearch)
	if err != nil {
		return nil, fmt.Errorf("build search param failed, err: %w", err)
	}
	results, err := m.c.Search(ctx, collection, nil, filterExpr(opts.Filters), searchOutputFields(opts.WithVectors),
		[]entity.Vector{entity.FloatVector(query.Vector)},
		milvusVectorField, entity.COSINE, opts.TopK, sp)
	if err != nil {
		return nil, fmt.Errorf("search in %s failed, err: %w", collection, err)
	}

	var hits []schema.ScoredPoint
	for _, res := range results {
		idCol, _ := res.IDs.(*entity.ColumnVarChar)
		payloadCol := jsonColumn(res.Fields)
		vecCol := floatVectorColumn(res.Fields)
		for i := 0; i < res.ResultCount; i++ {
			hit := schema.ScoredPoint{Score: float64(res.Scores[i])}
			if idCol != nil {
				hit.ID, _ = idCol.ValueByIdx(i)
			}
			if payloadCol != nil {
				if raw, err := payloadCol.ValueByIdx(i); err == nil {
					_ = json.Unmarshal(raw, &hit.Payload)
				}
			}
			if opts.WithVectors && vecCol != nil && i < vecCol.Len() {
				hit.Vector = vecCol.Data()[i]
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

// searchOutputFields includes the vector column only on request; vectors
// dominate response size.
func searchOutputFields(withVectors bool) []string {
	fields := []string{milvusIDField, milvusPayloadField}
	if withVectors {
		fields = append(fields, milvusVectorField)
	}
	return fields
}

func (m *milvusProvider) GetByID(ctx context.Context, collection, id string) (*schema.Point, error) {
	rs, err := m.c.Query(ctx, collection, nil,
		fmt.Sprintf(`%s == "%s"`, milvusIDField, escapeExpr(id)),
		[]string{milvusIDField, milvusVectorField, milvusPayloadField})
	if err != nil {
		return nil, fmt.Errorf("get point %s failed, err: %w", id, err)
	}

	var point *schema.Point
	for _, col := range rs {
		switch c := col.(type) {
		case *entity.ColumnVarChar:
			if c.Name() == milvusIDField && c.Len() > 0 {
				if point == nil {
					point = &schema.Point{}
				}
				point.ID, _ = c.ValueByIdx(0)
			}
		case *entity.ColumnFloatVector:
			if c.Len() > 0 {
				if point == nil {
					point = &schema.Point{}
				}
				point.Vector = c.Data()[0]
			}
		case *entity.ColumnJSONBytes:
			if c.Len() > 0 {
				if point == nil {
					point = &schema.Point{}
				}
				if raw, err := c.ValueByIdx(0); err == nil {
					_ = json.Unmarshal(raw, &point.Payload)
				}
			}
		}
	}
	return point, nil
}

func (m *milvusProvider) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, fmt.Sprintf(`"%s"`, escapeExpr(id)))
	}
	expr := fmt.Sprintf("%s in [%s]", milvusIDField, strings.Join(quoted, ", "))
	if err := m.c.Delete(ctx, collection, "", expr); err != nil {
		return fmt.Errorf("delete %d points from %s failed, err: %w", len(ids), collection, err)
	}
	return nil
}

func (m *milvusProvider) Close() error {
	return m.c.Close()
}

func jsonColumn(fields client.ResultSet) *entity.ColumnJSONBytes {
	for _, col := range fields {
		if c, ok := col.(*entity.ColumnJSONBytes); ok {
			return c
		}
	}
	return nil
}

func floatVectorColumn(fields client.ResultSet) *entity.ColumnFloatVector {
	for _, col := range fields {
		if c, ok := col.(*entity.ColumnFloatVector); ok {
			return c
		}
	}
	return nil
}

// filterExpr renders exact-match payload filters against the JSON field.
func filterExpr(filters map[string]any) string {
	if len(filters) == 0 {
		return ""
	}
	terms := make([]string, 0, len(filters))
	for k, v := range filters {
		switch val := v.(type) {
		case string:
			terms = append(terms, fmt.Sprintf(`%s["%s"] == "%s"`, milvusPayloadField, k, escapeExpr(val)))
		case bool:
			terms = append(terms, fmt.Sprintf(`%s["%s"] == %t`, milvusPayloadField, k, val))
		default:
			terms = append(terms, fmt.Sprintf(`%s["%s"] == %v`, milvusPayloadField, k, val))
		}
	}
	return strings.Join(terms, " && ")
}

func escapeExpr(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
