package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ragroute/ragroute/common/logger"
	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/embedding"
	"github.com/ragroute/ragroute/llm"
	"github.com/ragroute/ragroute/schema"
	"github.com/ragroute/ragroute/search"
	"github.com/ragroute/ragroute/vectordb"
)

// Timings are the per-stage latencies of one retrieval call, in
// milliseconds. Stages that did not run stay zero.
type Timings struct {
	EmbeddingMs      int64
	VectorSearchMs   int64
	InternetSearchMs int64
	GenerationMs     int64
}

// Result is one generated answer with its supporting sources.
type Result struct {
	Answer  string
	Sources []schema.Source
	Mode    schema.Mode
	Timings Timings
}

// LocalOptions tunes one local retrieval call.
type LocalOptions struct {
	TopK             int
	FilterClassified bool
	UseDiversity     bool
	// DiversityWeight trades relevance (0) against diversity (1) when
	// UseDiversity is set.
	DiversityWeight float64
}

// Service answers queries from the local knowledge base, the internet, or
// both. It owns no routing policy; the agent decides which mode to call.
type Service struct {
	store      vectordb.Provider
	embedder   embedding.Provider
	llm        llm.Provider
	search     search.Provider
	collection string
	remote     bool
	cfg        config.RetrievalConfig
}

func NewService(store vectordb.Provider, embedder embedding.Provider, gen llm.Provider, searcher search.Provider, collection string, remote bool, cfg config.RetrievalConfig) *Service {
	return &Service{
		store:      store,
		embedder:   embedder,
		llm:        gen,
		search:     searcher,
		collection: collection,
		remote:     remote,
		cfg:        cfg,
	}
}

// Retrieve runs the search half of QueryLocal without generation: it
// returns the ranked sources only. The agent uses it to score context
// before committing to an answer path.
func (s *Service) Retrieve(ctx context.Context, query string, opts LocalOptions) ([]schema.Source, Timings, error) {
	var t Timings

	vq := schema.VectorQuery{}
	if s.remote {
		vq.Text = query
	} else {
		start := time.Now()
		vec, err := s.embedder.Embed(ctx, query)
		if err != nil {
			return nil, t, fmt.Errorf("embed query failed, err: %w", err)
		}
		t.EmbeddingMs = time.Since(start).Milliseconds()
		vq.Vector = vec
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	searchOpts := schema.SearchOptions{TopK: topK}
	if opts.UseDiversity {
		searchOpts.TopK = diversityPool(topK)
		searchOpts.WithVectors = true
	}

	start := time.Now()
	hits, err := s.store.Search(ctx, s.collection, vq, searchOpts)
	if err != nil {
		return nil, t, fmt.Errorf("vector search failed, err: %w", err)
	}
	t.VectorSearchMs = time.Since(start).Milliseconds()

	if opts.UseDiversity {
		hits = mmrSelect(hits, topK, opts.DiversityWeight)
	}

	sources := make([]schema.Source, 0, len(hits))
	for _, hit := range hits {
		if opts.FilterClassified && isClassified(hit.Payload) {
			continue
		}
		sources = append(sources, s.hitToSource(hit))
	}
	return sources, t, nil
}

// QueryLocal answers from the knowledge base only.
func (s *Service) QueryLocal(ctx context.Context, query string, opts LocalOptions) (*Result, error) {
	sources, timings, err := s.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return s.GenerateLocal(ctx, query, sources, timings)
}

// GenerateLocal produces the context-grounded answer for already retrieved
// sources. Split from QueryLocal so the agent can score sources between
// retrieval and generation without retrieving twice.
func (s *Service) GenerateLocal(ctx context.Context, query string, sources []schema.Source, timings Timings) (*Result, error) {
	contextBlock := llm.BuildContext(sources, s.cfg.ContextTokenBudget)

	start := time.Now()
	answer, err := s.llm.GenerateCompletion(ctx, llm.SystemLocal, llm.AnswerPrompt(query, contextBlock))
	if err != nil {
		return nil, fmt.Errorf("local answer generation failed, err: %w", err)
	}
	timings.GenerationMs = time.Since(start).Milliseconds()

	return &Result{Answer: answer, Sources: sources, Mode: schema.ModeLocal, Timings: timings}, nil
}

// QueryInternet answers from web search results only.
func (s *Service) QueryInternet(ctx context.Context, query string, numResults int) (*Result, error) {
	if numResults <= 0 {
		numResults = s.cfg.TopK
	}

	start := time.Now()
	results, err := s.search.Search(ctx, query, numResults)
	if err != nil {
		return nil, fmt.Errorf("internet search failed, err: %w", err)
	}
	var t Timings
	t.InternetSearchMs = time.Since(start).Milliseconds()

	sources := make([]schema.Source, 0, len(results))
	for _, r := range results {
		sources = append(sources, schema.Source{
			DocName:   r.Title,
			DocID:     r.URL,
			ChunkText: r.Snippet,
			Score:     r.Score,
		})
	}

	contextBlock := llm.BuildContext(sources, s.cfg.ContextTokenBudget)
	start = time.Now()
	answer, err := s.llm.GenerateCompletion(ctx, llm.SystemInternet, llm.AnswerPrompt(query, contextBlock))
	if err != nil {
		return nil, fmt.Errorf("internet answer generation failed, err: %w", err)
	}
	t.GenerationMs = time.Since(start).Milliseconds()

	return &Result{Answer: answer, Sources: sources, Mode: schema.ModeInternet, Timings: t}, nil
}

// QueryHybrid answers the query locally and from the internet concurrently,
// then issues a final generation that synthesizes the two answers,
// attributing provenance and flagging conflicts. localSources, when non-nil,
// reuses an earlier retrieval instead of searching again.
func (s *Service) QueryHybrid(ctx context.Context, query string, opts LocalOptions, localSources []schema.Source) (*Result, error) {
	var (
		wg       sync.WaitGroup
		localRes *Result
		localErr error
		webRes   *Result
		webErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if localSources != nil {
			localRes, localErr = s.GenerateLocal(ctx, query, localSources, Timings{})
			return
		}
		localRes, localErr = s.QueryLocal(ctx, query, opts)
	}()
	go func() {
		defer wg.Done()
		webRes, webErr = s.QueryInternet(ctx, query, opts.TopK)
	}()
	wg.Wait()

	if localErr != nil {
		return nil, fmt.Errorf("hybrid local answer failed, err: %w", localErr)
	}
	if webErr != nil {
		return nil, fmt.Errorf("hybrid internet answer failed, err: %w", webErr)
	}

	start := time.Now()
	answer, err := s.llm.GenerateCompletion(ctx, llm.SystemSynthesis, llm.SynthesisPrompt(query, localRes.Answer, webRes.Answer))
	if err != nil {
		return nil, fmt.Errorf("hybrid answer synthesis failed, err: %w", err)
	}

	t := Timings{
		EmbeddingMs:      localRes.Timings.EmbeddingMs,
		VectorSearchMs:   localRes.Timings.VectorSearchMs,
		InternetSearchMs: webRes.Timings.InternetSearchMs,
		GenerationMs:     localRes.Timings.GenerationMs + webRes.Timings.GenerationMs + time.Since(start).Milliseconds(),
	}
	sources := append(append([]schema.Source{}, localRes.Sources...), webRes.Sources...)
	return &Result{Answer: answer, Sources: sources, Mode: schema.ModeHybrid, Timings: t}, nil
}

func (s *Service) hitToSource(hit schema.ScoredPoint) schema.Source {
	src := schema.Source{
		DocID: hit.ID,
		Score: hit.Score,
	}
	if v, ok := hit.Payload["doc_name"].(string); ok {
		src.DocName = v
	}
	if v, ok := hit.Payload["doc_id"].(string); ok && v != "" {
		src.DocID = v
	}
	if v, ok := hit.Payload["chunk_text"].(string); ok {
		src.ChunkText = preview(v, s.cfg.PreviewChars)
	}
	if v, ok := hit.Payload["image_url"].(string); ok {
		src.ImageURL = v
	}
	if v, ok := hit.Payload["page"]; ok {
		switch p := v.(type) {
		case float64:
			page := int(p)
			src.Page = &page
		case int:
			page := p
			src.Page = &page
		}
	}
	return src
}

func isClassified(payload map[string]any) bool {
	switch v := payload["classified"].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// preview cuts on rune boundaries so multibyte excerpts stay valid.
func preview(text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	logger.Debugf("retrieval: truncating stored excerpt from %d to %d chars", len(runes), limit)
	return string(runes[:limit])
}
