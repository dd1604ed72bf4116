package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ragroute/ragroute/auth"
	"github.com/ragroute/ragroute/cache"
	"github.com/ragroute/ragroute/common/logger"
	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/evaluator"
	"github.com/ragroute/ragroute/metrics"
	"github.com/ragroute/ragroute/retrieval"
	"github.com/ragroute/ragroute/schema"
)

// ErrUnsupportedMode is returned when a forced mode is not one of
// local/internet/hybrid. Failing fast beats silently defaulting.
var ErrUnsupportedMode = errors.New("unsupported query mode")

// Agent routes each query through cache lookup, local retrieval, quality
// scoring and the final answer path. It holds no mutable per-query state,
// so one Agent serves concurrent requests.
type Agent struct {
	semantic  *cache.SemanticCache
	l1        *cache.ResultCache
	l1TTL     time.Duration
	retrieval *retrieval.Service
	evaluator *evaluator.Evaluator
	cfg       config.AgentConfig
	useCache  bool
}

// Options bundles the agent's collaborators. Semantic may be nil when the
// cache is disabled; L1 may be nil when the exact-match layer is disabled.
type Options struct {
	Semantic  *cache.SemanticCache
	L1        *cache.ResultCache
	L1TTL     time.Duration
	Retrieval *retrieval.Service
	Evaluator *evaluator.Evaluator
	Config    config.AgentConfig
}

func New(opts Options) *Agent {
	return &Agent{
		semantic:  opts.Semantic,
		l1:        opts.L1,
		l1TTL:     opts.L1TTL,
		retrieval: opts.Retrieval,
		evaluator: opts.Evaluator,
		cfg:       opts.Config,
		useCache:  opts.Semantic != nil,
	}
}

// Query runs the full routing pipeline for one request.
func (a *Agent) Query(ctx context.Context, user *auth.User, req schema.QueryRequest) (*schema.QueryResult, error) {
	return a.run(ctx, user, req, func(string, string) {})
}

// run is the pipeline shared by Query and QueryStream. emit reports stage
// transitions for the streaming surface.
func (a *Agent) run(ctx context.Context, user *auth.User, req schema.QueryRequest, emit func(stage, message string)) (*schema.QueryResult, error) {
	start := time.Now()
	var log []string
	perf := &schema.PerformanceBreakdown{}

	if req.Mode == "" {
		req.Mode = schema.ModeAuto
	}

	// Exact-match layer: a digest hit skips even the semantic lookup.
	l1Key := cache.Key(req.Query, user.UserID, req.TopK)
	if a.l1 != nil {
		if hit, ok := a.l1.Get(l1Key); ok {
			emit("cache_check", "exact-match cache hit")
			metrics.IncCacheLookup("hit_exact")
			metrics.IncDecision(schema.DecisionCacheHit)
			return a.annotateCacheHit(hit.Query, hit.Answer, hit.Sources, hit.Mode, 1.0, 0, start), nil
		}
	}

	if a.useCache {
		emit("cache_check", "checking semantic cache")
		log = append(log, "🔍 Checking semantic cache...")
		cacheStart := time.Now()
		entry, err := a.semantic.Get(ctx, req.Query, user.UserID)
		perf.CacheCheckMs = ptr(time.Since(cacheStart).Milliseconds())
		if err != nil {
			// Cache faults degrade to a miss, never fail the query.
			logger.Warnf("agent: cache lookup failed, treating as miss: %v", err)
			metrics.IncCacheLookup("error")
			entry = nil
		}
		if entry != nil {
			metrics.IncCacheLookup("hit_semantic")
			metrics.IncDecision(schema.DecisionCacheHit)
			log = append(log,
				fmt.Sprintf("⚡ Cache HIT! (similarity: %.3f)", entry.Similarity),
				fmt.Sprintf("✓ Returning cached result (%d min old)", entry.AgeMinutes))
			result := a.annotateCacheHit(req.Query, entry.Answer, entry.Sources, entry.Mode, entry.Similarity, entry.AgeMinutes, start)
			result.DecisionLog = log
			result.Performance.CacheCheckMs = perf.CacheCheckMs
			emit("cache_check", "semantic cache hit")
			return result, nil
		}
		if err == nil {
			metrics.IncCacheLookup("miss")
		}
		log = append(log, "❌ Cache MISS - processing query...")
	}

	var (
		res      *retrieval.Result
		quality  *schema.ContextQuality
		decision string
		err      error
	)

	if req.Mode != schema.ModeAuto {
		// Forced mode skips scoring entirely. Permission for forced
		// internet/hybrid is the API boundary's responsibility.
		log = append(log, fmt.Sprintf("👤 User forced mode: %s", req.Mode))
		emit("generation", fmt.Sprintf("executing forced mode %s", req.Mode))
		res, decision, err = a.executeForced(ctx, user, req)
		if err != nil {
			return nil, err
		}
	} else {
		res, quality, decision, err = a.decide(ctx, user, req, &log, perf, emit)
		if err != nil {
			return nil, err
		}
	}

	mergeTimings(perf, res.Timings)

	result := &schema.QueryResult{
		QueryID:        uuid.NewString(),
		Query:          req.Query,
		Answer:         res.Answer,
		Sources:        res.Sources,
		Mode:           res.Mode,
		Timestamp:      time.Now().UTC(),
		ContextQuality: quality,
		AgentDecision:  decision,
		DecisionLog:    log,
	}

	if a.useCache {
		cacheStart := time.Now()
		metadata := map[string]any{"agent_decision": decision}
		if err := a.semantic.Set(ctx, req.Query, res.Answer, res.Sources, res.Mode, user.UserID, metadata); err != nil {
			logger.Warnf("agent: cache write failed, result not cached: %v", err)
		} else {
			perf.CacheStoreMs = ptr(time.Since(cacheStart).Milliseconds())
		}
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	perf.TotalMs = result.ProcessingTimeMs
	result.Performance = perf

	metrics.IncDecision(decision)
	metrics.ObserveQuery(string(res.Mode), start)

	if a.l1 != nil {
		a.l1.Set(l1Key, result, a.l1TTL)
	}
	return result, nil
}

// executeForced runs the caller-selected mode directly. Classified
// filtering still follows the user's clearance, same as the auto path.
func (a *Agent) executeForced(ctx context.Context, user *auth.User, req schema.QueryRequest) (*retrieval.Result, string, error) {
	opts := retrieval.LocalOptions{
		TopK:             req.TopK,
		FilterClassified: !user.Permissions.CanAccessClassified,
		UseDiversity:     req.UseDiversity,
		DiversityWeight:  req.Diversity,
	}
	switch req.Mode {
	case schema.ModeLocal:
		res, err := a.retrieval.QueryLocal(ctx, req.Query, opts)
		return res, schema.DecisionForcedLocal, err
	case schema.ModeInternet:
		res, err := a.retrieval.QueryInternet(ctx, req.Query, req.TopK)
		return res, schema.DecisionForcedInternet, err
	case schema.ModeHybrid:
		res, err := a.retrieval.QueryHybrid(ctx, req.Query, opts, nil)
		return res, schema.DecisionForcedHybrid, err
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedMode, req.Mode)
	}
}

// decide is the auto path: retrieve local context, score it, then choose
// among local, internet and hybrid.
func (a *Agent) decide(ctx context.Context, user *auth.User, req schema.QueryRequest, log *[]string, perf *schema.PerformanceBreakdown, emit func(stage, message string)) (*retrieval.Result, *schema.ContextQuality, string, error) {
	opts := retrieval.LocalOptions{
		TopK:             req.TopK,
		FilterClassified: !user.Permissions.CanAccessClassified,
		UseDiversity:     req.UseDiversity,
		DiversityWeight:  req.Diversity,
	}

	emit("retrieval", "searching local knowledge base")
	*log = append(*log, "📚 Searching local knowledge base...")
	sources, timings, err := a.retrieval.Retrieve(ctx, req.Query, opts)
	if err != nil {
		return nil, nil, "", err
	}
	*log = append(*log, fmt.Sprintf("   Found %d local sources", len(sources)))

	emit("evaluation", "evaluating context quality")
	*log = append(*log, "🔬 Evaluating context quality...")
	evalStart := time.Now()
	quality := a.evaluator.Score(ctx, req.Query, sources)
	evalMs := time.Since(evalStart).Milliseconds()
	perf.ContextEvalMs = ptr(evalMs)
	metrics.ObserveStage("context_eval", evalMs)
	metrics.ObserveQuality(quality.OverallScore)
	*log = append(*log,
		fmt.Sprintf("   Quality: %.3f | Sufficient: %t (took %dms)", quality.OverallScore, quality.IsSufficient, evalMs),
		fmt.Sprintf("   %s", quality.Reason))

	switch {
	case quality.IsSufficient:
		*log = append(*log, "✅ Agent Decision: LOCAL ONLY (context sufficient)")
		emit("generation", "generating answer from local context")
		res, err := a.retrieval.GenerateLocal(ctx, req.Query, sources, timings)
		return res, &quality, schema.DecisionLocalSufficient, err

	case !user.Permissions.CanSearchInternet:
		*log = append(*log, "⚠️  Agent Decision: LOCAL (insufficient but no internet permission)")
		emit("generation", "generating answer from local context")
		res, err := a.retrieval.GenerateLocal(ctx, req.Query, sources, timings)
		return res, &quality, schema.DecisionLocalNoPerm, err

	case quality.OverallScore < a.cfg.LowScoreThreshold:
		*log = append(*log, "🌐 Agent Decision: INTERNET ONLY (very limited local data)")
		emit("generation", "searching the internet")
		res, err := a.retrieval.QueryInternet(ctx, req.Query, req.TopK)
		if res != nil {
			// keep the local stage timings that already ran
			res.Timings.EmbeddingMs = timings.EmbeddingMs
			res.Timings.VectorSearchMs = timings.VectorSearchMs
		}
		return res, &quality, schema.DecisionInternetNoLocal, err

	default:
		*log = append(*log, "🔀 Agent Decision: HYBRID (enhancing local with internet)")
		emit("generation", "combining local and internet context")
		res, err := a.retrieval.QueryHybrid(ctx, req.Query, opts, sources)
		if res != nil {
			res.Timings.EmbeddingMs = timings.EmbeddingMs
			res.Timings.VectorSearchMs = timings.VectorSearchMs
		}
		return res, &quality, schema.DecisionHybridPartial, err
	}
}

// annotateCacheHit builds the terminal result for a cache hit. Quality is
// never re-evaluated and non-cache stage timings stay nil.
func (a *Agent) annotateCacheHit(query, answer string, sources []schema.Source, mode schema.Mode, similarity float64, ageMinutes int64, start time.Time) *schema.QueryResult {
	total := time.Since(start).Milliseconds()
	return &schema.QueryResult{
		QueryID:          uuid.NewString(),
		Query:            query,
		Answer:           answer,
		Sources:          sources,
		Mode:             mode,
		Timestamp:        time.Now().UTC(),
		Cached:           true,
		CacheScore:       &similarity,
		CacheAgeMinutes:  &ageMinutes,
		AgentDecision:    schema.DecisionCacheHit,
		ProcessingTimeMs: total,
		Performance:      &schema.PerformanceBreakdown{TotalMs: total},
	}
}

func mergeTimings(perf *schema.PerformanceBreakdown, t retrieval.Timings) {
	if t.EmbeddingMs > 0 {
		perf.EmbeddingMs = ptr(t.EmbeddingMs)
		metrics.ObserveStage("embedding", t.EmbeddingMs)
	}
	if t.VectorSearchMs > 0 {
		perf.VectorSearchMs = ptr(t.VectorSearchMs)
		metrics.ObserveStage("vector_search", t.VectorSearchMs)
	}
	if t.InternetSearchMs > 0 {
		perf.InternetSearchMs = ptr(t.InternetSearchMs)
		metrics.ObserveStage("internet_search", t.InternetSearchMs)
	}
	perf.GenerationMs = ptr(t.GenerationMs)
	metrics.ObserveStage("generation", t.GenerationMs)
}

func ptr(v int64) *int64 { return &v }
