package schema

import "time"

// Mode selects the answer-generation strategy for a query.
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeLocal    Mode = "local"
	ModeInternet Mode = "internet"
	ModeHybrid   Mode = "hybrid"
)

// Valid reports whether m is one of the recognized modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeLocal, ModeInternet, ModeHybrid:
		return true
	}
	return false
}

// Agent decision tags attached to QueryResult.AgentDecision.
const (
	DecisionCacheHit        = "cache_hit"
	DecisionLocalSufficient = "local_sufficient"
	DecisionLocalNoPerm     = "local_no_permission"
	DecisionInternetNoLocal = "internet_no_local"
	DecisionHybridPartial   = "hybrid_partial_local"
	DecisionForcedLocal     = "forced_local"
	DecisionForcedInternet  = "forced_internet"
	DecisionForcedHybrid    = "forced_hybrid"
)

// Source is a retrieved or searched passage with provenance and a
// relevance score in [0,1]. Many sources compose the context for one answer.
type Source struct {
	DocName   string  `json:"doc_name"`
	DocID     string  `json:"doc_id"`
	ChunkText string  `json:"chunk_text"`
	Page      *int    `json:"page,omitempty"`
	Score     float64 `json:"score"`
	ImageURL  string  `json:"image_url,omitempty"`
}

// ContextQuality is the scorer's multi-dimensional sufficiency verdict.
// All scores are in [0,1] and rounded to three decimals.
type ContextQuality struct {
	OverallScore  float64 `json:"overall_score"`
	VectorScore   float64 `json:"vector_score"`
	Coverage      float64 `json:"coverage"`
	LLMConfidence float64 `json:"llm_confidence"`
	IsSufficient  bool    `json:"is_sufficient"`
	Reason        string  `json:"reason"`
}

// PerformanceBreakdown records per-stage latencies in milliseconds.
// Stages not executed for a request stay nil; in particular a cache hit
// leaves every non-cache stage nil.
type PerformanceBreakdown struct {
	TotalMs          int64  `json:"total_ms"`
	CacheCheckMs     *int64 `json:"cache_check_ms,omitempty"`
	EmbeddingMs      *int64 `json:"embedding_ms,omitempty"`
	VectorSearchMs   *int64 `json:"vector_search_ms,omitempty"`
	ContextEvalMs    *int64 `json:"context_eval_ms,omitempty"`
	InternetSearchMs *int64 `json:"internet_search_ms,omitempty"`
	GenerationMs     *int64 `json:"generation_ms,omitempty"`
	CacheStoreMs     *int64 `json:"cache_store_ms,omitempty"`
}

// QueryResult is the fully annotated unit returned to the caller.
// Invariant: Cached=true implies ContextQuality is nil (quality is not
// re-evaluated on a cache hit).
type QueryResult struct {
	QueryID          string                `json:"query_id"`
	Query            string                `json:"query"`
	Answer           string                `json:"answer"`
	Sources          []Source              `json:"sources"`
	Mode             Mode                  `json:"mode"`
	Timestamp        time.Time             `json:"timestamp"`
	Cached           bool                  `json:"cached"`
	CacheScore       *float64              `json:"cache_score,omitempty"`
	CacheAgeMinutes  *int64                `json:"cache_age_minutes,omitempty"`
	ContextQuality   *ContextQuality       `json:"context_quality,omitempty"`
	AgentDecision    string                `json:"agent_decision,omitempty"`
	DecisionLog      []string              `json:"decision_log,omitempty"`
	ProcessingTimeMs int64                 `json:"processing_time_ms"`
	Performance      *PerformanceBreakdown `json:"performance_breakdown,omitempty"`
}

// QueryRequest carries one inbound query through the agent.
type QueryRequest struct {
	Query        string  `json:"query"`
	Mode         Mode    `json:"mode"`
	TopK         int     `json:"top_k"`
	UseDiversity bool    `json:"use_diversity"`
	Diversity    float64 `json:"diversity"`
}

// ProgressEvent is one element of the streaming query surface. The event
// stream is append-only, single producer, and terminates with exactly one
// event carrying either Result or Err.
type ProgressEvent struct {
	Stage     string       `json:"stage"`
	Message   string       `json:"message"`
	ElapsedMs int64        `json:"elapsed_ms"`
	Result    *QueryResult `json:"result,omitempty"`
	Err       string       `json:"error,omitempty"`
}

// Point is a vector store record keyed by an opaque id. When Vector is
// empty and Text is set, stores that embed server-side derive the vector
// from Text on write.
type Point struct {
	ID      string
	Vector  []float32
	Text    string
	Payload map[string]any
}

// ScoredPoint is a nearest-neighbor search hit. ServerTimeMs carries the
// store-side processing time when the backend reports it (remote inference
// observability); zero otherwise.
type ScoredPoint struct {
	ID           string
	Score        float64
	Payload      map[string]any
	Vector       []float32
	ServerTimeMs int64
}

// VectorQuery addresses a similarity search either by a precomputed vector
// or by raw text for stores that embed server-side. Exactly one of the two
// should be set.
type VectorQuery struct {
	Vector []float32
	Text   string
}

// SearchOptions tunes a nearest-neighbor search.
type SearchOptions struct {
	TopK        int
	WithVectors bool
	// Filters are exact-match payload conditions applied by the store
	// when it supports them.
	Filters map[string]any
}
