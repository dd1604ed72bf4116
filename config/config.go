package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the query routing service.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Org        string           `json:"org" yaml:"org"`
	Agent      AgentConfig      `json:"agent" yaml:"agent"`
	Scorer     ScorerConfig     `json:"scorer" yaml:"scorer"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
	LLM        LLMConfig        `json:"llm" yaml:"llm"`
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding"`
	Search     SearchConfig     `json:"search" yaml:"search"`
	VectorDB   VectorDBConfig   `json:"vectordb" yaml:"vectordb"`
	HTTPClient HTTPClientConfig `json:"http_client" yaml:"http_client"`
	Auth       AuthConfig       `json:"auth" yaml:"auth"`
}

// ServerConfig configures the HTTP listener and the log sink.
type ServerConfig struct {
	Listen   string `json:"listen,omitempty" yaml:"listen,omitempty"`
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	DevLog   bool   `json:"dev_log,omitempty" yaml:"dev_log,omitempty"`
}

// AgentConfig tunes the routing decision.
type AgentConfig struct {
	// LowScoreThreshold is the overall score below which local context is
	// discarded entirely in favor of internet search.
	LowScoreThreshold float64 `json:"low_score_threshold,omitempty" yaml:"low_score_threshold,omitempty"`
}

// ScorerConfig tunes the context quality scorer. Zero values take the
// documented defaults.
type ScorerConfig struct {
	VectorWeight         float64 `json:"vector_weight,omitempty" yaml:"vector_weight,omitempty"`
	CoverageWeight       float64 `json:"coverage_weight,omitempty" yaml:"coverage_weight,omitempty"`
	ConfidenceWeight     float64 `json:"confidence_weight,omitempty" yaml:"confidence_weight,omitempty"`
	SufficientOverall    float64 `json:"sufficient_overall,omitempty" yaml:"sufficient_overall,omitempty"`
	SufficientConfidence float64 `json:"sufficient_confidence,omitempty" yaml:"sufficient_confidence,omitempty"`
	MaxSources           int     `json:"max_sources,omitempty" yaml:"max_sources,omitempty"`
	SnippetChars         int     `json:"snippet_chars,omitempty" yaml:"snippet_chars,omitempty"`
}

// CacheConfig configures the semantic cache and the optional in-process
// exact-match layer in front of it.
type CacheConfig struct {
	Enabled             bool    `json:"enabled" yaml:"enabled"`
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty" yaml:"similarity_threshold,omitempty"`
	TTLHours            int     `json:"ttl_hours,omitempty" yaml:"ttl_hours,omitempty"`
	// RemoteInference sends raw query text to the vector store and lets it
	// embed server-side instead of embedding locally.
	RemoteInference bool      `json:"remote_inference,omitempty" yaml:"remote_inference,omitempty"`
	L1              LRUConfig `json:"l1,omitempty" yaml:"l1,omitempty"`
}

// LRUConfig configures the exact-match LRU layer.
type LRUConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	Capacity   int  `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	TTLSeconds int  `json:"ttl_seconds,omitempty" yaml:"ttl_seconds,omitempty"`
}

// RetrievalConfig tunes local retrieval and context assembly.
type RetrievalConfig struct {
	TopK         int `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	PreviewChars int `json:"preview_chars,omitempty" yaml:"preview_chars,omitempty"`
	// ContextTokenBudget caps the assembled context block; 0 disables the cap.
	ContextTokenBudget int `json:"context_token_budget,omitempty" yaml:"context_token_budget,omitempty"`
}

// LLMConfig defines the generation backend.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider"` // Available options: openai, mock
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// EmbeddingConfig defines the embedding backend.
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: openai, mock
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Dimensions int    `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
}

// SearchConfig defines the internet search backend.
type SearchConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // Available options: perplexity, bing, duckduckgo, mock
	APIKey     string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Endpoint   string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results,omitempty"`
}

// VectorDBConfig defines the vector store.
type VectorDBConfig struct {
	Provider string `json:"provider" yaml:"provider"` // Available options: qdrant, milvus, memory
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Database string `json:"database,omitempty" yaml:"database,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	// InferenceModel names the store-side embedding model used when a
	// query carries raw text instead of a vector (qdrant cloud inference).
	InferenceModel string `json:"inference_model,omitempty" yaml:"inference_model,omitempty"`
	TLS            bool   `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// HTTPClientConfig tunes the shared outbound HTTP client.
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Retry                  int      `json:"retry,omitempty" yaml:"retry,omitempty"`
	BackoffMinMs           int      `json:"backoff_min_ms,omitempty" yaml:"backoff_min_ms,omitempty"`
	BackoffMaxMs           int      `json:"backoff_max_ms,omitempty" yaml:"backoff_max_ms,omitempty"`
	HostAllowlist          []string `json:"host_allowlist,omitempty" yaml:"host_allowlist,omitempty"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures,omitempty" yaml:"max_consecutive_failures,omitempty"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds,omitempty" yaml:"circuit_open_seconds,omitempty"`
}

// AuthConfig holds the static user registry.
type AuthConfig struct {
	Users []UserConfig `json:"users" yaml:"users"`
}

// UserConfig declares one static user with its bearer token and permissions.
type UserConfig struct {
	Token               string `json:"token" yaml:"token"`
	UserID              string `json:"user_id" yaml:"user_id"`
	Username            string `json:"username" yaml:"username"`
	Password            string `json:"password,omitempty" yaml:"password,omitempty"`
	Role                string `json:"role,omitempty" yaml:"role,omitempty"`
	CanSearchLocal      bool   `json:"can_search_local" yaml:"can_search_local"`
	CanSearchInternet   bool   `json:"can_search_internet" yaml:"can_search_internet"`
	CanAccessClassified bool   `json:"can_access_classified" yaml:"can_access_classified"`
	CanUploadDocuments  bool   `json:"can_upload_documents" yaml:"can_upload_documents"`
}

// Defaults used where the file leaves a knob unset.
const (
	DefaultListen               = ":8000"
	DefaultLowScoreThreshold    = 0.3
	DefaultVectorWeight         = 0.4
	DefaultCoverageWeight       = 0.2
	DefaultConfidenceWeight     = 0.4
	DefaultSufficientOverall    = 0.6
	DefaultSufficientConfidence = 0.5
	DefaultMaxScoredSources     = 3
	DefaultSnippetChars         = 300
	DefaultCacheThreshold       = 0.95
	DefaultCacheTTLHours        = 24
	DefaultL1Capacity           = 256
	DefaultL1TTLSeconds         = 120
	DefaultTopK                 = 5
	DefaultPreviewChars         = 200
	DefaultMaxSearchResults     = 5
)

// Load reads, decodes and validates a yaml config file, then fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed, err: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed, err: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset knobs with their documented defaults.
func (c *Config) SetDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Agent.LowScoreThreshold == 0 {
		c.Agent.LowScoreThreshold = DefaultLowScoreThreshold
	}
	if c.Scorer.VectorWeight == 0 && c.Scorer.CoverageWeight == 0 && c.Scorer.ConfidenceWeight == 0 {
		c.Scorer.VectorWeight = DefaultVectorWeight
		c.Scorer.CoverageWeight = DefaultCoverageWeight
		c.Scorer.ConfidenceWeight = DefaultConfidenceWeight
	}
	if c.Scorer.SufficientOverall == 0 {
		c.Scorer.SufficientOverall = DefaultSufficientOverall
	}
	if c.Scorer.SufficientConfidence == 0 {
		c.Scorer.SufficientConfidence = DefaultSufficientConfidence
	}
	if c.Scorer.MaxSources == 0 {
		c.Scorer.MaxSources = DefaultMaxScoredSources
	}
	if c.Scorer.SnippetChars == 0 {
		c.Scorer.SnippetChars = DefaultSnippetChars
	}
	if c.Cache.SimilarityThreshold == 0 {
		c.Cache.SimilarityThreshold = DefaultCacheThreshold
	}
	if c.Cache.TTLHours == 0 {
		c.Cache.TTLHours = DefaultCacheTTLHours
	}
	if c.Cache.L1.Capacity == 0 {
		c.Cache.L1.Capacity = DefaultL1Capacity
	}
	if c.Cache.L1.TTLSeconds == 0 {
		c.Cache.L1.TTLSeconds = DefaultL1TTLSeconds
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = DefaultTopK
	}
	if c.Retrieval.PreviewChars == 0 {
		c.Retrieval.PreviewChars = DefaultPreviewChars
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = DefaultMaxSearchResults
	}
}

// DocumentsCollection is the knowledge-base collection for the configured org.
func (c *Config) DocumentsCollection() string {
	return c.Org + "_documents"
}

// CacheCollection is the semantic cache collection for the configured org.
func (c *Config) CacheCollection() string {
	return c.Org + "_query_cache"
}
