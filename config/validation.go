package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateCore()...)
	errs = append(errs, c.validateScorer()...)
	errs = append(errs, c.validateCache()...)
	errs = append(errs, c.validateProviders()...)
	errs = append(errs, c.validateAuth()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateCore() ValidationErrors {
	var errs ValidationErrors

	if c.Org == "" {
		errs = append(errs, ValidationError{
			Field:   "org",
			Message: "org is required (it prefixes the vector store collections)",
		})
	}

	if c.Agent.LowScoreThreshold < 0 || c.Agent.LowScoreThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "agent.low_score_threshold",
			Message: fmt.Sprintf("agent.low_score_threshold must be in [0, 1], got %.2f", c.Agent.LowScoreThreshold),
		})
	}

	if c.Retrieval.TopK <= 0 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.top_k",
			Message: fmt.Sprintf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK),
		})
	}

	if c.Retrieval.TopK > 100 {
		errs = append(errs, ValidationError{
			Field:   "retrieval.top_k",
			Message: fmt.Sprintf("retrieval.top_k %d is too large (max recommended: 100)", c.Retrieval.TopK),
		})
	}

	return errs
}

func (c *Config) validateScorer() ValidationErrors {
	var errs ValidationErrors

	sum := c.Scorer.VectorWeight + c.Scorer.CoverageWeight + c.Scorer.ConfidenceWeight
	if sum < 0.999 || sum > 1.001 {
		errs = append(errs, ValidationError{
			Field:   "scorer",
			Message: fmt.Sprintf("scorer weights must sum to 1.0, got %.3f", sum),
		})
	}

	for _, w := range []struct {
		field string
		val   float64
	}{
		{"scorer.vector_weight", c.Scorer.VectorWeight},
		{"scorer.coverage_weight", c.Scorer.CoverageWeight},
		{"scorer.confidence_weight", c.Scorer.ConfidenceWeight},
		{"scorer.sufficient_overall", c.Scorer.SufficientOverall},
		{"scorer.sufficient_confidence", c.Scorer.SufficientConfidence},
	} {
		if w.val < 0 || w.val > 1 {
			errs = append(errs, ValidationError{
				Field:   w.field,
				Message: fmt.Sprintf("%s must be in [0, 1], got %.2f", w.field, w.val),
			})
		}
	}

	if c.Scorer.MaxSources <= 0 {
		errs = append(errs, ValidationError{
			Field:   "scorer.max_sources",
			Message: fmt.Sprintf("scorer.max_sources must be positive, got %d", c.Scorer.MaxSources),
		})
	}

	return errs
}

func (c *Config) validateCache() ValidationErrors {
	var errs ValidationErrors

	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "cache.similarity_threshold",
			Message: fmt.Sprintf("cache.similarity_threshold must be in [0, 1], got %.2f", c.Cache.SimilarityThreshold),
		})
	}

	if c.Cache.TTLHours < 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.ttl_hours",
			Message: fmt.Sprintf("cache.ttl_hours must be non-negative, got %d", c.Cache.TTLHours),
		})
	}

	if c.Cache.L1.Enabled && c.Cache.L1.Capacity <= 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.l1.capacity",
			Message: fmt.Sprintf("cache.l1.capacity must be positive when l1 is enabled, got %d", c.Cache.L1.Capacity),
		})
	}

	return errs
}

func (c *Config) validateProviders() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if c.LLM.Model == "" {
			errs = append(errs, ValidationError{
				Field:   "llm.model",
				Message: "llm model is required for openai provider",
			})
		}
	case "mock":
	case "":
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: "llm provider is required",
		})
	default:
		errs = append(errs, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown llm provider %q", c.LLM.Provider),
		})
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "openai":
		if c.Embedding.Model == "" {
			errs = append(errs, ValidationError{
				Field:   "embedding.model",
				Message: "embedding model is required for openai provider",
			})
		}
		if c.Embedding.Dimensions <= 0 {
			errs = append(errs, ValidationError{
				Field:   "embedding.dimensions",
				Message: fmt.Sprintf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions),
			})
		}
	case "mock":
	case "":
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: "embedding provider is required",
		})
	default:
		errs = append(errs, ValidationError{
			Field:   "embedding.provider",
			Message: fmt.Sprintf("unknown embedding provider %q", c.Embedding.Provider),
		})
	}

	switch strings.ToLower(c.Search.Provider) {
	case "perplexity", "bing":
		if c.Search.APIKey == "" {
			errs = append(errs, ValidationError{
				Field:   "search.api_key",
				Message: fmt.Sprintf("search api_key is required for %s provider", c.Search.Provider),
			})
		}
	case "duckduckgo", "mock":
	case "":
		errs = append(errs, ValidationError{
			Field:   "search.provider",
			Message: "search provider is required",
		})
	default:
		errs = append(errs, ValidationError{
			Field:   "search.provider",
			Message: fmt.Sprintf("unknown search provider %q", c.Search.Provider),
		})
	}

	switch strings.ToLower(c.VectorDB.Provider) {
	case "qdrant", "milvus":
		if c.VectorDB.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "vectordb.host",
				Message: fmt.Sprintf("vectordb host is required for %s provider", c.VectorDB.Provider),
			})
		}
	case "memory":
	case "":
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: "vectordb provider is required",
		})
	default:
		errs = append(errs, ValidationError{
			Field:   "vectordb.provider",
			Message: fmt.Sprintf("unknown vectordb provider %q", c.VectorDB.Provider),
		})
	}

	if c.Cache.RemoteInference && strings.ToLower(c.VectorDB.Provider) != "qdrant" {
		errs = append(errs, ValidationError{
			Field:   "cache.remote_inference",
			Message: "cache.remote_inference requires the qdrant vectordb provider",
		})
	}
	if c.Cache.RemoteInference && c.VectorDB.InferenceModel == "" {
		errs = append(errs, ValidationError{
			Field:   "vectordb.inference_model",
			Message: "vectordb.inference_model is required when cache.remote_inference is set",
		})
	}

	return errs
}

func (c *Config) validateAuth() ValidationErrors {
	var errs ValidationErrors

	if len(c.Auth.Users) == 0 {
		errs = append(errs, ValidationError{
			Field:   "auth.users",
			Message: "at least one user is required",
		})
	}

	seenTokens := make(map[string]bool, len(c.Auth.Users))
	for i, u := range c.Auth.Users {
		if u.Token == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("auth.users[%d].token", i),
				Message: "user token is required",
			})
		}
		if u.UserID == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("auth.users[%d].user_id", i),
				Message: "user_id is required",
			})
		}
		if u.Token != "" && seenTokens[u.Token] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("auth.users[%d].token", i),
				Message: fmt.Sprintf("duplicate token for user %q", u.Username),
			})
		}
		seenTokens[u.Token] = true
	}

	return errs
}
