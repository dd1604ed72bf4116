package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		Org:       "acme",
		LLM:       LLMConfig{Provider: "mock"},
		Embedding: EmbeddingConfig{Provider: "mock"},
		Search:    SearchConfig{Provider: "mock"},
		VectorDB:  VectorDBConfig{Provider: "memory"},
		Auth: AuthConfig{Users: []UserConfig{
			{Token: "tok", UserID: "user_1", Username: "admin", CanSearchLocal: true},
		}},
	}
	cfg.SetDefaults()
	return cfg
}

func assertFieldError(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	errs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	for _, e := range errs {
		if e.Field == field {
			return
		}
	}
	t.Errorf("no error on field %s in: %v", field, err)
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestSetDefaults(t *testing.T) {
	cfg := validConfig()

	assert.Equal(t, DefaultListen, cfg.Server.Listen)
	assert.Equal(t, DefaultLowScoreThreshold, cfg.Agent.LowScoreThreshold)
	assert.Equal(t, DefaultVectorWeight, cfg.Scorer.VectorWeight)
	assert.Equal(t, DefaultCoverageWeight, cfg.Scorer.CoverageWeight)
	assert.Equal(t, DefaultConfidenceWeight, cfg.Scorer.ConfidenceWeight)
	assert.Equal(t, DefaultCacheThreshold, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, DefaultCacheTTLHours, cfg.Cache.TTLHours)
	assert.Equal(t, DefaultTopK, cfg.Retrieval.TopK)
	assert.Equal(t, DefaultPreviewChars, cfg.Retrieval.PreviewChars)
}

func TestSetDefaultsKeepsExplicitWeights(t *testing.T) {
	cfg := &Config{Scorer: ScorerConfig{VectorWeight: 0.5, CoverageWeight: 0.3, ConfidenceWeight: 0.2}}
	cfg.SetDefaults()
	assert.Equal(t, 0.5, cfg.Scorer.VectorWeight)
	assert.Equal(t, 0.3, cfg.Scorer.CoverageWeight)
}

func TestValidateRequiresOrg(t *testing.T) {
	cfg := validConfig()
	cfg.Org = ""
	assertFieldError(t, cfg.Validate(), "org")
}

func TestValidateScorerWeightSum(t *testing.T) {
	cfg := validConfig()
	cfg.Scorer.VectorWeight = 0.9
	assertFieldError(t, cfg.Validate(), "scorer")
}

func TestValidateThresholdBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Agent.LowScoreThreshold = 1.5
	assertFieldError(t, cfg.Validate(), "agent.low_score_threshold")

	cfg = validConfig()
	cfg.Cache.SimilarityThreshold = -0.1
	assertFieldError(t, cfg.Validate(), "cache.similarity_threshold")
}

func TestValidateProviderRequirements(t *testing.T) {
	tests := []struct {
		name  string
		field string
		mod   func(*Config)
	}{
		{"openai llm needs model", "llm.model", func(c *Config) {
			c.LLM = LLMConfig{Provider: "openai"}
		}},
		{"openai embedding needs dimensions", "embedding.dimensions", func(c *Config) {
			c.Embedding = EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small"}
		}},
		{"perplexity needs api key", "search.api_key", func(c *Config) {
			c.Search = SearchConfig{Provider: "perplexity"}
		}},
		{"qdrant needs host", "vectordb.host", func(c *Config) {
			c.VectorDB = VectorDBConfig{Provider: "qdrant"}
		}},
		{"unknown vectordb", "vectordb.provider", func(c *Config) {
			c.VectorDB = VectorDBConfig{Provider: "cassandra"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mod(cfg)
			assertFieldError(t, cfg.Validate(), tt.field)
		})
	}
}

func TestValidateRemoteInference(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.RemoteInference = true
	assertFieldError(t, cfg.Validate(), "cache.remote_inference")

	cfg = validConfig()
	cfg.VectorDB = VectorDBConfig{Provider: "qdrant", Host: "localhost"}
	cfg.Cache.RemoteInference = true
	assertFieldError(t, cfg.Validate(), "vectordb.inference_model")

	cfg = validConfig()
	cfg.VectorDB = VectorDBConfig{Provider: "qdrant", Host: "localhost", InferenceModel: "sentence-transformers/all-minilm-l6-v2"}
	cfg.Cache.RemoteInference = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateAuth(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Users = nil
	assertFieldError(t, cfg.Validate(), "auth.users")

	cfg = validConfig()
	cfg.Auth.Users = []UserConfig{
		{Token: "same", UserID: "a", Username: "a"},
		{Token: "same", UserID: "b", Username: "b"},
	}
	assertFieldError(t, cfg.Validate(), "auth.users[1].token")

	cfg = validConfig()
	cfg.Auth.Users = []UserConfig{{Token: "tok"}}
	assertFieldError(t, cfg.Validate(), "auth.users[0].user_id")
}

func TestValidationErrorsMessage(t *testing.T) {
	cfg := validConfig()
	cfg.Org = ""
	cfg.Auth.Users = nil

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 configuration error(s)")
}

func TestCollectionNames(t *testing.T) {
	cfg := &Config{Org: "acme"}
	assert.Equal(t, "acme_documents", cfg.DocumentsCollection())
	assert.Equal(t, "acme_query_cache", cfg.CacheCollection())
}
