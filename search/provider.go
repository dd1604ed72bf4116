package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragroute/ragroute/common/httpx"
	"github.com/ragroute/ragroute/config"
)

// Result is a single internet search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Provider performs internet searches.
type Provider interface {
	Search(ctx context.Context, query string, numResults int) ([]Result, error)
}

// NewProvider builds the configured search backend.
func NewProvider(cfg config.SearchConfig, client *httpx.Client) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "perplexity":
		return newPerplexityProvider(cfg, client), nil
	case "bing":
		return &webProvider{engine: "bing", endpoint: cfg.Endpoint, apiKey: cfg.APIKey, client: client}, nil
	case "duckduckgo":
		return &webProvider{engine: "duckduckgo", endpoint: cfg.Endpoint, client: client}, nil
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Provider)
	}
}

// MockProvider fabricates plausible results without network access.
type MockProvider struct {
	Results []Result
	Err     error
}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (m *MockProvider) Search(_ context.Context, query string, numResults int) ([]Result, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Results != nil {
		if len(m.Results) > numResults {
			return m.Results[:numResults], nil
		}
		return m.Results, nil
	}
	if numResults <= 0 {
		numResults = 3
	}
	out := make([]Result, 0, numResults)
	for i := 0; i < numResults; i++ {
		out = append(out, Result{
			Title:   fmt.Sprintf("Result %d for %q", i+1, query),
			URL:     fmt.Sprintf("https://example.com/search/%d", i+1),
			Snippet: fmt.Sprintf("Simulated search result %d covering: %s", i+1, query),
			Score:   0.9 - float64(i)*0.1,
		})
	}
	return out, nil
}
