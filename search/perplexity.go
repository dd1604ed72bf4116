package search

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ragroute/ragroute/common/httpx"
	"github.com/ragroute/ragroute/config"
)

const (
	perplexityBaseURL      = "https://api.perplexity.ai"
	perplexityDefaultModel = "sonar-pro"
)

// perplexityProvider queries the Perplexity chat completions API. Perplexity
// answers with synthesized text rather than a hit list, so the response is
// wrapped as a single high-score result.
type perplexityProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *httpx.Client
}

func newPerplexityProvider(cfg config.SearchConfig, client *httpx.Client) *perplexityProvider {
	endpoint := perplexityBaseURL
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
	}
	model := perplexityDefaultModel
	if cfg.Model != "" {
		model = cfg.Model
	}
	if client == nil {
		client = httpx.NewFromConfig(nil)
	}
	return &perplexityProvider{endpoint: endpoint, apiKey: cfg.APIKey, model: model, client: client}
}

type perplexityRequest struct {
	Model       string              `json:"model"`
	Messages    []perplexityMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	SearchResults []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"search_results"`
}

func (p *perplexityProvider) Search(ctx context.Context, query string, numResults int) ([]Result, error) {
	body := perplexityRequest{
		Model: p.model,
		Messages: []perplexityMessage{
			{Role: "system", Content: "Be precise and concise. Provide relevant sources when available."},
			{Role: "user", Content: query},
		},
		MaxTokens:   1024,
		Temperature: 0.2,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
		"Accept":        "application/json",
	}

	var resp perplexityResponse
	if err := p.client.DoJSON(ctx, http.MethodPost, p.endpoint+"/chat/completions", headers, body, &resp); err != nil {
		return nil, fmt.Errorf("perplexity search failed, err: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("perplexity returned no choices")
	}

	results := []Result{{
		Title:   "Perplexity AI - Real-time Search",
		URL:     "https://www.perplexity.ai",
		Snippet: resp.Choices[0].Message.Content,
		Score:   0.95,
	}}
	for _, sr := range resp.SearchResults {
		if len(results) >= numResults {
			break
		}
		results = append(results, Result{Title: sr.Title, URL: sr.URL, Score: 0.9})
	}
	return results, nil
}
