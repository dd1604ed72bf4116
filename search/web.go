package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ragroute/ragroute/common/httpx"
	"github.com/ragroute/ragroute/common/logger"
)

// webProvider covers the classic web search engines behind a shared shape:
// build a GET, decode the engine's response, normalize to Result.
type webProvider struct {
	engine   string // "bing" or "duckduckgo"
	endpoint string
	apiKey   string
	client   *httpx.Client
}

func (w *webProvider) Search(ctx context.Context, query string, numResults int) ([]Result, error) {
	if numResults <= 0 {
		numResults = 3
	}
	if w.client == nil {
		w.client = httpx.NewFromConfig(nil)
	}

	var results []Result
	var err error
	switch w.engine {
	case "bing":
		results, err = w.searchBing(ctx, query, numResults)
	default:
		results, err = w.searchDuckDuckGo(ctx, query, numResults)
	}
	if err != nil {
		return nil, fmt.Errorf("web search failed, err: %w", err)
	}
	return results, nil
}

// searchDuckDuckGo uses the DuckDuckGo Instant Answer API.
func (w *webProvider) searchDuckDuckGo(ctx context.Context, query string, numResults int) ([]Result, error) {
	endpoint := "https://api.duckduckgo.com/"
	if w.endpoint != "" {
		endpoint = w.endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("duckduckgo api returned status %d", resp.StatusCode)
	}

	var ddgResp struct {
		AbstractText   string `json:"AbstractText"`
		AbstractSource string `json:"AbstractSource"`
		AbstractURL    string `json:"AbstractURL"`
		RelatedTopics  []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ddgResp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, numResults)
	if ddgResp.AbstractText != "" {
		results = append(results, Result{
			Title:   ddgResp.AbstractSource,
			URL:     ddgResp.AbstractURL,
			Snippet: ddgResp.AbstractText,
		})
	}
	for _, topic := range ddgResp.RelatedTopics {
		if len(results) >= numResults {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		title := topic.Text
		if len(title) > 100 {
			title = title[:100]
		}
		results = append(results, Result{
			Title:   title,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
		})
	}

	logger.Infof("search: duckduckgo returned %d results for query: %s", len(results), query)
	return results, nil
}

// searchBing uses the Bing Web Search API v7.
func (w *webProvider) searchBing(ctx context.Context, query string, numResults int) ([]Result, error) {
	if w.endpoint == "" {
		return nil, fmt.Errorf("bing search requires endpoint configuration")
	}
	if w.apiKey == "" {
		return nil, fmt.Errorf("bing search requires api key")
	}

	u, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", numResults))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bing api returned status %d", resp.StatusCode)
	}

	var bingResp struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bingResp); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(bingResp.WebPages.Value))
	for _, v := range bingResp.WebPages.Value {
		results = append(results, Result{Title: v.Name, URL: v.URL, Snippet: v.Snippet})
	}

	logger.Infof("search: bing returned %d results for query: %s", len(results), query)
	return results, nil
}
