package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ragroute/ragroute/agent"
	"github.com/ragroute/ragroute/auth"
	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/embedding"
	"github.com/ragroute/ragroute/evaluator"
	"github.com/ragroute/ragroute/llm"
	"github.com/ragroute/ragroute/retrieval"
	"github.com/ragroute/ragroute/schema"
	"github.com/ragroute/ragroute/search"
	"github.com/ragroute/ragroute/vectordb"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	registry := auth.NewRegistry(config.AuthConfig{Users: []config.UserConfig{
		{
			Token: "tok-admin", UserID: "user_1", Username: "admin", Password: "admin", Role: "admin",
			CanSearchLocal: true, CanSearchInternet: true, CanAccessClassified: true, CanUploadDocuments: true,
		},
		{
			Token: "tok-local", UserID: "user_2", Username: "local_user", Password: "local_user", Role: "local_only",
			CanSearchLocal: true,
		},
	}})

	embedder := embedding.NewMockProvider(32)
	store := vectordb.NewMemoryProvider(embedder)
	if err := store.EnsureCollection(context.Background(), "acme_documents", embedder.Dimensions()); err != nil {
		t.Fatalf("ensure collection: %v", err)
	}
	if err := store.Upsert(context.Background(), "acme_documents", []schema.Point{
		{
			ID:   "1",
			Text: "python is a programming language",
			Payload: map[string]any{
				"doc_name":   "guide",
				"doc_id":     "1",
				"chunk_text": "python is a programming language",
			},
		},
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	svc := retrieval.NewService(store, embedder, llm.NewMockProvider("mock answer"), search.NewMockProvider(),
		"acme_documents", false, config.RetrievalConfig{TopK: 5, PreviewChars: 200})
	ag := agent.New(agent.Options{
		Retrieval: svc,
		Evaluator: evaluator.New(llm.NewMockProvider("0.9"), config.ScorerConfig{
			VectorWeight:         0.4,
			CoverageWeight:       0.2,
			ConfidenceWeight:     0.4,
			SufficientOverall:    0.6,
			SufficientConfidence: 0.5,
			MaxSources:           3,
			SnippetChars:         300,
		}),
		Config: config.AgentConfig{LowScoreThreshold: 0.3},
	})

	return NewServer(config.ServerConfig{Listen: ":0"}, ag, registry)
}

func jsonRequest(method, target, token string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/api/auth/login", "", loginRequest{
		Username: "admin", Password: "admin",
	}))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AccessToken != "tok-admin" || body.TokenType != "bearer" {
		t.Errorf("unexpected login response: %+v", body)
	}
	if body.User == nil || body.User.UserID != "user_1" {
		t.Errorf("unexpected user: %+v", body.User)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/api/auth/login", "", loginRequest{
		Username: "admin", Password: "wrong",
	}))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestQueryRequiresToken(t *testing.T) {
	s := newTestServer(t)

	for _, token := range []string{"", "tok-unknown"} {
		resp, err := s.App().Test(jsonRequest(http.MethodPost, "/api/query", token, schema.QueryRequest{Query: "q"}))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, resp.StatusCode)
		}
	}
}

func TestQueryValidation(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/api/query", "tok-admin", schema.QueryRequest{Query: "   "}))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank query: status = %d, want 400", resp.StatusCode)
	}

	resp, err = s.App().Test(jsonRequest(http.MethodPost, "/api/query", "tok-admin", schema.QueryRequest{
		Query: "q", Mode: schema.Mode("telepathy"),
	}))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad mode: status = %d, want 400", resp.StatusCode)
	}
}

func TestQueryForcedModePermissions(t *testing.T) {
	s := newTestServer(t)

	for _, mode := range []schema.Mode{schema.ModeInternet, schema.ModeHybrid} {
		resp, err := s.App().Test(jsonRequest(http.MethodPost, "/api/query", "tok-local", schema.QueryRequest{
			Query: "q", Mode: mode,
		}))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("mode %s: status = %d, want 403", mode, resp.StatusCode)
		}
	}

	// The same user may still force local.
	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/api/query", "tok-local", schema.QueryRequest{
		Query: "what is python", Mode: schema.ModeLocal,
	}))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("forced local: status = %d, want 200", resp.StatusCode)
	}
}

func TestQuerySucceeds(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/api/query", "tok-admin", schema.QueryRequest{
		Query: "what is python",
	}), 5000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var result schema.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Answer != "mock answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.QueryID == "" {
		t.Error("missing query id")
	}
	if result.AgentDecision == "" {
		t.Error("missing agent decision")
	}
}

func TestQueryStreamEmitsSSE(t *testing.T) {
	s := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/api/query/stream", "tok-admin", schema.QueryRequest{
		Query: "what is python",
	}), 5000)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	text := string(body)
	if !strings.Contains(text, "event: status") {
		t.Errorf("no status events in stream:\n%s", text)
	}
	if got := strings.Count(text, "event: result"); got != 1 {
		t.Errorf("result events = %d, want exactly 1:\n%s", got, text)
	}
}
