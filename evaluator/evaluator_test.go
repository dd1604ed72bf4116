package evaluator

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/schema"
)

// countingLLM records calls and replays a fixed response.
type countingLLM struct {
	response string
	err      error
	calls    int
}

func (m *countingLLM) GenerateCompletion(context.Context, string, string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *countingLLM) GenerateStream(context.Context, string, string) (<-chan string, error) {
	ch := make(chan string)
	close(ch)
	return ch, nil
}

func defaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		VectorWeight:         0.4,
		CoverageWeight:       0.2,
		ConfidenceWeight:     0.4,
		SufficientOverall:    0.6,
		SufficientConfidence: 0.5,
		MaxSources:           3,
		SnippetChars:         300,
	}
}

func src(text string, score float64) schema.Source {
	return schema.Source{DocName: "doc", DocID: "1", ChunkText: text, Score: score}
}

func TestScoreEmptySources(t *testing.T) {
	mock := &countingLLM{response: "0.9"}
	e := New(mock, defaultScorerConfig())

	q := e.Score(context.Background(), "what is python", nil)

	if q.OverallScore != 0 || q.VectorScore != 0 || q.Coverage != 0 || q.LLMConfidence != 0 {
		t.Errorf("expected all-zero scores, got %+v", q)
	}
	if q.IsSufficient {
		t.Error("empty sources must not be sufficient")
	}
	if q.Reason != ReasonNoDocuments {
		t.Errorf("unexpected reason: %q", q.Reason)
	}
	if mock.calls != 0 {
		t.Errorf("empty sources must not call the LLM, got %d calls", mock.calls)
	}
}

func TestScoreSufficient(t *testing.T) {
	mock := &countingLLM{response: "0.9"}
	e := New(mock, defaultScorerConfig())

	sources := []schema.Source{
		src("Python is a programming language used widely.", 0.9),
		src("Python supports multiple programming paradigms.", 0.85),
		src("Python programming emphasizes readability.", 0.8),
	}
	q := e.Score(context.Background(), "What is Python", sources)

	// vector 0.85, coverage 1.0 (only "python" survives stop words), confidence 0.9
	if q.VectorScore != 0.85 {
		t.Errorf("vector score = %v, want 0.85", q.VectorScore)
	}
	if q.Coverage != 1.0 {
		t.Errorf("coverage = %v, want 1.0", q.Coverage)
	}
	if q.LLMConfidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", q.LLMConfidence)
	}
	if q.OverallScore <= 0.6 {
		t.Errorf("overall = %v, want > 0.6", q.OverallScore)
	}
	if !q.IsSufficient {
		t.Error("expected sufficient context")
	}
	if q.Reason != ReasonSufficient {
		t.Errorf("unexpected reason: %q", q.Reason)
	}
	if mock.calls != 1 {
		t.Errorf("expected exactly one confidence probe, got %d", mock.calls)
	}
}

func TestScoreHighOverallLowConfidence(t *testing.T) {
	// High blended score alone is not enough when the backend is unconfident.
	mock := &countingLLM{response: "0.4"}
	e := New(mock, defaultScorerConfig())

	sources := []schema.Source{src("python programming language reference", 0.95)}
	q := e.Score(context.Background(), "python", sources)

	if q.IsSufficient {
		t.Errorf("confidence %v below gate must not be sufficient (overall %v)", q.LLMConfidence, q.OverallScore)
	}
}

func TestScoreVeryLimited(t *testing.T) {
	mock := &countingLLM{response: "0.1"}
	e := New(mock, defaultScorerConfig())

	sources := []schema.Source{src("unrelated text about cooking", 0.1)}
	q := e.Score(context.Background(), "quantum entanglement", sources)

	if q.OverallScore >= 0.3 {
		t.Fatalf("overall = %v, want < 0.3", q.OverallScore)
	}
	if q.Reason != ReasonVeryLimited {
		t.Errorf("unexpected reason: %q", q.Reason)
	}
}

func TestScorePartial(t *testing.T) {
	mock := &countingLLM{response: "0.4"}
	e := New(mock, defaultScorerConfig())

	sources := []schema.Source{src("python appears here", 0.5)}
	q := e.Score(context.Background(), "python", sources)

	// 0.4*0.5 + 0.2*1.0 + 0.4*0.4 = 0.56: between 0.3 and 0.6
	if q.IsSufficient {
		t.Error("expected insufficient context")
	}
	if q.Reason != ReasonPartial {
		t.Errorf("unexpected reason: %q", q.Reason)
	}
}

func TestCoverage(t *testing.T) {
	e := New(&countingLLM{response: "0.5"}, defaultScorerConfig())

	tests := []struct {
		name  string
		query string
		text  string
		want  float64
	}{
		{"all terms present", "python programming", "python programming tutorial", 1.0},
		{"half present", "python cooking", "python tutorial", 0.5},
		{"none present", "quantum physics", "cooking recipes", 0.0},
		{"only stop words", "what is the", "anything", 0.5},
		{"substring match", "program", "programming languages", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.coverage(tt.query, []schema.Source{src(tt.text, 0.5)})
			if got != tt.want {
				t.Errorf("coverage(%q, %q) = %v, want %v", tt.query, tt.text, got, tt.want)
			}
		})
	}
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"bare number", "0.8", 0.8},
		{"number with trailing text", "0.7 confident", 0.7},
		{"clamped above one", "1.5", 1.0},
		{"clamped below zero", "-0.3", 0.0},
		{"cannot keyword", "The context cannot answer this", 0.2},
		{"no keyword", "There is no relevant information", 0.2},
		{"fully keyword", "Context fully covers the question", 0.9},
		{"unparseable default", "maybe, hard to say", 0.5},
		{"empty response", "", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseConfidence(tt.response); got != tt.want {
				t.Errorf("parseConfidence(%q) = %v, want %v", tt.response, got, tt.want)
			}
		})
	}
}

func TestConfidenceBackendFailureFallsBackToVectorScore(t *testing.T) {
	mock := &countingLLM{err: errors.New("backend unavailable")}
	e := New(mock, defaultScorerConfig())

	sources := []schema.Source{src("python docs", 0.8), src("python guide", 0.6)}
	q := e.Score(context.Background(), "python", sources)

	if q.LLMConfidence != q.VectorScore {
		t.Errorf("confidence %v should degrade to vector score %v", q.LLMConfidence, q.VectorScore)
	}
}

func TestScoreRounding(t *testing.T) {
	mock := &countingLLM{response: "0.3333333"}
	e := New(mock, defaultScorerConfig())

	sources := []schema.Source{src("python", 1.0/3.0), src("python", 1.0/3.0), src("python", 1.0/3.0)}
	q := e.Score(context.Background(), "python", sources)

	for name, v := range map[string]float64{
		"overall":    q.OverallScore,
		"vector":     q.VectorScore,
		"coverage":   q.Coverage,
		"confidence": q.LLMConfidence,
	} {
		if math.Abs(v*1000-math.Round(v*1000)) > 1e-9 {
			t.Errorf("%s score %v not rounded to 3 decimals", name, v)
		}
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	multibyte := strings.Repeat("日本語", 50)
	got := truncate(multibyte, 40)
	if !utf8.ValidString(got) {
		t.Errorf("truncated snippet is not valid utf-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 40 {
		t.Errorf("truncated runes = %d, want 40", n)
	}

	if got := truncate("short", 300); got != "short" {
		t.Errorf("text under the limit must pass through, got %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc" {
		t.Errorf("ascii truncation = %q, want abc", got)
	}
}
