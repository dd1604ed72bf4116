package evaluator

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ragroute/ragroute/common/logger"
	"github.com/ragroute/ragroute/config"
	"github.com/ragroute/ragroute/llm"
	"github.com/ragroute/ragroute/schema"
)

// Reason strings attached to the quality verdict.
const (
	ReasonNoDocuments = "No relevant documents found in knowledge base"
	ReasonSufficient  = "Local knowledge base has sufficient information"
	ReasonVeryLimited = "Local knowledge base has very limited information"
	ReasonPartial     = "Local knowledge base has partial information, internet search recommended"
)

// veryLimitedBoundary separates "very limited" from "partial" context.
const veryLimitedBoundary = 0.3

// stopWords are dropped from the query before coverage is computed.
var stopWords = map[string]struct{}{
	"what": {}, "is": {}, "the": {}, "a": {}, "an": {}, "how": {}, "why": {},
	"when": {}, "where": {}, "who": {}, "tell": {}, "me": {}, "about": {},
}

const confidenceSystemPrompt = `You are a context evaluator. Your job is to determine if the provided context contains enough information to answer the user's question.

Respond with ONLY a number between 0 and 1:
- 1.0 = Context fully answers the question
- 0.7-0.9 = Context mostly answers the question
- 0.4-0.6 = Context partially answers the question
- 0.1-0.3 = Context barely relevant
- 0.0 = Context cannot answer the question

Only respond with a single number.`

// Evaluator scores retrieved context for sufficiency: a blend of mean
// retrieval relevance, query-term coverage, and an LLM confidence probe.
type Evaluator struct {
	llm llm.Provider
	cfg config.ScorerConfig
}

func New(provider llm.Provider, cfg config.ScorerConfig) *Evaluator {
	return &Evaluator{llm: provider, cfg: cfg}
}

// Score produces the quality verdict for query against sources. Empty
// sources short-circuit to an all-zero verdict without touching the LLM.
func (e *Evaluator) Score(ctx context.Context, query string, sources []schema.Source) schema.ContextQuality {
	if len(sources) == 0 {
		return schema.ContextQuality{Reason: ReasonNoDocuments}
	}

	var vectorScore float64
	for _, s := range sources {
		vectorScore += s.Score
	}
	vectorScore /= float64(len(sources))

	coverage := e.coverage(query, sources)
	confidence := e.llmConfidence(ctx, query, sources, vectorScore)

	overall := vectorScore*e.cfg.VectorWeight + coverage*e.cfg.CoverageWeight + confidence*e.cfg.ConfidenceWeight
	sufficient := overall > e.cfg.SufficientOverall && confidence > e.cfg.SufficientConfidence

	reason := ReasonPartial
	switch {
	case sufficient:
		reason = ReasonSufficient
	case overall < veryLimitedBoundary:
		reason = ReasonVeryLimited
	}

	return schema.ContextQuality{
		OverallScore:  round3(overall),
		VectorScore:   round3(vectorScore),
		Coverage:      round3(coverage),
		LLMConfidence: round3(confidence),
		IsSufficient:  sufficient,
		Reason:        reason,
	}
}

// coverage is the fraction of stop-word-filtered query terms found as
// substrings of the concatenated source text. An empty term set is an
// ambiguous signal and defaults to 0.5.
func (e *Evaluator) coverage(query string, sources []schema.Source) float64 {
	terms := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if _, stop := stopWords[t]; !stop {
			terms[t] = struct{}{}
		}
	}
	if len(terms) == 0 {
		return 0.5
	}

	var b strings.Builder
	for _, s := range sources {
		b.WriteString(strings.ToLower(s.ChunkText))
		b.WriteString(" ")
	}
	contextText := b.String()

	matched := 0
	for t := range terms {
		if strings.Contains(contextText, t) {
			matched++
		}
	}
	return math.Min(float64(matched)/float64(len(terms)), 1.0)
}

// llmConfidence asks the generation backend how well the context answers
// the query. A backend failure degrades to vectorScore rather than failing
// the request.
func (e *Evaluator) llmConfidence(ctx context.Context, query string, sources []schema.Source, vectorScore float64) float64 {
	var b strings.Builder
	for i, s := range sources {
		if i >= e.cfg.MaxSources {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Source %d] %s", i+1, truncate(s.ChunkText, e.cfg.SnippetChars))
	}

	prompt := fmt.Sprintf("Question: %s\n\nContext:\n%s\n\nConfidence score (0-1):", query, b.String())
	resp, err := e.llm.GenerateCompletion(ctx, confidenceSystemPrompt, prompt)
	if err != nil {
		logger.Warnf("evaluator: confidence probe failed, falling back to vector score: %v", err)
		return vectorScore
	}
	return parseConfidence(resp)
}

// parseConfidence reads the first token of the response as a float,
// falling back to keyword heuristics when the backend ignores the
// numeric-only instruction.
func parseConfidence(resp string) float64 {
	fields := strings.Fields(strings.TrimSpace(resp))
	if len(fields) > 0 {
		if score, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return math.Max(0, math.Min(1, score))
		}
	}
	lower := strings.ToLower(resp)
	switch {
	case strings.Contains(lower, "cannot") || strings.Contains(lower, "no"):
		return 0.2
	case strings.Contains(lower, "fully") || strings.Contains(lower, "yes"):
		return 0.9
	default:
		return 0.5
	}
}

// truncate cuts on rune boundaries so multibyte text stays valid.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
