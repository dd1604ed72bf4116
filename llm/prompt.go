package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/ragroute/ragroute/common/logger"
	"github.com/ragroute/ragroute/schema"
)

// System instructions for the three answer paths.
const (
	SystemLocal = "You are a helpful assistant. Answer the question using ONLY the provided context. " +
		"If the context does not contain the answer, say so. Cite sources as [Source N]."
	SystemInternet = "You are a helpful assistant. Answer the question using the provided web search results. " +
		"Cite sources as [Source N]."
	SystemSynthesis = "You are a helpful assistant. Answer the question by synthesizing the internal documents " +
		"and the web search results. Attribute claims to their origin (internal vs web) and flag any conflicts " +
		"between the two explicitly."
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		var err error
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger.Warnf("llm: tiktoken encoding unavailable, token budget disabled: %v", err)
		}
	})
	return enc
}

// TruncateTokens trims text to at most budget tokens. A zero or negative
// budget, or an unavailable encoder, returns text unchanged.
func TruncateTokens(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	e := encoding()
	if e == nil {
		return text
	}
	toks := e.Encode(text, nil, nil)
	if len(toks) <= budget {
		return text
	}
	return e.Decode(toks[:budget])
}

// CountTokens reports the token length of text, or a rune-count estimate
// when the encoder is unavailable.
func CountTokens(text string) int {
	e := encoding()
	if e == nil {
		return len([]rune(text)) / 4
	}
	return len(e.Encode(text, nil, nil))
}

// BuildContext renders sources as numbered blocks and caps the result at
// tokenBudget tokens (0 disables the cap).
func BuildContext(sources []schema.Source, tokenBudget int) string {
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "[Source %d] %s\n%s\n\n", i+1, s.DocName, s.ChunkText)
	}
	return TruncateTokens(strings.TrimRight(b.String(), "\n"), tokenBudget)
}

// AnswerPrompt pairs a question with its context block.
func AnswerPrompt(query, context string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s", context, query)
}

// SynthesisPrompt pairs a question with the two already-generated answers
// for the final hybrid synthesis call.
func SynthesisPrompt(query, localAnswer, webAnswer string) string {
	return fmt.Sprintf(
		"Local knowledge base answer:\n%s\n\nInternet search answer:\n%s\n\nQuestion: %s",
		localAnswer, webAnswer, query)
}
