package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragroute/ragroute/config"
)

// Provider generates completions from a system instruction and a user prompt.
type Provider interface {
	GenerateCompletion(ctx context.Context, system, prompt string) (string, error)
	// GenerateStream returns a channel of answer fragments. The channel is
	// closed when generation finishes; a mid-stream failure closes it early.
	GenerateStream(ctx context.Context, system, prompt string) (<-chan string, error)
}

// NewProvider builds the configured generation backend.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIProvider(cfg), nil
	case "mock":
		return NewMockProvider("mock answer"), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// MockProvider returns a fixed answer. Used by the mock configuration and
// as a building block in tests.
type MockProvider struct {
	Answer string
	Err    error
}

func NewMockProvider(answer string) *MockProvider {
	return &MockProvider{Answer: answer}
}

func (m *MockProvider) GenerateCompletion(_ context.Context, _, _ string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return m.Answer, nil
}

func (m *MockProvider) GenerateStream(_ context.Context, _, _ string) (<-chan string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	ch := make(chan string, 1)
	ch <- m.Answer
	close(ch)
	return ch, nil
}
