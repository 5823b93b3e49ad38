package ai

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Completion is one model answer plus its token accounting.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

type Client interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
	Model() string
}

type Config struct {
	Provider       string `yaml:"provider"`
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	GeminiModel    string `yaml:"gemini_model"`
	TogetherAPIKey string `yaml:"together_api_key"`
	TogetherModel  string `yaml:"together_model"`
	TogetherURL    string `yaml:"together_url"`
	MaxTokens      int    `yaml:"max_tokens"`
}

// NewClient picks a provider from cfg.Provider.
// Supported providers: "gemini", "together", "mock". When Provider is empty
// the first configured key wins, in that order, and mock is the fallback.
func NewClient(cfg Config) Client {
	provider := strings.ToLower(cfg.Provider)

	if provider == "" {
		switch {
		case cfg.GeminiAPIKey != "":
			provider = "gemini"
		case cfg.TogetherAPIKey != "":
			provider = "together"
		default:
			provider = "mock"
		}
	}

	switch provider {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			slog.Warn("AI_PROVIDER=gemini but GEMINI_API_KEY not set, falling back to mock")
			return NewMockClient()
		}
		client, err := NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.MaxTokens)
		if err != nil {
			slog.Error("gemini client init failed, falling back to mock", "error", err)
			return NewMockClient()
		}
		slog.Info("using gemini AI client", "model", client.Model())
		return client
	case "together":
		if cfg.TogetherAPIKey == "" {
			slog.Warn("AI_PROVIDER=together but TOGETHER_API_KEY not set, falling back to mock")
			return NewMockClient()
		}
		client := NewTogetherClient(cfg.TogetherAPIKey, cfg.TogetherModel, cfg.TogetherURL, cfg.MaxTokens)
		slog.Info("using together AI client", "model", client.Model())
		return client
	default:
		slog.Info("using mock AI client (set GEMINI_API_KEY or TOGETHER_API_KEY for real extraction)")
		return NewMockClient()
	}
}

// EstimateTokens is the len/4 heuristic used when a provider reports no usage.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

// MockClient answers with a fixed response and counts calls. Tests use
// Calls() to assert the model was or was not reached.
type MockClient struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
	prompts  []string
}

func NewMockClient() *MockClient {
	return &MockClient{response: "[]"}
}

func (m *MockClient) WithResponse(text string) *MockClient {
	m.mu.Lock()
	m.response = text
	m.mu.Unlock()
	return m
}

func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	return m
}

func (m *MockClient) Complete(ctx context.Context, prompt string) (Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	if m.err != nil {
		return Completion{}, m.err
	}
	return Completion{
		Text:         m.response,
		Model:        "mock",
		InputTokens:  EstimateTokens(prompt),
		OutputTokens: EstimateTokens(m.response),
	}, nil
}

func (m *MockClient) Model() string {
	return "mock"
}

func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}
