package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient implements Client on top of the Gemini API.
// Get your API key at: https://aistudio.google.com/apikey
type GeminiClient struct {
	client         *genai.Client
	model          string
	maxTokens      int32
	maxRetries     int
	baseDelay      time.Duration
	maxDelay       time.Duration
	requestTimeout time.Duration
}

func NewGeminiClient(ctx context.Context, apiKey, model string, maxTokens int) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &GeminiClient{
		client:         client,
		model:          model,
		maxTokens:      int32(maxTokens),
		maxRetries:     2,
		baseDelay:      time.Second,
		maxDelay:       20 * time.Second,
		requestTimeout: 60 * time.Second,
	}, nil
}

func (g *GeminiClient) Model() string {
	return g.model
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (Completion, error) {
	if strings.TrimSpace(prompt) == "" {
		return Completion{}, errors.New("prompt cannot be empty")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, g.requestTimeout)
	defer cancel()

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0.1)),
		MaxOutputTokens: g.maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt)
			slog.Debug("retrying gemini call", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-timeoutCtx.Done():
				return Completion{}, fmt.Errorf("context timeout during retry: %w", timeoutCtx.Err())
			}
		}

		result, err := g.client.Models.GenerateContent(timeoutCtx, g.model, genai.Text(prompt), genConfig)
		if err == nil {
			if result == nil || len(result.Candidates) == 0 {
				return Completion{}, errors.New("empty response from gemini")
			}
			text := result.Text()
			out := Completion{
				Text:         text,
				Model:        g.model,
				InputTokens:  EstimateTokens(prompt),
				OutputTokens: EstimateTokens(text),
			}
			if usage := result.UsageMetadata; usage != nil {
				if usage.PromptTokenCount > 0 {
					out.InputTokens = int(usage.PromptTokenCount)
				}
				if usage.CandidatesTokenCount > 0 {
					out.OutputTokens = int(usage.CandidatesTokenCount)
				}
			}
			return out, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return Completion{}, fmt.Errorf("gemini generate failed: %w", err)
		}
	}

	return Completion{}, fmt.Errorf("gemini max retries (%d) exceeded: %w", g.maxRetries, lastErr)
}

func (g *GeminiClient) backoff(attempt int) time.Duration {
	delay := g.baseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > g.maxDelay {
		delay = g.maxDelay
	}
	return delay
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return retryableCode(apiErr.Code)
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 429") ||
		strings.Contains(msg, "Error 503") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "EOF")
}

func retryableCode(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}
