package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const (
	defaultTogetherURL   = "https://api.together.xyz/v1"
	defaultTogetherModel = "meta-llama/Llama-3.3-70B-Instruct-Turbo"
)

// TogetherClient talks to any OpenAI-compatible chat completions endpoint.
type TogetherClient struct {
	http      *resty.Client
	model     string
	maxTokens int
}

func NewTogetherClient(apiKey, model, baseURL string, maxTokens int) *TogetherClient {
	if model == "" {
		model = defaultTogetherModel
	}
	if baseURL == "" {
		baseURL = defaultTogetherURL
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60*time.Second).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	return &TogetherClient{http: client, model: model, maxTokens: maxTokens}
}

func (t *TogetherClient) Model() string {
	return t.model
}

func (t *TogetherClient) Complete(ctx context.Context, prompt string) (Completion, error) {
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"model": t.model,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
			"max_tokens":  t.maxTokens,
			"temperature": 0.1,
		}).
		Post("/chat/completions")
	if err != nil {
		return Completion{}, fmt.Errorf("together request failed: %w", err)
	}

	body := resp.String()
	if resp.IsError() {
		msg := gjson.Get(body, "error.message").String()
		if msg == "" {
			msg = truncateText(body, 200)
		}
		return Completion{}, fmt.Errorf("together API error (status %d): %s", resp.StatusCode(), msg)
	}

	text := gjson.Get(body, "choices.0.message.content").String()
	if text == "" {
		return Completion{}, errors.New("empty response from together")
	}

	out := Completion{
		Text:         text,
		Model:        t.model,
		InputTokens:  int(gjson.Get(body, "usage.prompt_tokens").Int()),
		OutputTokens: int(gjson.Get(body, "usage.completion_tokens").Int()),
	}
	if out.InputTokens == 0 {
		out.InputTokens = EstimateTokens(prompt)
	}
	if out.OutputTokens == 0 {
		out.OutputTokens = EstimateTokens(text)
	}
	return out, nil
}
