package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientAutoDetect(t *testing.T) {
	_, ok := NewClient(Config{}).(*MockClient)
	assert.True(t, ok, "no keys should give the mock client")

	c := NewClient(Config{TogetherAPIKey: "k", TogetherModel: "m"})
	assert.Equal(t, "m", c.Model())

	_, ok = NewClient(Config{Provider: "gemini"}).(*MockClient)
	assert.True(t, ok, "gemini without key falls back to mock")
}

func TestTogetherClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "test-model", payload["model"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"[{\"title\":\"Go Dev\"}]"}}],"usage":{"prompt_tokens":120,"completion_tokens":15}}`))
	}))
	defer srv.Close()

	c := NewTogetherClient("secret", "test-model", srv.URL, 256)
	out, err := c.Complete(context.Background(), "extract jobs")
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"Go Dev"}]`, out.Text)
	assert.Equal(t, 120, out.InputTokens)
	assert.Equal(t, 15, out.OutputTokens)
	assert.Equal(t, "test-model", out.Model)
}

func TestTogetherClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	defer srv.Close()

	c := NewTogetherClient("secret", "x", srv.URL, 0)
	_, err := c.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}

func TestMockClientCountsCalls(t *testing.T) {
	m := NewMockClient().WithResponse(`{"jobs":[]}`)
	out, err := m.Complete(context.Background(), "prompt text")
	require.NoError(t, err)
	assert.Equal(t, `{"jobs":[]}`, out.Text)
	assert.Equal(t, 1, m.Calls())
	assert.Equal(t, "prompt text", m.LastPrompt())

	m.WithError(errors.New("boom"))
	_, err = m.Complete(context.Background(), "again")
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 2, m.Calls())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 3, EstimateTokens("0123456789"))
}
