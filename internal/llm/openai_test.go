package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symptom-assistant-server/internal/config"
)

func testLLMConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		Model:          "test-model",
		Referer:        "https://example.test",
		Title:          "Symptom Assistant",
		MaxAttempts:    3,
		TimeoutSeconds: 5,
		Temperature:    0.3,
		MaxTokens:      256,
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "https://example.test", r.Header.Get("HTTP-Referer"))
		assert.Equal(t, "Symptom Assistant", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"ok\":true}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(testLLMConfig(srv.URL + "/v1"))
	out, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hello"}}})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, "test-model", body["model"])
	assert.InDelta(t, 0.3, body["temperature"], 0.0001)
}

func TestOpenAIClientClassifiesErrors(t *testing.T) {
	cases := []struct {
		status      int
		body        string
		rateLimited bool
	}{
		{http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit_error"}}`, true},
		{http.StatusInternalServerError, `{"error":{"message":"internal","type":"server_error"}}`, false},
		{http.StatusBadGateway, `not json`, false},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))

		_, err := NewOpenAIClient(testLLMConfig(srv.URL)).Complete(context.Background(), Request{
			Messages: []Message{{Role: RoleUser, Content: "x"}},
		})
		srv.Close()

		var perr *ProviderError
		require.ErrorAs(t, err, &perr, tc.body)
		assert.Equal(t, tc.status, perr.StatusCode)
		assert.Equal(t, tc.rateLimited, perr.RateLimited)
	}
}
