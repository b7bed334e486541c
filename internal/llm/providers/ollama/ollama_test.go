package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/codesmith/internal/llm"
)

func TestChat(t *testing.T) {
	t.Parallel()

	p := NewProvider("ollama", "http://mock", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			require.Equal(t, "/api/chat", r.URL.Path)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "codellama", body["model"])
			opts := body["options"].(map[string]interface{})
			require.Equal(t, []interface{}{"Observation:"}, opts["stop"])
			_, hasLimit := opts["num_predict"]
			require.False(t, hasLimit)

			return jsonResponse(http.StatusOK, `{"message":{"role":"assistant","content":"pong"},"done_reason":"stop","prompt_eval_count":3,"eval_count":2}`), nil
		}),
	}

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		Model: "codellama",
		Messages: []llm.ChatMessage{
			{Role: llm.RoleUser, Content: "ping"},
		},
		Stop: []string{"Observation:"},
	})
	require.NoError(t, err)
	require.Equal(t, "pong", resp.Message.Content)
	require.Equal(t, 5, resp.Usage.TotalTokens)
	require.Equal(t, "assistant: pong", resp.Message.String())
}

func TestChatAcceptsAPISuffixedBaseURL(t *testing.T) {
	t.Parallel()

	p := NewProvider("ollama", "http://mock:11434/api/", 0)
	require.Equal(t, "http://mock:11434", p.baseURL)
	require.Equal(t, DefaultTimeout, p.client.Timeout)
}

func TestChatStatusErrorIsRetryable(t *testing.T) {
	t.Parallel()

	p := NewProvider("ollama", "http://mock", 0)
	p.client = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `model is loading`), nil
		}),
	}

	_, err := p.Chat(context.Background(), llm.ChatRequest{Model: "mistral"})
	require.Error(t, err)

	var pErr *llm.ProviderError
	require.True(t, errors.As(err, &pErr))
	require.Equal(t, http.StatusServiceUnavailable, pErr.StatusCode)
	require.True(t, llm.IsRetryable(err))
}

func TestChatRequiresModel(t *testing.T) {
	t.Parallel()

	p := NewProvider("ollama", "", 0)
	_, err := p.Chat(context.Background(), llm.ChatRequest{})
	require.ErrorContains(t, err, "model is required")
}

func jsonResponse(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

type roundTripFunc func(r *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
