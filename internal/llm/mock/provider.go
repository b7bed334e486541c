package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/animus-coder/codesmith/internal/llm"
)

// Provider is a test double implementing llm.Provider.
type Provider struct {
	NameValue string
	ChatFn    func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)

	mu       sync.Mutex
	requests []llm.ChatRequest
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.ChatFn != nil {
		return p.ChatFn(ctx, req)
	}
	return Reply("mock"), nil
}

// Requests returns every request received so far.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}

// Reply wraps content as an assistant response.
func Reply(content string) llm.ChatResponse {
	return llm.ChatResponse{
		Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: content},
		FinishReason: "stop",
	}
}

// ErrScriptExhausted is returned once a Script has no replies left.
var ErrScriptExhausted = errors.New("mock: script exhausted")

// Script returns a provider answering with the given replies in order.
// A reply that is an error is returned as the call's error.
func Script(replies ...interface{}) *Provider {
	var (
		mu  sync.Mutex
		idx int
	)
	return &Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			mu.Lock()
			defer mu.Unlock()
			if idx >= len(replies) {
				return llm.ChatResponse{}, ErrScriptExhausted
			}
			r := replies[idx]
			idx++
			switch v := r.(type) {
			case error:
				return llm.ChatResponse{}, v
			case string:
				return Reply(v), nil
			case llm.ChatResponse:
				return v, nil
			default:
				return llm.ChatResponse{}, errors.New("mock: unsupported scripted reply")
			}
		},
	}
}
