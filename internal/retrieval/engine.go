package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/animus-coder/codesmith/internal/llm"
)

const DefaultTopK = 2

const qaTemplate = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
Query: %s
Answer: `

// QueryEngine answers questions from an index using a chat model.
type QueryEngine struct {
	Index    *Index
	Provider llm.Provider
	Route    llm.ModelRoute
	TopK     int
}

// Answer retrieves the closest chunks and asks the model to answer from them.
func (e *QueryEngine) Answer(ctx context.Context, query string) (string, error) {
	k := e.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	hits, err := e.Index.Search(ctx, query, k)
	if err != nil {
		return "", err
	}

	resp, err := e.Provider.Chat(ctx, llm.ChatRequest{
		Model:       e.Route.Model,
		Temperature: e.Route.Temperature,
		MaxTokens:   e.Route.MaxTokens,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleUser, Content: BuildQAPrompt(query, hits)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("query engine: %w", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// BuildQAPrompt renders retrieved chunks as the model context.
func BuildQAPrompt(query string, hits []Hit) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Source != "" {
			parts = append(parts, fmt.Sprintf("file_name: %s\n\n%s", h.Source, h.Text))
			continue
		}
		parts = append(parts, h.Text)
	}
	return fmt.Sprintf(qaTemplate, strings.Join(parts, "\n\n"), query)
}
