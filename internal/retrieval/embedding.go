package retrieval

import (
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"

	"github.com/animus-coder/codesmith/internal/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// NewEmbeddingFunc builds the embedding backend named by the config.
func NewEmbeddingFunc(cfg config.EmbeddingConfig) (chromem.EmbeddingFunc, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}

	switch strings.ToLower(cfg.Type) {
	case "", "ollama":
		return chromem.NewEmbeddingFuncOllama(cfg.Model, ollamaAPIBase(cfg.BaseURL)), nil
	case "openai":
		base := strings.TrimRight(cfg.BaseURL, "/")
		if base == "" {
			base = defaultOpenAIBaseURL
		}
		return chromem.NewEmbeddingFuncOpenAICompat(base, cfg.APIKey, cfg.Model, nil), nil
	default:
		return nil, fmt.Errorf("unknown embedding type %q", cfg.Type)
	}
}

// ollamaAPIBase accepts both "http://host:11434" and "http://host:11434/api".
func ollamaAPIBase(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return ""
	}
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	return base
}
