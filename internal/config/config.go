package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version    string                    `mapstructure:"version"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Models     map[string]ModelConfig    `mapstructure:"models"`
	Strategy   StrategyConfig            `mapstructure:"strategy"`
	Embedding  EmbeddingConfig           `mapstructure:"embedding"`
	Index      IndexConfig               `mapstructure:"index"`
	Agent      AgentConfig               `mapstructure:"agent"`
	Extraction ExtractionConfig          `mapstructure:"extraction"`
	Storage    StorageConfig             `mapstructure:"storage"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Server     ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents LLM provider configuration such as OpenAI, Ollama, or custom gateways.
type ProviderConfig struct {
	Type      string        `mapstructure:"type"`       // openai, openrouter, ollama, vllm, lmstudio, custom
	Model     string        `mapstructure:"model"`      // default model for the provider
	BaseURL   string        `mapstructure:"base_url"`   // API base URL
	APIKey    string        `mapstructure:"api_key"`    // optional API key
	Timeout   time.Duration `mapstructure:"timeout"`    // request timeout
	MaxTokens int           `mapstructure:"max_tokens"` // optional provider-level token cap
}

// ModelConfig binds a logical model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
}

// EmbeddingConfig selects the embedding backend used to build retrieval indexes.
type EmbeddingConfig struct {
	Type    string `mapstructure:"type"` // ollama or openai
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// IndexConfig controls document chunking and retrieval depth.
type IndexConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`    // words per chunk
	ChunkOverlap int `mapstructure:"chunk_overlap"` // words shared by neighbouring chunks
	TopK         int `mapstructure:"top_k"`
	Concurrency  int `mapstructure:"concurrency"`
}

// AgentConfig describes the reasoning loop parameters.
type AgentConfig struct {
	MaxSteps            int     `mapstructure:"max_steps"`
	MaxTokens           int     `mapstructure:"max_tokens"`
	Temperature         float64 `mapstructure:"temperature"`
	Context             string  `mapstructure:"context"`
	MaxObservationBytes int     `mapstructure:"max_observation_bytes"`
}

// ExtractionConfig controls the structured output pipeline.
type ExtractionConfig struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	StripPrefix string `mapstructure:"strip_prefix"`
}

// StorageConfig describes where uploaded files are staged.
type StorageConfig struct {
	DataDir        string `mapstructure:"data_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// EnvFiles are loaded (when present) before the environment is consulted.
var EnvFiles = []string{".env.local", ".env"}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: CODESMITH_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(EnvFiles...); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CODESMITH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnvFiles(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("embedding.type", "ollama")
	v.SetDefault("embedding.model", "bge-m3")
	v.SetDefault("embedding.base_url", "http://127.0.0.1:11434/api")

	v.SetDefault("index.chunk_size", 512)
	v.SetDefault("index.chunk_overlap", 64)
	v.SetDefault("index.top_k", 2)
	v.SetDefault("index.concurrency", 4)

	v.SetDefault("agent.max_steps", 10)
	v.SetDefault("agent.max_tokens", 0)
	v.SetDefault("agent.temperature", 0)
	v.SetDefault("agent.context", DefaultAgentContext)
	v.SetDefault("agent.max_observation_bytes", 16384)

	v.SetDefault("extraction.max_attempts", 3)
	v.SetDefault("extraction.strip_prefix", "assistant: ")

	v.SetDefault("strategy.general_model", "")
	v.SetDefault("strategy.code_model", "")
	v.SetDefault("strategy.overrides", map[string]string{})
	v.SetDefault("strategy.fallbacks", []string{})

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.max_upload_bytes", 32<<20)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// DefaultAgentContext is the instruction context bound into every agent.
const DefaultAgentContext = `Purpose: The primary role of this agent is to assist users by analyzing code. It should
be able to generate code and answer questions about code provided.`

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	var defaultFound bool
	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	for _, modelID := range []string{c.Strategy.GeneralModel, c.Strategy.CodeModel} {
		if strings.TrimSpace(modelID) == "" {
			continue
		}
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy references unknown model %q", modelID)
		}
	}
	for _, modelID := range c.Strategy.Fallbacks {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy fallback references unknown model %q", modelID)
		}
	}
	for _, modelID := range c.Strategy.Overrides {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy override references unknown model %q", modelID)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Embedding.Type)) {
	case "", "ollama", "openai":
	default:
		return fmt.Errorf("embedding.type must be one of ollama or openai, got %q", c.Embedding.Type)
	}

	if c.Index.ChunkSize < 0 {
		return errors.New("index.chunk_size must be >= 0")
	}
	if c.Index.ChunkOverlap < 0 {
		return errors.New("index.chunk_overlap must be >= 0")
	}
	if c.Index.ChunkSize > 0 && c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return errors.New("index.chunk_overlap must be smaller than index.chunk_size")
	}
	if c.Index.TopK < 0 {
		return errors.New("index.top_k must be >= 0")
	}

	if c.Agent.MaxSteps <= 0 {
		return errors.New("agent.max_steps must be > 0")
	}
	if c.Agent.MaxObservationBytes < 0 {
		return errors.New("agent.max_observation_bytes must be >= 0")
	}

	if c.Extraction.MaxAttempts <= 0 {
		return errors.New("extraction.max_attempts must be > 0")
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage.data_dir must be set")
	}
	if c.Storage.MaxUploadBytes < 0 {
		return errors.New("storage.max_upload_bytes must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}
