package llm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/llm"
	"github.com/animus-coder/codesmith/internal/llm/configbuilder"
	llmmock "github.com/animus-coder/codesmith/internal/llm/mock"
)

func TestRegistryResolve(t *testing.T) {
	reg := llm.NewRegistry()
	mockProvider := &llmmock.Provider{NameValue: "mock"}
	reg.RegisterProvider("mock", mockProvider)
	reg.RegisterModel("default", llm.ModelRoute{
		Provider:    "mock",
		Model:       "dummy",
		Temperature: 0.2,
	}, true)

	p, route, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, mockProvider, p)
	require.Equal(t, "dummy", route.Model)
}

func TestBuildRegistryFromConfig(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"openai": {Type: "openai", BaseURL: "http://example.com"},
		},
		Models: map[string]config.ModelConfig{
			"main": {Provider: "openai", Model: "gpt-4o", Default: true},
		},
	}

	reg, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.NoError(t, err)

	p, _, err := reg.Resolve("main")
	require.NoError(t, err)
	require.Equal(t, "openai", p.Name())
}

func TestRegistryModelsSorted(t *testing.T) {
	reg := llm.NewRegistry()
	reg.RegisterProvider("mock", &llmmock.Provider{})
	reg.RegisterModel("general", llm.ModelRoute{Provider: "mock", Model: "mistral"}, false)
	reg.RegisterModel("coder", llm.ModelRoute{Provider: "mock", Model: "codellama"}, false)

	require.Equal(t, []string{"coder", "general"}, reg.Models())

	p, route, err := reg.Resolve("")
	require.NoError(t, err)
	require.Equal(t, "mock", p.Name())
	require.Equal(t, "mistral", route.Model)
}

func TestRegistryResolveUnknownModel(t *testing.T) {
	reg := llm.NewRegistry()
	_, _, err := reg.Resolve("ghost")
	require.ErrorContains(t, err, `model "ghost" not registered`)
}

func TestBuildRegistryRejectsUnknownStrategyModel(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]config.ProviderConfig{
			"local": {Type: "ollama"},
		},
		Models: map[string]config.ModelConfig{
			"general": {Provider: "local", Model: "mistral", Default: true},
		},
		Strategy: config.StrategyConfig{GeneralModel: "general", CodeModel: "coder"},
	}

	_, err := configbuilder.BuildRegistryFromConfig(cfg)
	require.ErrorContains(t, err, "strategy")
}
