package agent

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/llm"
	llmmock "github.com/animus-coder/codesmith/internal/llm/mock"
	"github.com/animus-coder/codesmith/internal/observability"
)

func TestStrategyResolvesRoles(t *testing.T) {
	reg := llm.NewRegistry()
	reg.RegisterProvider("p", &llmmock.Provider{})
	reg.RegisterModel("general", llm.ModelRoute{Provider: "p", Model: "mistral"}, true)
	reg.RegisterModel("coder", llm.ModelRoute{Provider: "p", Model: "codellama"}, false)

	metrics := observability.NewMetrics()
	engine := NewStrategyEngine(reg, config.StrategyConfig{
		GeneralModel: "general",
		CodeModel:    "coder",
	}).WithMetrics(metrics)

	_, route, err := engine.ResolveModel(config.RoleGeneral, "")
	require.NoError(t, err)
	require.Equal(t, "mistral", route.Model)

	_, route, err = engine.ResolveModel("Coder", "")
	require.NoError(t, err)
	require.Equal(t, "codellama", route.Model)

	_, route, err = engine.ResolveModel(config.RoleCoder, "general")
	require.NoError(t, err)
	require.Equal(t, "mistral", route.Model)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ModelUsage.WithLabelValues("coder", "coder")))
}

func TestStrategyOverridesAndFallbacks(t *testing.T) {
	reg := llm.NewRegistry()
	reg.RegisterProvider("p", &llmmock.Provider{})
	reg.RegisterModel("default", llm.ModelRoute{Provider: "p", Model: "m0"}, true)
	reg.RegisterModel("backup", llm.ModelRoute{Provider: "p", Model: "m1"}, false)
	reg.RegisterModel("tuned", llm.ModelRoute{Provider: "p", Model: "m2"}, false)

	engine := NewStrategyEngine(reg, config.StrategyConfig{
		CodeModel: "missing",
		Overrides: map[string]string{"general": "tuned"},
		Fallbacks: []string{"backup"},
	})

	_, route, err := engine.ResolveModel(config.RoleGeneral, "")
	require.NoError(t, err)
	require.Equal(t, "tuned", route.Name)

	_, route, err = engine.ResolveModel(config.RoleCoder, "")
	require.NoError(t, err)
	require.Equal(t, "backup", route.Name)

	require.Equal(t, "", engine.NextFallback("backup"))
	require.Equal(t, "backup", engine.NextFallback("tuned"))
}

func TestStrategyUsesRegistryDefault(t *testing.T) {
	reg := llm.NewRegistry()
	reg.RegisterProvider("p", &llmmock.Provider{})
	reg.RegisterModel("only", llm.ModelRoute{Provider: "p", Model: "m"}, true)

	_, route, err := NewStrategyEngine(reg, config.StrategyConfig{}).ResolveModel(config.RoleCoder, "")
	require.NoError(t, err)
	require.Equal(t, "only", route.Name)

	var nilEngine *StrategyEngine
	_, _, err = nilEngine.ResolveModel(config.RoleCoder, "")
	require.Error(t, err)
}
