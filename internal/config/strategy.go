package config

// StrategyConfig defines per-role model selections and fallbacks.
type StrategyConfig struct {
	GeneralModel string            `mapstructure:"general_model"` // document QA and output formatting
	CodeModel    string            `mapstructure:"code_model"`    // agent reasoning
	Overrides    map[string]string `mapstructure:"overrides"`     // arbitrary role->model id
	Fallbacks    []string          `mapstructure:"fallbacks"`     // ordered fallback model ids
}

// Model roles resolved through the strategy.
const (
	RoleGeneral = "general"
	RoleCoder   = "coder"
)
