package agent

import (
	"fmt"
	"strings"

	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/llm"
	"github.com/animus-coder/codesmith/internal/observability"
)

// StrategyEngine chooses models for the general and coder roles.
type StrategyEngine struct {
	registry *llm.Registry
	cfg      config.StrategyConfig
	metrics  *observability.Metrics
}

// NewStrategyEngine builds a strategy selector.
func NewStrategyEngine(reg *llm.Registry, cfg config.StrategyConfig) *StrategyEngine {
	return &StrategyEngine{registry: reg, cfg: cfg}
}

// WithMetrics records every resolution as model usage.
func (s *StrategyEngine) WithMetrics(m *observability.Metrics) *StrategyEngine {
	s.metrics = m
	return s
}

// ResolveModel picks a model id for role; the order is explicit override,
// configured override for the role, the role's model, fallbacks, then the
// registry default.
func (s *StrategyEngine) ResolveModel(role string, override string) (llm.Provider, llm.ModelRoute, error) {
	if s == nil || s.registry == nil {
		return nil, llm.ModelRoute{}, fmt.Errorf("model strategy unavailable")
	}
	role = strings.ToLower(strings.TrimSpace(role))
	modelID := firstNonEmpty(
		override,
		s.cfg.Overrides[role],
		roleModel(role, s.cfg),
	)

	p, route, err := s.resolve(modelID)
	if err != nil {
		return nil, llm.ModelRoute{}, err
	}
	s.metrics.RecordModelUsage(role, route.Name)
	return p, route, nil
}

func (s *StrategyEngine) resolve(modelID string) (llm.Provider, llm.ModelRoute, error) {
	if modelID != "" {
		if p, route, err := s.registry.Resolve(modelID); err == nil {
			return p, route, nil
		}
	}
	for _, fb := range s.cfg.Fallbacks {
		if p, route, err := s.registry.Resolve(fb); err == nil {
			return p, route, nil
		}
	}
	return s.registry.Resolve("")
}

// NextFallback returns the next fallback model id different from current.
func (s *StrategyEngine) NextFallback(current string) string {
	for _, fb := range s.cfg.Fallbacks {
		if strings.TrimSpace(fb) == "" || fb == current {
			continue
		}
		return fb
	}
	return ""
}

func roleModel(role string, cfg config.StrategyConfig) string {
	switch role {
	case config.RoleGeneral:
		return cfg.GeneralModel
	case config.RoleCoder:
		return cfg.CodeModel
	default:
		return ""
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
