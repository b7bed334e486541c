package agent

import (
	"strings"

	"go.uber.org/zap"

	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/logging"
	"github.com/animus-coder/codesmith/internal/observability"
	"github.com/animus-coder/codesmith/internal/tools"
)

// Builder assembles agents from a tool selection.
type Builder struct {
	Strategy *StrategyEngine
	Config   config.AgentConfig
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Build binds exactly the selected tools, the instruction context and the
// coder model into a new Agent.
func (b *Builder) Build(selected []tools.Tool) (*Agent, error) {
	if len(selected) == 0 {
		return nil, tools.Configuration("build agent", "select at least one tool")
	}

	provider, route, err := b.Strategy.ResolveModel(config.RoleCoder, "")
	if err != nil {
		return nil, err
	}

	instructions := b.Config.Context
	if strings.TrimSpace(instructions) == "" {
		instructions = config.DefaultAgentContext
	}

	bound := append([]tools.Tool(nil), selected...)
	a := &Agent{
		tools:        bound,
		instructions: instructions,
		systemPrompt: buildSystemPrompt(instructions, bound),
		provider:     provider,
		route:        route,
		cfg:          b.Config,
		logger:       logging.Component(b.Logger, "agent"),
		metrics:      b.Metrics,
	}

	if fb := b.Strategy.NextFallback(route.Name); fb != "" {
		if p, r, err := b.Strategy.registry.Resolve(fb); err == nil {
			a.fallbackProvider, a.fallbackRoute = p, r
		}
	}

	withReader := CodeReaderSelected(selected)
	b.Metrics.RecordAgentBuild(withReader)
	a.logger.Info("agent built",
		zap.Int("tools", len(bound)),
		zap.String("model", route.Name),
		zap.Bool("code_reader", withReader))
	return a, nil
}

// CodeReaderSelected reports whether a tool named like the built-in code
// reader is part of the selection.
func CodeReaderSelected(selected []tools.Tool) bool {
	for _, t := range selected {
		if t.Name() == tools.CodeReaderName {
			return true
		}
	}
	return false
}
