package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/llm"
	"github.com/animus-coder/codesmith/internal/observability"
	"github.com/animus-coder/codesmith/internal/tools"
)

// stopSequences keep the model from inventing tool observations.
var stopSequences = []string{"Observation:"}

// Agent binds tools, an instruction context and a reasoning model.
// It is never mutated after Build.
type Agent struct {
	tools        []tools.Tool
	instructions string
	systemPrompt string

	provider llm.Provider
	route    llm.ModelRoute

	fallbackProvider llm.Provider
	fallbackRoute    llm.ModelRoute

	cfg     config.AgentConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Tools returns the bound tools in selection order.
func (a *Agent) Tools() []tools.Tool {
	return append([]tools.Tool(nil), a.tools...)
}

// HasTool reports whether a tool with the given name is bound.
func (a *Agent) HasTool(name string) bool {
	return a.lookup(name) != nil
}

// Model returns the reasoning model route.
func (a *Agent) Model() llm.ModelRoute {
	return a.route
}

// Instructions returns the fixed instruction context.
func (a *Agent) Instructions() string {
	return a.instructions
}

// MaxSteps returns configured maximum steps (>0).
func (a *Agent) MaxSteps() int {
	if a.cfg.MaxSteps > 0 {
		return a.cfg.MaxSteps
	}
	return 1
}

// Query runs the reasoning loop until the model produces a final answer.
// Unknown tools and tool failures are reported back to the model as
// observations; model failures end the query.
func (a *Agent) Query(ctx context.Context, prompt string, observe StepObserver) (Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return Response{}, tools.Configuration("query", "prompt is required")
	}

	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: a.systemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}

	steps := make([]Step, 0, 4)
	for i := 1; i <= a.MaxSteps(); i++ {
		if err := ctx.Err(); err != nil {
			return Response{Steps: steps, Route: a.route}, err
		}

		resp, err := a.chat(ctx, messages)
		if err != nil {
			return Response{Steps: steps, Route: a.route}, err
		}

		turn := parseReasoning(resp.Message.Content)
		step := Step{Index: i, Thought: turn.thought}
		if turn.final {
			step.Answer = turn.answer
			steps = append(steps, step)
			a.notify(observe, step)
			return Response{Answer: turn.answer, Steps: steps, Route: a.route}, nil
		}

		step.Action = turn.action
		step.ActionInput = turn.input
		step.Observation = truncateForPrompt(a.callTool(ctx, turn.action, turn.input), a.cfg.MaxObservationBytes)
		steps = append(steps, step)
		a.notify(observe, step)

		messages = append(messages,
			llm.ChatMessage{Role: llm.RoleAssistant, Content: strings.TrimSpace(resp.Message.Content)},
			llm.ChatMessage{Role: llm.RoleUser, Content: observationMessage(step.Observation)},
		)
	}

	a.logger.Warn("agent stopped without answer", zap.Int("steps", len(steps)))
	return Response{Steps: steps, Route: a.route}, ErrMaxSteps
}

func (a *Agent) chat(ctx context.Context, messages []llm.ChatMessage) (llm.ChatResponse, error) {
	resp, err := a.provider.Chat(ctx, a.request(a.route, messages))
	if err == nil {
		return resp, nil
	}
	a.metrics.RecordModelFailure(config.RoleCoder, a.route.Name)
	if a.fallbackProvider == nil || !llm.IsRetryable(err) {
		return llm.ChatResponse{}, err
	}

	a.logger.Warn("reasoning model failed, using fallback",
		zap.String("model", a.route.Name),
		zap.String("fallback", a.fallbackRoute.Name),
		zap.Error(err))
	resp, ferr := a.fallbackProvider.Chat(ctx, a.request(a.fallbackRoute, messages))
	if ferr != nil {
		a.metrics.RecordModelFailure(config.RoleCoder, a.fallbackRoute.Name)
		return llm.ChatResponse{}, fmt.Errorf("%w (fallback %s: %v)", err, a.fallbackRoute.Name, ferr)
	}
	return resp, nil
}

func (a *Agent) request(route llm.ModelRoute, messages []llm.ChatMessage) llm.ChatRequest {
	return llm.ChatRequest{
		Model:       route.Model,
		Messages:    messages,
		MaxTokens:   pickMaxTokens(a.cfg.MaxTokens, route.MaxTokens),
		Temperature: pickTemperature(a.cfg.Temperature, route.Temperature),
		Stop:        stopSequences,
	}
}

func (a *Agent) callTool(ctx context.Context, name, input string) string {
	t := a.lookup(name)
	if t == nil {
		names := make([]string, 0, len(a.tools))
		for _, bound := range a.tools {
			names = append(names, bound.Name())
		}
		return fmt.Sprintf("Error: tool %q is not available; choose one of: %s", name, strings.Join(names, ", "))
	}

	out, err := t.Call(ctx, toolInput(input))
	if err != nil {
		a.logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		return "Error: " + err.Error()
	}
	return out
}

func (a *Agent) lookup(name string) tools.Tool {
	for _, t := range a.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (a *Agent) notify(observe StepObserver, step Step) {
	a.logger.Debug("agent step",
		zap.Int("step", step.Index),
		zap.String("action", step.Action),
		zap.Bool("final", step.Answer != ""))
	if observe != nil {
		observe(step)
	}
}

func pickTemperature(agentTemp float64, routeTemp float64) float64 {
	if agentTemp > 0 {
		return agentTemp
	}
	if routeTemp > 0 {
		return routeTemp
	}
	return 0.2
}

func pickMaxTokens(agentMax int, routeMax int) int {
	if agentMax > 0 {
		return agentMax
	}
	if routeMax > 0 {
		return routeMax
	}
	return 0
}
