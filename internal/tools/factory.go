package tools

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/ingest"
	"github.com/animus-coder/codesmith/internal/llm"
	"github.com/animus-coder/codesmith/internal/observability"
	"github.com/animus-coder/codesmith/internal/retrieval"
)

// ModelResolver maps a model role to a provider and route.
type ModelResolver interface {
	ResolveModel(role string, override string) (llm.Provider, llm.ModelRoute, error)
}

// IndexBuilder turns parsed documents into a searchable index.
type IndexBuilder interface {
	Build(ctx context.Context, docs []ingest.Document) (*retrieval.Index, error)
}

// Factory builds document-backed query tools.
type Factory struct {
	Parser  ingest.Parser
	Indexer IndexBuilder
	Models  ModelResolver
	TopK    int
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// Build parses files, indexes them, and wraps the index as a tool answering
// with the general model. Nothing is returned on failure.
func (f *Factory) Build(ctx context.Context, files []string, name, description string) (t Tool, err error) {
	if len(files) == 0 {
		return nil, Configuration("build tool", "at least one file is required")
	}

	start := time.Now()
	defer func() {
		f.Metrics.RecordToolBuild(err)
		if f.Logger == nil {
			return
		}
		if err != nil {
			f.Logger.Warn("tool build failed", zap.String("tool", name), zap.Error(err))
			return
		}
		f.Logger.Info("tool built", zap.String("tool", name), zap.Int("files", len(files)), zap.Duration("took", time.Since(start)))
	}()

	provider, route, err := f.Models.ResolveModel(config.RoleGeneral, "")
	if err != nil {
		return nil, err
	}

	docs, err := f.Parser.Parse(ctx, files)
	if err != nil {
		return nil, &ToolBuildError{Tool: name, Stage: StageParse, Cause: err}
	}
	if len(docs) == 0 {
		return nil, &ToolBuildError{Tool: name, Stage: StageParse, Cause: ingest.ErrUnsupported}
	}

	index, err := f.Indexer.Build(ctx, docs)
	if err != nil {
		return nil, &ToolBuildError{Tool: name, Stage: StageIndex, Cause: err}
	}

	return &QueryEngineTool{
		name:        name,
		description: description,
		engine: &retrieval.QueryEngine{
			Index:    index,
			Provider: provider,
			Route:    route,
			TopK:     f.TopK,
		},
	}, nil
}

// QueryEngineTool answers free-text questions from a fixed document index.
type QueryEngineTool struct {
	name        string
	description string
	engine      *retrieval.QueryEngine
}

// NewQueryEngineTool wraps an existing engine.
func NewQueryEngineTool(name, description string, engine *retrieval.QueryEngine) *QueryEngineTool {
	return &QueryEngineTool{name: name, description: description, engine: engine}
}

func (t *QueryEngineTool) Name() string        { return t.name }
func (t *QueryEngineTool) Description() string { return t.description }

func (t *QueryEngineTool) Call(ctx context.Context, input string) (string, error) {
	return t.engine.Answer(ctx, input)
}
