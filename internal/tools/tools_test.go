package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/codesmith/internal/ingest"
	"github.com/animus-coder/codesmith/internal/llm"
	llmmock "github.com/animus-coder/codesmith/internal/llm/mock"
	"github.com/animus-coder/codesmith/internal/observability"
	"github.com/animus-coder/codesmith/internal/retrieval"
)

type stubTool struct {
	name, desc string
}

func (s stubTool) Name() string        { return s.name }
func (s stubTool) Description() string { return s.desc }
func (s stubTool) Call(context.Context, string) (string, error) {
	return s.name, nil
}

type staticResolver struct {
	provider llm.Provider
	roles    []string
}

func (r *staticResolver) ResolveModel(role, _ string) (llm.Provider, llm.ModelRoute, error) {
	r.roles = append(r.roles, role)
	return r.provider, llm.ModelRoute{Name: role, Model: "mistral"}, nil
}

type parserFunc func(ctx context.Context, paths []string) ([]ingest.Document, error)

func (f parserFunc) Parse(ctx context.Context, paths []string) ([]ingest.Document, error) {
	return f(ctx, paths)
}

func constantEmbed(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func newFactory(t *testing.T, parser ingest.Parser, provider llm.Provider) (*Factory, *staticResolver) {
	t.Helper()
	resolver := &staticResolver{provider: provider}
	return &Factory{
		Parser:  parser,
		Indexer: &retrieval.Indexer{Embed: constantEmbed},
		Models:  resolver,
		TopK:    2,
		Metrics: observability.NewMetrics(),
	}, resolver
}

func TestFactoryBuildKeepsNameAndDescription(t *testing.T) {
	var parsed []string
	parser := parserFunc(func(_ context.Context, paths []string) ([]ingest.Document, error) {
		parsed = paths
		return []ingest.Document{{ID: "api.md", Text: "GET /health returns ok", Metadata: map[string]string{"file_name": "api.md"}}}, nil
	})
	provider := &llmmock.Provider{
		ChatFn: func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			require.Contains(t, req.Messages[0].Content, "GET /health returns ok")
			return llmmock.Reply("it returns ok"), nil
		},
	}
	factory, resolver := newFactory(t, parser, provider)

	tool, err := factory.Build(context.Background(), []string{"data/api.md"}, "API docs", "Answers questions about the HTTP API")
	require.NoError(t, err)
	require.Equal(t, "API docs", tool.Name())
	require.Equal(t, "Answers questions about the HTTP API", tool.Description())
	require.Equal(t, []string{"data/api.md"}, parsed)
	require.Equal(t, []string{"general"}, resolver.roles)

	answer, err := tool.Call(context.Background(), "what does /health return?")
	require.NoError(t, err)
	require.Equal(t, "it returns ok", answer)
}

func TestFactoryKeepsEmptyNameVerbatim(t *testing.T) {
	parser := parserFunc(func(context.Context, []string) ([]ingest.Document, error) {
		return []ingest.Document{{ID: "x.txt", Text: "some notes", Metadata: map[string]string{"file_name": "x.txt"}}}, nil
	})
	factory, _ := newFactory(t, parser, &llmmock.Provider{})

	tool, err := factory.Build(context.Background(), []string{"x.txt"}, "", "desc")
	require.NoError(t, err)
	require.Equal(t, "", tool.Name())
	require.Equal(t, "desc", tool.Description())
}

func TestFactoryRejectsEmptyFilesBeforeParsing(t *testing.T) {
	parser := parserFunc(func(context.Context, []string) ([]ingest.Document, error) {
		t.Fatal("parser must not be called")
		return nil, nil
	})
	factory, _ := newFactory(t, parser, &llmmock.Provider{})
	reg := NewRegistry(stubTool{name: CodeReaderName})

	tool, err := factory.Build(context.Background(), nil, "empty", "none")
	require.Nil(t, tool)
	require.True(t, errors.Is(err, ErrConfiguration))

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Len(t, reg.List(), 1)
}

func TestFactoryWrapsParseAndIndexFailures(t *testing.T) {
	boom := errors.New("corrupt pdf")
	failing := parserFunc(func(context.Context, []string) ([]ingest.Document, error) { return nil, boom })
	factory, _ := newFactory(t, failing, &llmmock.Provider{})

	_, err := factory.Build(context.Background(), []string{"x.pdf"}, "bad", "bad")
	var buildErr *ToolBuildError
	require.True(t, errors.As(err, &buildErr))
	require.Equal(t, StageParse, buildErr.Stage)
	require.Equal(t, "bad", buildErr.Tool)
	require.ErrorIs(t, err, boom)

	blank := parserFunc(func(context.Context, []string) ([]ingest.Document, error) {
		return []ingest.Document{{ID: "blank", Text: "   "}}, nil
	})
	factory, _ = newFactory(t, blank, &llmmock.Provider{})
	_, err = factory.Build(context.Background(), []string{"blank.txt"}, "blank", "blank")
	require.True(t, errors.As(err, &buildErr))
	require.Equal(t, StageIndex, buildErr.Stage)
	require.ErrorIs(t, err, retrieval.ErrEmptyIndex)
}

func TestRegistryPreservesOrder(t *testing.T) {
	reg := NewRegistry(stubTool{name: CodeReaderName})
	reg.Register(stubTool{name: "A"})
	reg.Register(stubTool{name: "B"})
	reg.Register(stubTool{name: "C"})

	first := names(reg.List())
	require.Equal(t, []string{"code_reader", "A", "B", "C"}, first)
	require.Equal(t, first, names(reg.List()))
}

func TestRegistryListReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubTool{name: "A"})
	list := reg.List()
	list[0] = stubTool{name: "mutated"}
	require.Equal(t, []string{"A"}, names(reg.List()))
}

func TestRegistryDuplicatesAreSelectedByID(t *testing.T) {
	reg := NewRegistry(stubTool{name: "reader", desc: "builtin"})
	require.Equal(t, 1, reg.Register(stubTool{name: "docs", desc: "first"}))
	require.Equal(t, 2, reg.Register(stubTool{name: "docs", desc: "second"}))
	require.Len(t, reg.List(), 3)

	infos := reg.Infos()
	require.Equal(t, []int{0, 1, 2}, []int{infos[0].ID, infos[1].ID, infos[2].ID})

	_, err := reg.Lookup([]string{"docs"})
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), `tool name "docs" is shared by ids [1 2]`)

	got, err := reg.Select([]int{2, 1})
	require.NoError(t, err)
	require.Equal(t, 2, got[0].ID)
	require.Equal(t, "second", got[0].Tool.Description())
	require.Equal(t, "first", EntryTools(got)[1].Description())

	got, err = reg.Lookup([]string{"reader"})
	require.NoError(t, err)
	require.Equal(t, Entry{ID: 0, Tool: stubTool{name: "reader", desc: "builtin"}}, got[0])

	_, err = reg.Lookup([]string{"reader", "ghost"})
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), `unknown tool "ghost"`)

	_, err = reg.Select([]int{3})
	require.ErrorIs(t, err, ErrConfiguration)
	require.Contains(t, err.Error(), "unknown tool id 3")
}

func TestFormatTool(t *testing.T) {
	require.Equal(t, "Name: A - Description: first letter", FormatTool(stubTool{name: "A", desc: "first letter"}))
}

func TestCodeReaderReadsStagedFiles(t *testing.T) {
	fsys, err := NewFilesystem(t.TempDir(), true)
	require.NoError(t, err)
	_, err = fsys.WriteFile("test.py", strings.NewReader("def add(a, b):\n    return a + b\n"), 0)
	require.NoError(t, err)
	reader := NewCodeReader(fsys)

	require.Equal(t, ToolInfo{Name: "code_reader", Description: CodeReaderDescription, Builtin: true}, Describe(reader))

	for _, input := range []string{"test.py", `"test.py"`, "file_name=test.py", `{"file_name": "test.py"}`} {
		out, err := reader.Call(context.Background(), input)
		require.NoError(t, err)
		var payload map[string]string
		require.NoError(t, json.Unmarshal([]byte(out), &payload), input)
		require.Equal(t, "def add(a, b):\n    return a + b\n", payload["file_content"], input)
	}
}

func TestCodeReaderReportsErrorsAsObservations(t *testing.T) {
	fsys, err := NewFilesystem(t.TempDir(), true)
	require.NoError(t, err)
	_, err = fsys.WriteFile("test.py", strings.NewReader("x = 1"), 0)
	require.NoError(t, err)
	reader := NewCodeReader(fsys)

	out, err := reader.Call(context.Background(), "tests.py")
	require.NoError(t, err)
	var payload struct {
		Error       string   `json:"error"`
		Suggestions []string `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.NotEmpty(t, payload.Error)
	require.Equal(t, []string{"test.py"}, payload.Suggestions)

	out, err = reader.Call(context.Background(), "../secret.txt")
	require.NoError(t, err)
	require.Contains(t, out, "escapes base directory")
}

func TestCodeReaderSuggestsByContent(t *testing.T) {
	fsys, err := NewFilesystem(t.TempDir(), true)
	require.NoError(t, err)
	_, err = fsys.WriteFile("helpers.py", strings.NewReader("def calculator(a, b):\n    return a * b\n"), 0)
	require.NoError(t, err)

	out, err := NewCodeReader(fsys).Call(context.Background(), "calculator.js")
	require.NoError(t, err)
	var payload struct {
		Suggestions []string `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, []string{"helpers.py"}, payload.Suggestions)
}

func names(list []Tool) []string {
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.Name())
	}
	return out
}
