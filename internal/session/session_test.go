package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/codesmith/internal/agent"
	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/extract"
	"github.com/animus-coder/codesmith/internal/llm"
	llmmock "github.com/animus-coder/codesmith/internal/llm/mock"
	"github.com/animus-coder/codesmith/internal/tools"
)

type stubTool struct{ name, desc string }

func (s stubTool) Name() string        { return s.name }
func (s stubTool) Description() string { return s.desc }
func (s stubTool) Call(context.Context, string) (string, error) {
	return "stub answer", nil
}

type stubFactory struct {
	files []string
	err   error
}

func (f *stubFactory) Build(_ context.Context, files []string, name, description string) (tools.Tool, error) {
	f.files = files
	if f.err != nil {
		return nil, f.err
	}
	return stubTool{name: name, desc: description}, nil
}

type fixture struct {
	svc     *Service
	coder   *llmmock.Provider
	general *llmmock.Provider
	factory *stubFactory
}

func newFixture(t *testing.T, coder, general *llmmock.Provider) *fixture {
	t.Helper()
	reg := llm.NewRegistry()
	reg.RegisterProvider("coder", coder)
	reg.RegisterProvider("general", general)
	reg.RegisterModel("mistral", llm.ModelRoute{Provider: "general", Model: "mistral"}, true)
	reg.RegisterModel("codellama", llm.ModelRoute{Provider: "coder", Model: "codellama"}, false)
	strategy := agent.NewStrategyEngine(reg, config.StrategyConfig{GeneralModel: "mistral", CodeModel: "codellama"})

	factory := &stubFactory{}
	return &fixture{
		svc: &Service{
			Manager:   NewManager(t.TempDir(), nil),
			Factory:   factory,
			Builder:   &agent.Builder{Strategy: strategy, Config: config.AgentConfig{MaxSteps: 3}},
			Extractor: &extract.Extractor{Models: strategy},
		},
		coder:   coder,
		general: general,
		factory: factory,
	}
}

func upload(name, body string) Upload {
	return Upload{Name: name, Body: strings.NewReader(body)}
}

func TestNewSessionStartsWithCodeReaderOnly(t *testing.T) {
	f := newFixture(t, &llmmock.Provider{}, &llmmock.Provider{})
	st, err := f.svc.Manager.New()
	require.NoError(t, err)

	infos, err := f.svc.Tools(st.ID)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, tools.CodeReaderName, infos[0].Name)
	require.True(t, infos[0].Builtin)
	require.Nil(t, st.Agent())
	require.False(t, st.CodeReaderEnabled())

	other, err := f.svc.Manager.New()
	require.NoError(t, err)
	require.NotEqual(t, st.ID, other.ID)
	require.NotSame(t, st.Registry(), other.Registry())
}

func TestEndRemovesSession(t *testing.T) {
	f := newFixture(t, &llmmock.Provider{}, &llmmock.Provider{})
	st, err := f.svc.Manager.New()
	require.NoError(t, err)
	_, err = f.svc.StageFiles(st.ID, []Upload{upload("notes.txt", "hello")})
	require.NoError(t, err)

	require.NoError(t, f.svc.Manager.End(st.ID))
	_, err = os.Stat(st.root)
	require.True(t, errors.Is(err, os.ErrNotExist))
	require.ErrorIs(t, f.svc.Manager.End(st.ID), ErrNotFound)
	_, err = f.svc.Tools(st.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 0, f.svc.Manager.Len())
}

func TestCreateToolRegistersAfterCodeReader(t *testing.T) {
	f := newFixture(t, &llmmock.Provider{}, &llmmock.Provider{})
	st, err := f.svc.Manager.New()
	require.NoError(t, err)

	staged, err := f.svc.StageFiles(st.ID, []Upload{upload("../../etc/api.md", "GET /health")})
	require.NoError(t, err)
	require.Equal(t, []string{"api.md"}, staged)

	info, err := f.svc.CreateTool(context.Background(), st.ID, "api_docs", "API docs", staged)
	require.NoError(t, err)
	require.Equal(t, "api_docs", info.Name)
	require.Equal(t, 1, info.ID)
	require.Equal(t, filepath.Join(st.root, docsDir, "api.md"), f.factory.files[0])

	f.factory.err = &tools.ToolBuildError{Tool: "broken", Stage: tools.StageParse, Cause: errors.New("bad pdf")}
	_, err = f.svc.CreateTool(context.Background(), st.ID, "broken", "", staged)
	require.Error(t, err)

	infos, err := f.svc.Tools(st.ID)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "api_docs", infos[1].Name)
}

func TestCreateAgentTogglesCodeUploads(t *testing.T) {
	f := newFixture(t, &llmmock.Provider{}, &llmmock.Provider{})
	st, err := f.svc.Manager.New()
	require.NoError(t, err)
	staged, err := f.svc.StageFiles(st.ID, []Upload{upload("api.md", "docs")})
	require.NoError(t, err)
	_, err = f.svc.CreateTool(context.Background(), st.ID, "api_docs", "API docs", staged)
	require.NoError(t, err)

	_, err = f.svc.StageCodeFiles(st.ID, []Upload{upload("main.py", "print(1)")})
	require.ErrorIs(t, err, ErrCodeReaderDisabled)

	info, err := f.svc.CreateAgent(context.Background(), st.ID, Selection{Names: []string{"api_docs", tools.CodeReaderName}})
	require.NoError(t, err)
	require.True(t, info.CodeReaderEnabled)
	require.Equal(t, []string{"api_docs", tools.CodeReaderName}, info.Tools)

	names, err := f.svc.StageCodeFiles(st.ID, []Upload{upload("main.py", "print(1)")})
	require.NoError(t, err)
	require.Equal(t, []string{"main.py"}, names)

	info, err = f.svc.CreateAgent(context.Background(), st.ID, Selection{Names: []string{"api_docs"}})
	require.NoError(t, err)
	require.False(t, info.CodeReaderEnabled)
	_, err = f.svc.StageCodeFiles(st.ID, []Upload{upload("main.py", "print(2)")})
	require.ErrorIs(t, err, ErrCodeReaderDisabled)

	_, err = f.svc.CreateAgent(context.Background(), st.ID, Selection{Names: []string{"ghost"}})
	require.ErrorIs(t, err, tools.ErrConfiguration)
	require.NotNil(t, st.Agent())

	_, err = f.svc.CreateAgent(context.Background(), st.ID, Selection{})
	require.ErrorIs(t, err, tools.ErrConfiguration)
}

func TestCreateAgentSelectsCollidingToolsByID(t *testing.T) {
	f := newFixture(t, &llmmock.Provider{}, &llmmock.Provider{})
	st, err := f.svc.Manager.New()
	require.NoError(t, err)
	staged, err := f.svc.StageFiles(st.ID, []Upload{upload("api.md", "docs")})
	require.NoError(t, err)

	first, err := f.svc.CreateTool(context.Background(), st.ID, "docs", "first docs", staged)
	require.NoError(t, err)
	second, err := f.svc.CreateTool(context.Background(), st.ID, "docs", "second docs", staged)
	require.NoError(t, err)
	userReader, err := f.svc.CreateTool(context.Background(), st.ID, tools.CodeReaderName, "user reader", staged)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, []int{first.ID, second.ID, userReader.ID})

	_, err = f.svc.CreateAgent(context.Background(), st.ID, Selection{Names: []string{"docs"}})
	require.ErrorIs(t, err, tools.ErrConfiguration)
	require.Contains(t, err.Error(), "select by id")
	require.Nil(t, st.Agent())

	_, err = f.svc.CreateAgent(context.Background(), st.ID, Selection{Names: []string{"docs"}, IDs: []int{1}})
	require.ErrorIs(t, err, tools.ErrConfiguration)

	info, err := f.svc.CreateAgent(context.Background(), st.ID, Selection{IDs: []int{second.ID, first.ID, userReader.ID}})
	require.NoError(t, err)
	require.Equal(t, []string{"docs", "docs", tools.CodeReaderName}, info.Tools)
	require.Equal(t, []int{2, 1, 3}, info.IDs)
	require.True(t, info.CodeReaderEnabled)

	bound := st.Agent().Tools()
	require.Len(t, bound, 3)
	require.Equal(t, "second docs", bound[0].Description())
	require.Equal(t, "first docs", bound[1].Description())
	require.Equal(t, "user reader", bound[2].Description())

	names, err := f.svc.StageCodeFiles(st.ID, []Upload{upload("main.py", "print(1)")})
	require.NoError(t, err)
	require.Equal(t, []string{"main.py"}, names)

	info, err = f.svc.CreateAgent(context.Background(), st.ID, Selection{IDs: []int{0}})
	require.NoError(t, err)
	require.Equal(t, []string{tools.CodeReaderName}, info.Tools)
	require.Equal(t, tools.CodeReaderDescription, st.Agent().Tools()[0].Description())
}

func TestGenerateRequiresAgentAndPrompt(t *testing.T) {
	f := newFixture(t, &llmmock.Provider{}, &llmmock.Provider{})
	st, err := f.svc.Manager.New()
	require.NoError(t, err)

	_, err = f.svc.Generate(context.Background(), st.ID, "write code", Observer{})
	require.ErrorIs(t, err, tools.ErrConfiguration)

	_, err = f.svc.CreateAgent(context.Background(), st.ID, Selection{Names: []string{tools.CodeReaderName}})
	require.NoError(t, err)
	_, err = f.svc.Generate(context.Background(), st.ID, "  ", Observer{})
	require.ErrorIs(t, err, tools.ErrConfiguration)

	_, err = f.svc.Generate(context.Background(), "missing", "write code", Observer{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateReadsStagedCodeAndExtracts(t *testing.T) {
	coder := llmmock.Script(
		"Thought: I should read the file.\nAction: code_reader\nAction Input: {\"file_name\": \"main.py\"}",
		"Thought: I can answer without using any more tools.\nAnswer: ```python\nprint(2)\n```",
	)
	general := llmmock.Script(`assistant: {'code': 'print(2)', 'description': 'prints two', 'filename': 'main.py'}`)
	f := newFixture(t, coder, general)

	st, err := f.svc.Manager.New()
	require.NoError(t, err)
	_, err = f.svc.CreateAgent(context.Background(), st.ID, Selection{Names: []string{tools.CodeReaderName}})
	require.NoError(t, err)
	_, err = f.svc.StageCodeFiles(st.ID, []Upload{upload("main.py", "print(1)")})
	require.NoError(t, err)

	var steps []agent.Step
	out, err := f.svc.Generate(context.Background(), st.ID, "make main.py print 2", Observer{
		OnStep: func(s agent.Step) { steps = append(steps, s) },
	})
	require.NoError(t, err)
	require.Equal(t, extract.CodeOutput{Code: "print(2)", Description: "prints two", Filename: "main.py"}, out)
	require.Len(t, steps, 2)
	require.Contains(t, steps[0].Observation, `"file_content":"print(1)"`)
	require.Contains(t, general.Requests()[0].Messages[0].Content, "print(2)")
}

func TestGenerateRetriesThenFailsTerminally(t *testing.T) {
	coder := &llmmock.Provider{ChatFn: func(context.Context, llm.ChatRequest) (llm.ChatResponse, error) {
		return llmmock.Reply("Answer: print(1)"), nil
	}}
	general := llmmock.Script("garbage", "more garbage", "{'code': 'print(1)'}")
	f := newFixture(t, coder, general)

	st, err := f.svc.Manager.New()
	require.NoError(t, err)
	_, err = f.svc.CreateAgent(context.Background(), st.ID, Selection{Names: []string{tools.CodeReaderName}})
	require.NoError(t, err)

	var notices []extract.Notice
	_, err = f.svc.Generate(context.Background(), st.ID, "print one", Observer{
		OnNotice: func(n extract.Notice) { notices = append(notices, n) },
	})
	require.ErrorIs(t, err, extract.ErrExtraction)
	require.Equal(t, extract.TerminalMessage, err.Error())
	require.Len(t, notices, 3)
	require.Len(t, coder.Requests(), 3)
	require.Len(t, general.Requests(), 3)
}

func TestStageRejectsOversizedUploads(t *testing.T) {
	f := newFixture(t, &llmmock.Provider{}, &llmmock.Provider{})
	f.svc.MaxUploadBytes = 4
	st, err := f.svc.Manager.New()
	require.NoError(t, err)

	_, err = f.svc.StageFiles(st.ID, []Upload{upload("big.txt", "0123456789")})
	require.ErrorIs(t, err, tools.ErrTooLarge)

	_, err = f.svc.StageFiles(st.ID, nil)
	require.ErrorIs(t, err, tools.ErrConfiguration)
}
