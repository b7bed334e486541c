package generate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/codesmith/internal/agent"
	"github.com/animus-coder/codesmith/internal/config"
	"github.com/animus-coder/codesmith/internal/extract"
	"github.com/animus-coder/codesmith/internal/llm"
	llmmock "github.com/animus-coder/codesmith/internal/llm/mock"
	"github.com/animus-coder/codesmith/internal/rpc"
	"github.com/animus-coder/codesmith/internal/session"
	"github.com/animus-coder/codesmith/internal/tools"
)

func newService(t *testing.T, coder, general llm.Provider) *session.Service {
	t.Helper()
	reg := llm.NewRegistry()
	reg.RegisterProvider("coder", coder)
	reg.RegisterProvider("general", general)
	reg.RegisterModel("mistral", llm.ModelRoute{Provider: "general", Model: "mistral"}, true)
	reg.RegisterModel("codellama", llm.ModelRoute{Provider: "coder", Model: "codellama"}, false)
	strategy := agent.NewStrategyEngine(reg, config.StrategyConfig{GeneralModel: "mistral", CodeModel: "codellama"})
	return &session.Service{
		Manager:   session.NewManager(t.TempDir(), nil),
		Builder:   &agent.Builder{Strategy: strategy, Config: config.AgentConfig{MaxSteps: 2}},
		Extractor: &extract.Extractor{Models: strategy},
	}
}

func collect(ch <-chan rpc.GenerateEvent) []rpc.GenerateEvent {
	var out []rpc.GenerateEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestSessionRunnerStreamsRetriesAndResult(t *testing.T) {
	coder := &llmmock.Provider{ChatFn: func(context.Context, llm.ChatRequest) (llm.ChatResponse, error) {
		return llmmock.Reply("Answer: print(1)"), nil
	}}
	general := llmmock.Script("not a dict", `assistant: {'code': 'print(1)', 'description': 'prints one', 'filename': 'a.py'}`)
	svc := newService(t, coder, general)

	st, err := svc.Manager.New()
	require.NoError(t, err)
	_, err = svc.CreateAgent(context.Background(), st.ID, session.Selection{Names: []string{tools.CodeReaderName}})
	require.NoError(t, err)

	runner := &SessionRunner{Service: svc}
	ch, err := runner.Run(context.Background(), rpc.GenerateRequest{SessionID: st.ID, Prompt: "print one"})
	require.NoError(t, err)

	events := collect(ch)
	var types []string
	for _, ev := range events {
		require.Equal(t, st.ID, ev.SessionID)
		types = append(types, ev.Type)
	}
	require.Equal(t, []string{rpc.EventStep, rpc.EventNotice, rpc.EventStep, rpc.EventResult, rpc.EventDone}, types)
	require.Equal(t, 1, events[1].Attempt)
	require.Equal(t, "print(1)", events[0].Step.Answer)
	require.Equal(t, "a.py", events[3].Filename)
}

func TestSessionRunnerTerminalFailure(t *testing.T) {
	coder := &llmmock.Provider{ChatFn: func(context.Context, llm.ChatRequest) (llm.ChatResponse, error) {
		return llmmock.Reply("Answer: print(1)"), nil
	}}
	svc := newService(t, coder, llmmock.Script("bad", "bad", "bad"))

	st, err := svc.Manager.New()
	require.NoError(t, err)
	_, err = svc.CreateAgent(context.Background(), st.ID, session.Selection{Names: []string{tools.CodeReaderName}})
	require.NoError(t, err)

	ch, err := (&SessionRunner{Service: svc}).Run(context.Background(), rpc.GenerateRequest{SessionID: st.ID, Prompt: "print one"})
	require.NoError(t, err)

	events := collect(ch)
	require.Len(t, events, 3+3+2)
	errEv := events[len(events)-2]
	require.Equal(t, rpc.EventError, errEv.Type)
	require.Equal(t, extract.TerminalMessage, errEv.Error)
	require.Equal(t, rpc.EventDone, events[len(events)-1].Type)
}

func TestSessionRunnerRejectsWithoutAgent(t *testing.T) {
	svc := newService(t, &llmmock.Provider{}, &llmmock.Provider{})
	st, err := svc.Manager.New()
	require.NoError(t, err)

	_, err = (&SessionRunner{Service: svc}).Run(context.Background(), rpc.GenerateRequest{SessionID: st.ID, Prompt: "x"})
	require.ErrorIs(t, err, tools.ErrConfiguration)

	_, err = (&SessionRunner{Service: svc}).Run(context.Background(), rpc.GenerateRequest{SessionID: "missing", Prompt: "x"})
	require.ErrorIs(t, err, session.ErrNotFound)
}
