package generate

import (
	"context"

	"go.uber.org/zap"

	"github.com/animus-coder/codesmith/internal/agent"
	"github.com/animus-coder/codesmith/internal/extract"
	"github.com/animus-coder/codesmith/internal/logging"
	"github.com/animus-coder/codesmith/internal/rpc"
	"github.com/animus-coder/codesmith/internal/session"
)

// Runner starts a generation and yields streamed events. Errors returned
// directly are detected before any event is produced.
type Runner interface {
	Run(ctx context.Context, req rpc.GenerateRequest) (<-chan rpc.GenerateEvent, error)
}

// SessionRunner bridges session.Service to RPC events.
type SessionRunner struct {
	Service *session.Service
	Logger  *zap.Logger
}

// Run validates the request and streams steps, retry notices and the final
// result or error, always followed by done.
func (r *SessionRunner) Run(ctx context.Context, req rpc.GenerateRequest) (<-chan rpc.GenerateEvent, error) {
	if err := r.Service.CheckGenerate(req.SessionID, req.Prompt); err != nil {
		return nil, err
	}

	logger := logging.Component(r.Logger, "generate")
	out := make(chan rpc.GenerateEvent, 16)
	go func() {
		defer close(out)
		send := func(ev rpc.GenerateEvent) {
			ev.SessionID = req.SessionID
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		res, err := r.Service.Generate(ctx, req.SessionID, req.Prompt, session.Observer{
			OnStep: func(s agent.Step) {
				step := s
				send(rpc.GenerateEvent{Type: rpc.EventStep, Step: &step})
			},
			OnNotice: func(n extract.Notice) {
				send(rpc.GenerateEvent{Type: rpc.EventNotice, Attempt: n.Attempt, Message: n.String()})
			},
		})
		if err != nil {
			logger.Debug("generate ended with error", zap.String("session_id", req.SessionID), zap.Error(err))
			send(rpc.GenerateEvent{Type: rpc.EventError, Error: rpc.ErrorMessage(err)})
		} else {
			send(rpc.GenerateEvent{Type: rpc.EventResult, Code: res.Code, Description: res.Description, Filename: res.Filename})
		}
		send(rpc.GenerateEvent{Type: rpc.EventDone, Done: true})
	}()
	return out, nil
}
