package generate

import (
	"context"
	"errors"
	"net/http"

	"github.com/bufbuild/connect-go"

	"github.com/animus-coder/codesmith/internal/observability"
	"github.com/animus-coder/codesmith/internal/rpc"
	"github.com/animus-coder/codesmith/internal/rpc/connectjson"
)

const ConnectGenerateProcedure = "/connect.codesmith.v1.CodesmithService/Generate"

// NewConnectHandler builds a Connect bidi stream handler for Generate.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	h := &connectGenerateHandler{runner: runner, metrics: metrics}
	return ConnectGenerateProcedure, connect.NewBidiStreamHandler(ConnectGenerateProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectGenerateHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectGenerateHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.GenerateStreamRequest, rpc.GenerateEvent]) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := stream.Receive()
	if err != nil {
		h.metrics.RecordTransportError("connect", "receive_first")
		return err
	}
	if first == nil || first.Generate == nil {
		h.metrics.RecordTransportError("connect", "missing_generate")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include generate payload"))
	}

	events, err := h.runner.Run(ctx, *first.Generate)
	if err != nil {
		h.metrics.RecordTransportError("connect", "rejected")
		return connect.NewError(rpc.ConnectCode(err), errors.New(rpc.ErrorMessage(err)))
	}

	h.metrics.IncActiveStreams("connect")
	defer h.metrics.DecActiveStreams("connect")

	// Listen for cancellation messages from the client.
	go func() {
		for {
			msg, recvErr := stream.Receive()
			if recvErr != nil {
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	for ev := range events {
		ev := ev
		if err := stream.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			cancel()
			for range events {
			}
			return err
		}
	}
	return nil
}
