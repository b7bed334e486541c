package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/animus-coder/codesmith/internal/rpc"
	"github.com/animus-coder/codesmith/internal/session"
)

type staticRunner struct {
	events []rpc.GenerateEvent
	err    error
	got    rpc.GenerateRequest
}

func (s *staticRunner) Run(_ context.Context, req rpc.GenerateRequest) (<-chan rpc.GenerateEvent, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	out := make(chan rpc.GenerateEvent, len(s.events))
	for _, ev := range s.events {
		out <- ev
	}
	close(out)
	return out, nil
}

func decodeEvents(t *testing.T, body *bytes.Buffer) []rpc.GenerateEvent {
	t.Helper()
	var events []rpc.GenerateEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		var ev rpc.GenerateEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestHandlerStreamsEvents(t *testing.T) {
	runner := &staticRunner{events: []rpc.GenerateEvent{
		{Type: rpc.EventNotice, Attempt: 1, Message: "Error occured, retry #1: bad"},
		{Type: rpc.EventResult, Code: "print(1)", Description: "prints one", Filename: "a.py"},
		{Type: rpc.EventDone, Done: true},
	}}
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/sessions/{id}/generate", NewHandler(runner, nil))

	req := httptest.NewRequest(http.MethodPost, "/sessions/s-1/generate", bytes.NewBufferString(`{"prompt":"print one"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/x-ndjson", rr.Header().Get("Content-Type"))
	require.Equal(t, rpc.GenerateRequest{SessionID: "s-1", Prompt: "print one"}, runner.got)

	events := decodeEvents(t, rr.Body)
	require.Len(t, events, 3)
	require.Equal(t, "a.py", events[1].Filename)
	require.True(t, events[2].Done)
}

func TestHandlerRejectsBeforeStreaming(t *testing.T) {
	h := NewHandler(&staticRunner{err: session.ErrNotFound}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate", bytes.NewBufferString(`{"session_id":"nope","prompt":"x"}`)))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate", bytes.NewBufferString(`{not json`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/generate", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
