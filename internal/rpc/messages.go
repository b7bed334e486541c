package rpc

import (
	"github.com/animus-coder/codesmith/internal/agent"
	"github.com/animus-coder/codesmith/internal/session"
	"github.com/animus-coder/codesmith/internal/tools"
)

// Event types streamed by Generate.
const (
	EventStep   = "step"
	EventNotice = "notice"
	EventResult = "result"
	EventError  = "error"
	EventDone   = "done"
)

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// ToolsResponse lists a session's registry.
type ToolsResponse struct {
	Tools []tools.ToolInfo `json:"tools"`
}

// CreateAgentRequest selects tools by name or, when names collide, by the
// ids from the tools listing.
type CreateAgentRequest struct {
	Tools []string `json:"tools,omitempty"`
	IDs   []int    `json:"ids,omitempty"`
}

// CreateAgentResponse echoes the bound tools.
type CreateAgentResponse = session.AgentInfo

// StageFilesResponse lists staged file names.
type StageFilesResponse struct {
	Files []string `json:"files"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// GenerateRequest starts a generation in a session.
type GenerateRequest struct {
	SessionID string `json:"session_id"`
	Prompt    string `json:"prompt"`
}

// GenerateEvent streams progress back to the client.
type GenerateEvent struct {
	Type      string      `json:"type"` // step|notice|result|error|done
	SessionID string      `json:"session_id,omitempty"`
	Step      *agent.Step `json:"step,omitempty"`
	Attempt   int         `json:"attempt,omitempty"`
	Message   string      `json:"message,omitempty"`

	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Filename    string `json:"filename,omitempty"`

	Error string `json:"error,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// GenerateStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must carry Generate; later messages may cancel it.
type GenerateStreamRequest struct {
	Generate *GenerateRequest `json:"generate,omitempty"`
	Cancel   bool             `json:"cancel,omitempty"`
}
