package sessions

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/animus-coder/codesmith/internal/logging"
	"github.com/animus-coder/codesmith/internal/observability"
	"github.com/animus-coder/codesmith/internal/rpc"
	"github.com/animus-coder/codesmith/internal/session"
)

// DefaultMaxMemory is the multipart memory budget before spilling to disk.
const DefaultMaxMemory = 8 << 20

// Handler serves the session REST API.
type Handler struct {
	Service   *session.Service
	Generate  http.Handler
	MaxMemory int64
	Metrics   *observability.Metrics
	Logger    *zap.Logger
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.createSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Delete("/", h.endSession)
		r.Get("/tools", h.listTools)
		r.Post("/tools", h.createTool)
		r.Post("/agent", h.createAgent)
		r.Post("/files", h.stageCode)
		if h.Generate != nil {
			r.Method(http.MethodPost, "/generate", h.Generate)
		}
	})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.Service.Manager.New()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rpc.CreateSessionResponse{SessionID: st.ID})
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Manager.End(chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTools(w http.ResponseWriter, r *http.Request) {
	infos, err := h.Service.Tools(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.ToolsResponse{Tools: infos})
}

// createTool expects multipart fields name, description and one or more files.
func (h *Handler) createTool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	uploads, cleanup, err := h.uploads(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer cleanup()

	staged, err := h.Service.StageFiles(id, uploads)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	info, err := h.Service.CreateTool(r.Context(), id, r.FormValue("name"), r.FormValue("description"), staged)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (h *Handler) createAgent(w http.ResponseWriter, r *http.Request) {
	var req rpc.CreateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Metrics.RecordTransportError("rest", "decode")
		writeJSON(w, http.StatusBadRequest, rpc.ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	info, err := h.Service.CreateAgent(r.Context(), chi.URLParam(r, "id"), session.Selection{Names: req.Tools, IDs: req.IDs})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rpc.CreateAgentResponse(info))
}

func (h *Handler) stageCode(w http.ResponseWriter, r *http.Request) {
	uploads, cleanup, err := h.uploads(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer cleanup()

	names, err := h.Service.StageCodeFiles(chi.URLParam(r, "id"), uploads)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rpc.StageFilesResponse{Files: names})
}

// uploads opens every part of the "files" field.
func (h *Handler) uploads(r *http.Request) ([]session.Upload, func(), error) {
	maxMemory := h.MaxMemory
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		h.Metrics.RecordTransportError("rest", "multipart")
		return nil, func() {}, &badRequest{err: err}
	}

	var (
		opened  []multipart.File
		uploads []session.Upload
	)
	cleanup := func() {
		for _, f := range opened {
			_ = f.Close()
		}
		_ = r.MultipartForm.RemoveAll()
	}
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		opened = append(opened, f)
		uploads = append(uploads, session.Upload{Name: fh.Filename, Body: f})
	}
	return uploads, cleanup, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := rpc.HTTPStatus(err)
	if _, ok := err.(*badRequest); ok {
		status = http.StatusBadRequest
	}
	logger := logging.Component(h.Logger, "rest")
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, rpc.ErrorResponse{Error: rpc.ErrorMessage(err)})
}

type badRequest struct{ err error }

func (b *badRequest) Error() string { return "invalid multipart form: " + b.err.Error() }
func (b *badRequest) Unwrap() error { return b.err }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
