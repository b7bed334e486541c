package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/animus-coder/codesmith/internal/agent"
	"github.com/animus-coder/codesmith/internal/extract"
	"github.com/animus-coder/codesmith/internal/logging"
	"github.com/animus-coder/codesmith/internal/observability"
	"github.com/animus-coder/codesmith/internal/tools"
)

// ErrCodeReaderDisabled is returned when code files are uploaded to a
// session whose agent cannot read them.
var ErrCodeReaderDisabled = errors.New("code reader is not enabled for this session")

// Upload is one file received from a client.
type Upload struct {
	Name string
	Body io.Reader
}

// ToolFactory builds document-backed tools.
type ToolFactory interface {
	Build(ctx context.Context, files []string, name, description string) (tools.Tool, error)
}

// AgentBuilder builds agents from a tool selection.
type AgentBuilder interface {
	Build(selected []tools.Tool) (*agent.Agent, error)
}

// Observer receives progress while a generation runs. Both callbacks are optional.
type Observer struct {
	OnStep   agent.StepObserver
	OnNotice func(extract.Notice)
}

// Selection names the tools to bind, either by name or by registry id.
// Names shared by several tools can only be selected by id.
type Selection struct {
	Names []string
	IDs   []int
}

// AgentInfo describes the agent bound into a session.
type AgentInfo struct {
	Tools             []string `json:"tools"`
	IDs               []int    `json:"ids"`
	CodeReaderEnabled bool     `json:"code_reader_enabled"`
}

// Service performs user actions against sessions.
type Service struct {
	Manager        *Manager
	Factory        ToolFactory
	Builder        AgentBuilder
	Extractor      *extract.Extractor
	MaxUploadBytes int64
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	return logging.Component(s.Logger, "session")
}

// StageFiles stores document uploads for a later CreateTool call and returns
// their staged names.
func (s *Service) StageFiles(id string, uploads []Upload) ([]string, error) {
	st, err := s.Manager.Get(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return s.stage(st.docs, uploads)
}

// CreateTool builds a tool from staged documents and appends it to the
// session registry. The registry is unchanged on failure.
func (s *Service) CreateTool(ctx context.Context, id, name, description string, staged []string) (tools.ToolInfo, error) {
	st, err := s.Manager.Get(id)
	if err != nil {
		return tools.ToolInfo{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	paths := make([]string, 0, len(staged))
	for _, n := range staged {
		p, err := st.docs.Resolve(n)
		if err != nil {
			return tools.ToolInfo{}, tools.Configuration("build tool", "%v", err)
		}
		paths = append(paths, p)
	}

	t, err := s.Factory.Build(ctx, paths, name, description)
	if err != nil {
		return tools.ToolInfo{}, err
	}
	info := tools.Describe(t)
	info.ID = st.registry.Register(t)
	s.logger().Info("tool registered", zap.String("session_id", id), zap.String("tool", name), zap.Int("tool_id", info.ID))
	return info, nil
}

// Tools lists the session registry.
func (s *Service) Tools(id string) ([]tools.ToolInfo, error) {
	st, err := s.Manager.Get(id)
	if err != nil {
		return nil, err
	}
	return st.registry.Infos(), nil
}

// CreateAgent binds the selected tools into a new agent, replacing any
// previous one. A failed build leaves the previous agent in place.
func (s *Service) CreateAgent(ctx context.Context, id string, sel Selection) (AgentInfo, error) {
	st, err := s.Manager.Get(id)
	if err != nil {
		return AgentInfo{}, err
	}
	switch {
	case len(sel.Names) == 0 && len(sel.IDs) == 0:
		return AgentInfo{}, tools.Configuration("build agent", "select at least one tool")
	case len(sel.Names) > 0 && len(sel.IDs) > 0:
		return AgentInfo{}, tools.Configuration("build agent", "select tools by name or by id, not both")
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	var entries []tools.Entry
	if len(sel.IDs) > 0 {
		entries, err = st.registry.Select(sel.IDs)
	} else {
		entries, err = st.registry.Lookup(sel.Names)
	}
	if err != nil {
		return AgentInfo{}, err
	}
	selected := tools.EntryTools(entries)
	a, err := s.Builder.Build(selected)
	if err != nil {
		return AgentInfo{}, err
	}

	st.agent = a
	st.codeReaderEnabled = agent.CodeReaderSelected(selected)

	info := AgentInfo{
		Tools:             make([]string, 0, len(entries)),
		IDs:               make([]int, 0, len(entries)),
		CodeReaderEnabled: st.codeReaderEnabled,
	}
	for _, e := range entries {
		info.Tools = append(info.Tools, e.Tool.Name())
		info.IDs = append(info.IDs, e.ID)
	}
	return info, nil
}

// StageCodeFiles stores code files for the code reader. It is refused unless
// the current agent has the code reader bound.
func (s *Service) StageCodeFiles(id string, uploads []Upload) ([]string, error) {
	st, err := s.Manager.Get(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.codeReaderEnabled {
		return nil, ErrCodeReaderDisabled
	}
	return s.stage(st.code, uploads)
}

// CheckGenerate reports the errors Generate would fail with before doing any
// work, so transports can reject a request before they start streaming.
func (s *Service) CheckGenerate(id, prompt string) error {
	st, err := s.Manager.Get(id)
	if err != nil {
		return err
	}
	if st.Agent() == nil {
		return tools.Configuration("generate", "create an agent first")
	}
	if strings.TrimSpace(prompt) == "" {
		return tools.Configuration("generate", "prompt is required")
	}
	return nil
}

// Generate runs the agent on prompt and extracts a CodeOutput from its answer.
// Each attempt queries the agent again; failed attempts are reported through
// obs and the last failure ends in an *extract.ExtractionError.
func (s *Service) Generate(ctx context.Context, id, prompt string, obs Observer) (out extract.CodeOutput, err error) {
	st, err := s.Manager.Get(id)
	if err != nil {
		return extract.CodeOutput{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.agent == nil {
		return extract.CodeOutput{}, tools.Configuration("generate", "create an agent first")
	}
	if strings.TrimSpace(prompt) == "" {
		return extract.CodeOutput{}, tools.Configuration("generate", "prompt is required")
	}

	logger := s.logger().With(zap.String("session_id", id))
	start := time.Now()
	defer func() {
		s.Metrics.RecordGenerate(err, time.Since(start))
		if err != nil {
			logger.Warn("generate failed", zap.Error(err), zap.Duration("took", time.Since(start)))
			return
		}
		logger.Info("generate finished", zap.String("filename", out.Filename), zap.Duration("took", time.Since(start)))
	}()

	a := st.agent
	onNotice := func(n extract.Notice) {
		logger.Warn("generate attempt failed", zap.Int("attempt", n.Attempt), zap.String("error", n.Err))
		if obs.OnNotice != nil {
			obs.OnNotice(n)
		}
	}
	return extract.Retry(ctx, s.Extractor.MaxAttempts(), func(ctx context.Context) (extract.CodeOutput, error) {
		resp, err := a.Query(ctx, prompt, obs.OnStep)
		if err != nil {
			return extract.CodeOutput{}, err
		}
		return s.Extractor.ExtractOnce(ctx, resp.Answer)
	}, onNotice)
}

func (s *Service) stage(fsys *tools.Filesystem, uploads []Upload) ([]string, error) {
	if len(uploads) == 0 {
		return nil, tools.Configuration("upload", "at least one file is required")
	}
	names := make([]string, 0, len(uploads))
	for _, u := range uploads {
		name, err := tools.StagedName(u.Name)
		if err != nil {
			return nil, tools.Configuration("upload", "%v", err)
		}
		if _, err := fsys.WriteFile(name, u.Body, s.MaxUploadBytes); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}
