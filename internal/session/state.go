package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/animus-coder/codesmith/internal/agent"
	"github.com/animus-coder/codesmith/internal/logging"
	"github.com/animus-coder/codesmith/internal/tools"
)

// ErrNotFound is returned for unknown or ended sessions.
var ErrNotFound = errors.New("session not found")

const (
	docsDir = "docs"
	codeDir = "code"
)

// State is everything one user session owns. Fields are guarded by mu;
// every Service action holds it for its whole duration.
type State struct {
	ID        string
	CreatedAt time.Time

	mu                sync.Mutex
	root              string
	docs              *tools.Filesystem
	code              *tools.Filesystem
	registry          *tools.Registry
	agent             *agent.Agent
	codeReaderEnabled bool
}

// Registry returns the session's tool registry.
func (s *State) Registry() *tools.Registry {
	return s.registry
}

// Agent returns the current agent or nil.
func (s *State) Agent() *agent.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

// CodeReaderEnabled reports whether the current agent can read staged code.
func (s *State) CodeReaderEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codeReaderEnabled
}

// Manager owns all live sessions. Sessions never share state.
type Manager struct {
	dataDir string
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*State
	now      func() time.Time
}

// NewManager stages session files under dataDir/<session id>.
func NewManager(dataDir string, logger *zap.Logger) *Manager {
	return &Manager{
		dataDir:  dataDir,
		logger:   logging.Component(logger, "session"),
		sessions: make(map[string]*State),
		now:      time.Now,
	}
}

// New starts a session whose registry holds only the built-in code reader.
func (m *Manager) New() (*State, error) {
	id := uuid.NewString()
	root := filepath.Join(m.dataDir, id)

	docs, err := tools.NewFilesystem(filepath.Join(root, docsDir), true)
	if err != nil {
		return nil, fmt.Errorf("session storage: %w", err)
	}
	code, err := tools.NewFilesystem(filepath.Join(root, codeDir), true)
	if err != nil {
		return nil, fmt.Errorf("session storage: %w", err)
	}

	st := &State{
		ID:        id,
		CreatedAt: m.now(),
		root:      root,
		docs:      docs,
		code:      code,
		registry:  tools.NewRegistry(tools.NewCodeReader(code)),
	}

	m.mu.Lock()
	m.sessions[id] = st
	m.mu.Unlock()

	m.logger.Info("session started", zap.String("session_id", id))
	return st, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return st, nil
}

// End forgets the session and removes its staged files.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	st, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if err := os.RemoveAll(st.root); err != nil {
		m.logger.Warn("remove session files", zap.String("session_id", id), zap.Error(err))
	}
	m.logger.Info("session ended", zap.String("session_id", id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
