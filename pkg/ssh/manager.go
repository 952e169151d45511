package ssh

import (
	"context"
	"fmt"
	"sync"
)

// Manager manages multiple SSH sessions
type Manager struct {
	trust    *TrustStore
	sessions map[string]*Session
	onEvent  func(Event)
	mu       sync.RWMutex
}

// NewManager creates a new session manager backed by trust.
func NewManager(trust *TrustStore) *Manager {
	return &Manager{
		trust:    trust,
		sessions: make(map[string]*Session),
	}
}

// Trust returns the host key store.
func (m *Manager) Trust() *TrustStore { return m.trust }

// OnEvent registers a listener attached to every session created afterwards.
func (m *Manager) OnEvent(fn func(Event)) {
	m.mu.Lock()
	m.onEvent = fn
	m.mu.Unlock()
}

// Connect returns the live session for config's connection ID, or dials a
// new one.
func (m *Manager) Connect(ctx context.Context, config *SessionConfig) (*Session, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	connectionID := config.ConnectionID()

	m.mu.Lock()
	if s, exists := m.sessions[connectionID]; exists {
		if s.IsConnected() {
			m.mu.Unlock()
			return s, nil
		}
		delete(m.sessions, connectionID)
	}
	onEvent := m.onEvent
	m.mu.Unlock()

	// Dial without the lock: host key approval and password prompts block.
	s := NewSession(config, m.trust)
	if onEvent != nil {
		s.OnEvent(onEvent)
	}
	if err := s.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connection to %s failed: %w", connectionID, err)
	}

	m.mu.Lock()
	m.sessions[connectionID] = s
	m.mu.Unlock()
	return s, nil
}

// RestoreRequest is a remote pane from the saved session.
type RestoreRequest struct {
	Host        string
	Port        int
	Username    string
	Password    string // saved credential, if any
	AgentSocket string
	KeyDir      string
}

// Restore reconnects non-interactively: agent and key files, then the saved
// credential. Nobody can approve a new host key, so unknown keys fail.
func (m *Manager) Restore(ctx context.Context, req RestoreRequest) (*Session, error) {
	return m.Connect(ctx, &SessionConfig{
		Host:        req.Host,
		Port:        req.Port,
		Username:    req.Username,
		Password:    req.Password,
		AgentSocket: req.AgentSocket,
		KeyDir:      req.KeyDir,
	})
}

// Get returns the session for a connection ID
func (m *Manager) Get(connectionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[connectionID]
	if !exists {
		return nil, fmt.Errorf("connection not found: %s", connectionID)
	}
	return s, nil
}

// Disconnect closes a session
func (m *Manager) Disconnect(connectionID string) error {
	m.mu.Lock()
	s, exists := m.sessions[connectionID]
	delete(m.sessions, connectionID)
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("connection not found: %s", connectionID)
	}
	return s.Disconnect()
}

// DisconnectAll closes all sessions
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Disconnect()
	}
}

// ListConnections returns all active connection IDs
func (m *Manager) ListConnections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id, s := range m.sessions {
		if s.IsConnected() {
			ids = append(ids, id)
		}
	}
	return ids
}
