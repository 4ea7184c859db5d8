package router

import (
	"sync"
	"time"

	"github.com/gabrielmiguelok/optoconsent/pkg/core"
	"github.com/gabrielmiguelok/optoconsent/pkg/transport"
)

// LiveViewSession binds a mounted component to its websocket.
type LiveViewSession struct {
	// ID equals the socket id.
	ID string

	Component core.Component
	Socket    *core.Socket
	Transport transport.Transport

	Params  core.Params
	Session core.Session

	// Route is the path pattern the session was opened on.
	Route string

	CreatedAt time.Time

	lastActivity time.Time
	mounted      bool
	version      uint64
	lastHash     uint64
	reason       core.TerminateReason
	mu           sync.RWMutex
}

// NewLiveViewSession creates a session record for an open socket.
func NewLiveViewSession(socket *core.Socket, comp core.Component, params core.Params, session core.Session) *LiveViewSession {
	now := time.Now()
	return &LiveViewSession{
		ID:           socket.ID(),
		Component:    comp,
		Socket:       socket,
		Params:       params,
		Session:      session,
		CreatedAt:    now,
		lastActivity: now,
	}
}

// UpdateActivity records a client message.
func (s *LiveViewSession) UpdateActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
	s.Socket.UpdateActivity()
}

// LastActivity returns when the client last sent anything.
func (s *LiveViewSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// SetMounted marks the component as mounted.
func (s *LiveViewSession) SetMounted(mounted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounted = mounted
}

// IsMounted reports whether the component has been mounted.
func (s *LiveViewSession) IsMounted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mounted
}

// nextRender records the hash of a fresh render. It returns the version to
// send, or false when the output is unchanged.
func (s *LiveViewSession) nextRender(hash uint64, force bool) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && hash == s.lastHash {
		return s.version, false
	}
	s.lastHash = hash
	s.version++
	return s.version, true
}

// close records why the session ends and closes its socket. The session
// loop notices the closed transport and terminates the component.
func (s *LiveViewSession) close(reason core.TerminateReason) {
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
	s.Socket.Close()
}

func (s *LiveViewSession) closeReason() core.TerminateReason {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// LiveViewSessionManager tracks all open live sessions.
type LiveViewSessionManager struct {
	sessions map[string]*LiveViewSession

	// maxSessions bounds concurrent sessions (0 = unlimited).
	maxSessions int

	// sessionTTL is how long a session may stay silent before it is closed.
	sessionTTL time.Duration

	mu sync.RWMutex
}

// SessionManagerConfig configures the session manager.
type SessionManagerConfig struct {
	MaxSessions int
	SessionTTL  time.Duration
}

// DefaultSessionManagerConfig suits a handful of kiosks. Clients heartbeat
// every 30 seconds, so a silent session is a dead browser.
func DefaultSessionManagerConfig() SessionManagerConfig {
	return SessionManagerConfig{
		MaxSessions: 64,
		SessionTTL:  5 * time.Minute,
	}
}

// NewLiveViewSessionManager creates a manager.
func NewLiveViewSessionManager(config SessionManagerConfig) *LiveViewSessionManager {
	return &LiveViewSessionManager{
		sessions:    make(map[string]*LiveViewSession),
		maxSessions: config.MaxSessions,
		sessionTTL:  config.SessionTTL,
	}
}

// Add registers s. When the manager is full the least recently active
// session is removed and returned so the caller can close it.
func (m *LiveViewSessionManager) Add(s *LiveViewSession) (evicted *LiveViewSession) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		evicted = m.evictOldestLocked()
	}
	m.sessions[s.ID] = s
	return evicted
}

// Get obtains a session by ID.
func (m *LiveViewSessionManager) Get(id string) (*LiveViewSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove unregisters a session.
func (m *LiveViewSessionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Count returns the number of open sessions.
func (m *LiveViewSessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Capacity returns the session limit, 0 meaning unlimited.
func (m *LiveViewSessionManager) Capacity() int {
	return m.maxSessions
}

// All returns every open session.
func (m *LiveViewSessionManager) All() []*LiveViewSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*LiveViewSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}

// Expired removes and returns sessions silent for longer than the TTL.
func (m *LiveViewSessionManager) Expired(now time.Time) []*LiveViewSession {
	if m.sessionTTL <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*LiveViewSession
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity()) > m.sessionTTL {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	return expired
}

// evictOldestLocked removes the least recently active session.
func (m *LiveViewSessionManager) evictOldestLocked() *LiveViewSession {
	var oldest *LiveViewSession
	for _, s := range m.sessions {
		if oldest == nil || s.LastActivity().Before(oldest.LastActivity()) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(m.sessions, oldest.ID)
	}
	return oldest
}
