package httpapi

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernmail/fern/internal/wizard"
)

// SessionManager keeps one wizard per session ID and evicts sessions
// that have been idle past the TTL.
type SessionManager struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*session
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type session struct {
	wizard   *wizard.Wizard
	lastSeen time.Time
}

// NewSessionManager creates a session manager with the given idle TTL
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		ttl:      ttl,
		sessions: make(map[string]*session),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the eviction sweep
func (m *SessionManager) Start() {
	m.wg.Add(1)
	go m.sweep()
}

// Stop halts the eviction sweep
func (m *SessionManager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// Create registers a wizard and returns its new session ID
func (m *SessionManager) Create(w *wizard.Wizard) string {
	id := uuid.New().String()
	m.mu.Lock()
	m.sessions[id] = &session{wizard: w, lastSeen: time.Now()}
	m.mu.Unlock()
	return id
}

// Get returns the wizard for a session, refreshing its idle timer
func (m *SessionManager) Get(id string) (*wizard.Wizard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	sess.lastSeen = time.Now()
	return sess.wizard, true
}

// Delete removes a session
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) sweep() {
	defer m.wg.Done()

	interval := m.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictIdle(time.Now())
		}
	}
}

func (m *SessionManager) evictIdle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		if now.Sub(sess.lastSeen) > m.ttl {
			sess.wizard.Cancel()
			delete(m.sessions, id)
		}
	}
}
