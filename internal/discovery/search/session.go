package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/cafescout/internal/discovery/domain"
	"github.com/example/cafescout/internal/discovery/geofix"
	"github.com/example/cafescout/internal/notify"
)

// CameraRecorder implements the viewport controller by recording the most
// recent fly-to intent for the client to poll.
type CameraRecorder struct {
	mu   sync.Mutex
	last *domain.CameraIntent
}

// FlyTo satisfies domain.ViewportController.
func (c *CameraRecorder) FlyTo(center domain.GeoPoint, zoom int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = &domain.CameraIntent{Center: center, Zoom: zoom, Duration: duration}
}

// Last returns the pending intent, or nil.
func (c *CameraRecorder) Last() *domain.CameraIntent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Session bundles the per-client coordinator, acquirer and side-effect
// recorders.
type Session struct {
	ID            uuid.UUID
	Coordinator   *Coordinator
	Acquirer      *geofix.Acquirer
	Camera        *CameraRecorder
	Notifications *notify.MemorySink

	cleanup  func()
	lastSeen time.Time
}

// SetCleanup registers extra teardown run when the session closes.
func (s *Session) SetCleanup(fn func()) { s.cleanup = fn }

func (s *Session) close() {
	if s.Coordinator != nil {
		s.Coordinator.Close()
	}
	if s.Acquirer != nil {
		s.Acquirer.Cancel()
	}
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Factory builds a fully wired session for a fresh id.
type Factory func(id uuid.UUID) (*Session, error)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("search session not found")

// Manager owns the live search sessions and expires the idle ones.
type Manager struct {
	factory Factory
	ttl     time.Duration
	clock   domain.Clock
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

// NewManager constructs a manager. ttl bounds session idleness.
func NewManager(factory Factory, ttl time.Duration, clock domain.Clock, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		factory:  factory,
		ttl:      ttl,
		clock:    clock,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create registers a new session.
func (m *Manager) Create() (*Session, error) {
	id := uuid.New()
	session, err := m.factory(id)
	if err != nil {
		return nil, err
	}
	session.ID = id
	session.lastSeen = m.clock.Now()

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()
	activeSessions.Inc()
	return session, nil
}

// Get returns a session and refreshes its idle deadline.
func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.lastSeen = m.clock.Now()
	return session, nil
}

// Close tears one session down.
func (m *Manager) Close(id uuid.UUID) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	session.close()
	activeSessions.Dec()
	return nil
}

// Run sweeps idle sessions until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return ctx.Err()
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	cutoff := m.clock.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*Session
	for id, session := range m.sessions {
		if session.lastSeen.Before(cutoff) {
			expired = append(expired, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range expired {
		session.close()
		activeSessions.Dec()
		m.logger.Debug("expired idle search session", zap.String("session_id", session.ID.String()))
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, session := range m.sessions {
		sessions = append(sessions, session)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, session := range sessions {
		session.close()
		activeSessions.Dec()
	}
}
