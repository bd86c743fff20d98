package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nekogravitycat/futsal-booking-session/internal/realtime"
	"github.com/nekogravitycat/futsal-booking-session/internal/selection"
)

// BackendFactory returns the platform API client acting for a bearer token.
type BackendFactory func(token string) Backend

type ManagerConfig struct {
	Conn           realtime.Conn
	Backend        BackendFactory
	Location       *time.Location
	SelectionLimit int
	Channels       []string
	IdleTTL        time.Duration
	Logger         zerolog.Logger
}

// Manager owns the live sessions of this process.
type Manager struct {
	cfg ManagerConfig
	log zerolog.Logger
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.SelectionLimit < 1 {
		cfg.SelectionLimit = selection.DefaultLimit
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Manager{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "session.manager").Logger(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session for owner. token is forwarded to the platform API.
func (m *Manager) Create(owner, token string) *Session {
	id := uuid.NewString()
	s := newSession(id, owner, options{
		conn:     m.cfg.Conn,
		backend:  m.cfg.Backend(token),
		loc:      m.cfg.Location,
		limit:    m.cfg.SelectionLimit,
		channels: m.cfg.Channels,
		log:      m.cfg.Logger,
	})
	s.touch(m.now())

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Debug().Str("session", id).Str("owner", owner).Msg("session opened")
	return s
}

// Get returns the session when it exists and belongs to owner.
func (m *Manager) Get(id, owner string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || s.owner != owner {
		return nil, ErrNotFound
	}
	s.touch(m.now())
	return s, nil
}

func (m *Manager) Close(id, owner string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.owner != owner {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	s.Close()
	m.log.Debug().Str("session", id).Msg("session closed")
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the configured TTL and
// returns how many were closed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.cfg.IdleTTL)

	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.log.Info().Int("count", len(idle)).Msg("closed idle sessions")
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is done, then closes the rest.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
