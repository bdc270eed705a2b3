package view

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/babbling-brook/streambed/frontend/internal/compose"
	"github.com/babbling-brook/streambed/frontend/internal/metrics"
	"github.com/babbling-brook/streambed/frontend/internal/notify"
	"github.com/babbling-brook/streambed/frontend/internal/post"
	"github.com/babbling-brook/streambed/shared/config"
	"github.com/babbling-brook/streambed/shared/domain"
	"github.com/babbling-brook/streambed/shared/logger"
)

// Deps are shared by every session of a Manager.
type Deps struct {
	Config    config.Public
	Domus     Domus
	Renderer  *post.Renderer
	Taker     *post.Taker
	Composer  *compose.Service
	Publisher Publisher
}

// Manager keeps the open page sessions. Sessions that have not been used for ttl
// are closed by Sweep.
type Manager struct {
	deps Deps
	ttl  time.Duration
	now  func() time.Time
	log  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewManager(deps Deps, ttl time.Duration) *Manager {
	return &Manager{
		deps:     deps,
		ttl:      ttl,
		now:      time.Now,
		log:      logger.Component("view"),
		sessions: make(map[string]*Session),
	}
}

// Open starts a session for one page load. user may be nil for visitors that are
// not logged in; token is forwarded to the domus on their behalf.
func (m *Manager) Open(user *domain.User, token, path string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrSessionNotFound
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       uuid.NewString(),
		User:     user,
		deps:     &m.deps,
		token:    token,
		ctx:      ctx,
		cancel:   cancel,
		cascades: make(map[string]*cascadeEntry),
		deleting: make(map[domain.PostKey]bool),
		lastSeen: m.now(),
	}
	s.log = m.log.With("session", s.ID)
	s.queue = notify.NewQueue(notify.Config{
		BoxChars: m.deps.Config.Messages.BoxChars,
		OnChange: func(b notify.Banner) {
			s.publish(PushMessage{Kind: PushBanner, Banner: &b})
		},
		OnReload: func() {
			s.publish(PushMessage{Kind: PushReload})
		},
	})
	s.queue.SetPath(path)

	m.sessions[s.ID] = s
	metrics.Sessions.Inc()
	s.log.Debug("session opened", "path", path)
	return s, nil
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	s.lastSeen = m.now()
	s.mu.Unlock()
	return s, nil
}

func (m *Manager) CloseSession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	metrics.Sessions.Dec()
	s.close()
	s.log.Debug("session closed")
	return nil
}

// Sweep closes sessions idle for longer than the ttl and returns how many it closed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	var stale []*Session
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := s.lastSeen.Before(cutoff)
		s.mu.Unlock()
		if idle {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		metrics.Sessions.Dec()
		s.close()
	}
	if len(stale) > 0 {
		m.log.Info("expired sessions closed", "count", len(stale))
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Shutdown closes every session. Open after Shutdown fails.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		metrics.Sessions.Dec()
		s.close()
	}
	m.log.Info("all sessions closed", "count", len(sessions))
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
