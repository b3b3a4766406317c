package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager keeps live sessions by id and evicts idle ones. Evicted sessions lose only
// their checkout state; carts and wishlists stay persisted.
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	deps        Deps
	idleTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

func NewManager(deps Deps, idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		deps:        deps,
		idleTimeout: idleTimeout,
		now:         time.Now,
		logger:      deps.Logger.With("component", "session_manager"),
	}
}

// Acquire returns the session for id, creating it when id is empty or unknown.
// The returned id is the one to hand back to the client.
func (m *Manager) Acquire(ctx context.Context, id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := m.Get(id); ok {
		s.touch(m.now())
		return s
	}

	// hydrating reads storage, so the session is built without holding the lock
	created := New(ctx, id, m.deps)

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = created
		m.sessions[id] = s
	}
	m.mu.Unlock()

	if !ok {
		m.logger.DebugContext(ctx, "session created", "session_id", id)
	}
	s.touch(m.now())
	return s
}

// Get returns a live session without creating one.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the idle timeout and returns how many it removed.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for id, s := range m.sessions {
		if s.idleSince(now) > m.idleTimeout && !s.busy() {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.DebugContext(ctx, "evicted idle sessions", "count", n, "live", m.Len())
			}
		}
	}
}
