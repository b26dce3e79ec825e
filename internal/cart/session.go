package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aamircoretechies/bison360-sub000/internal/util"
)

// Session wraps one terminal's cart behind a mutex. Register input is
// serialized per terminal, so no two cart mutations can interleave.
type Session struct {
	mu       sync.Mutex
	cart     *Cart
	lastSeen time.Time
}

// Do runs fn with exclusive access to the session's cart.
func (s *Session) Do(fn func(c *Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return fn(s.cart)
}

// Manager owns the cart sessions keyed by terminal id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *zap.Logger
}

// NewManager creates a session manager. Sessions idle longer than ttl
// are removed by the janitor.
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   util.GetLogger(),
	}
}

// Session returns the session for terminalID, creating it on first use.
func (m *Manager) Session(terminalID string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[terminalID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[terminalID]; ok {
		return s
	}
	s = &Session{cart: New(), lastSeen: time.Now()}
	m.sessions[terminalID] = s
	util.CartSessionsActive.Inc()
	return s
}

// Sweep removes sessions idle longer than the TTL. Sessions with a sale
// mid-payment are left alone.
func (m *Manager) Sweep() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.mu.Lock()
		stale := s.lastSeen.Before(cutoff) && s.cart.State() != StateProcessing
		s.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			util.CartSessionsActive.Dec()
			m.logger.Info("Expired idle cart session", zap.String("terminal_id", id))
		}
	}
}

// RunJanitor sweeps periodically until ctx is cancelled.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
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
