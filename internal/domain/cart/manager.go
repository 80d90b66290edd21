// internal/domain/cart/manager.go
package cart

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-cart/internal/config"
	"github.com/your-org/storefront-cart/internal/pkg/notify"
)

// Session pairs one storefront session's orchestrator with the collector
// holding its undelivered notifications.
type Session struct {
	Orchestrator *Orchestrator
	Notices      *notify.Collector

	lastSeen time.Time
}

// Manager hands out one orchestrator per storefront session id, creating
// them lazily and evicting idle ones. Keeping the one-shot merge guard and
// coupon debouncer inside per-session instances (instead of process-wide
// state) is what lets tests run independent carts side by side.
type Manager struct {
	guest    *GuestStore
	gateway  Gateway
	logger   *logrus.Logger
	cartCfg  config.CartConfig
	baseSink notify.Notifier

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. baseSink receives every
// notification in addition to the per-session collector.
func NewManager(guest *GuestStore, gateway Gateway, baseSink notify.Notifier, logger *logrus.Logger, cartCfg config.CartConfig) *Manager {
	return &Manager{
		guest:    guest,
		gateway:  gateway,
		logger:   logger,
		cartCfg:  cartCfg,
		baseSink: baseSink,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for the given id, creating it on first touch.
func (m *Manager) Get(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictIdleLocked()

	if s, ok := m.sessions[sessionID]; ok {
		s.lastSeen = time.Now()
		return s
	}

	collector := notify.NewCollector()
	sink := notify.Multi{collector, m.baseSink}
	s := &Session{
		Orchestrator: NewOrchestrator(sessionID, m.guest, m.gateway, sink, m.logger, m.cartCfg),
		Notices:      collector,
		lastSeen:     time.Now(),
	}
	m.sessions[sessionID] = s
	return s
}

// evictIdleLocked drops sessions idle past the configured TTL. Caller holds
// the lock.
func (m *Manager) evictIdleLocked() {
	if m.cartCfg.SessionIdleTTL <= 0 {
		return
	}
	cutoff := time.Now().Add(-m.cartCfg.SessionIdleTTL)
	for id, s := range m.sessions {
		if s.lastSeen.Before(cutoff) {
			s.Orchestrator.Close()
			delete(m.sessions, id)
		}
	}
}

// Close disposes every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		s.Orchestrator.Close()
		delete(m.sessions, id)
	}
}
