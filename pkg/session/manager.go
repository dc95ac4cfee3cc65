package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cephview/cephview/pkg/overlay"
)

// Manager owns every live session and its overlay registry.
type Manager struct {
	mu sync.RWMutex

	// All sessions by ID
	sessions map[string]*Session

	// Session count per IP address
	sessionsByIP map[string]int

	config Config
	logger *slog.Logger

	stats Stats

	// Clock and ID source; overridable for tests.
	now   func() time.Time
	newID func() string

	// Lifecycle
	done    chan struct{}
	loopWG  sync.WaitGroup
	stopped bool
}

// Config configures the session manager.
type Config struct {
	// MaxSessions is the maximum number of live sessions. 0 means unlimited.
	// Default: 10000.
	MaxSessions int

	// MaxSessionsPerIP is the maximum number of live sessions per client IP.
	// 0 means unlimited.
	// Default: 100.
	MaxSessionsPerIP int

	// IdleTimeout is how long a session may go without access before it is
	// ended. 0 disables idle expiry.
	// Default: 30 minutes.
	IdleTimeout time.Duration

	// CleanupInterval is how often idle sessions are swept.
	// Default: 1 minute.
	CleanupInterval time.Duration

	// EvictionPolicy determines what happens when MaxSessions is reached.
	// Default: EvictionLRU.
	EvictionPolicy EvictionPolicy

	// RegistryOptions are applied to every new session's registry.
	RegistryOptions []overlay.Option

	// OnStart is called after a session is created.
	OnStart func(*Session)

	// OnEnd is called after a session has ended, outside the manager lock.
	OnEnd func(*Session, EndReason)
}

// EvictionPolicy determines how the manager makes room for new sessions.
type EvictionPolicy int

const (
	// EvictionLRU ends the least recently active session.
	EvictionLRU EvictionPolicy = iota

	// EvictionNone rejects new sessions with ErrMaxSessionsReached.
	EvictionNone
)

// Stats are cumulative session counters.
type Stats struct {
	Active       int
	Peak         int
	TotalCreated int64
	TotalEnded   int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessions:      10000,
		MaxSessionsPerIP: 100,
		IdleTimeout:      30 * time.Minute,
		CleanupInterval:  1 * time.Minute,
		EvictionPolicy:   EvictionLRU,
	}
}

// Error types for session management.
var (
	// ErrTooManySessionsFromIP is returned when the per-IP session limit is exceeded.
	ErrTooManySessionsFromIP = errors.New("too many sessions from this IP address")

	// ErrMaxSessionsReached is returned when the session limit is reached
	// and eviction is disabled.
	ErrMaxSessionsReached = errors.New("maximum session limit reached")

	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrManagerStopped is returned when operations are attempted on a stopped manager.
	ErrManagerStopped = errors.New("session manager is stopped")
)

// NewManager creates a session manager and starts its idle sweep.
func NewManager(config Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	m := &Manager{
		sessions:     make(map[string]*Session),
		sessionsByIP: make(map[string]int),
		config:       config,
		logger:       logger.With("component", "session_manager"),
		now:          time.Now,
		newID:        uuid.NewString,
		done:         make(chan struct{}),
	}

	m.loopWG.Add(1)
	go m.cleanupLoop()

	return m
}

// Create starts a new session with an empty overlay registry.
func (m *Manager) Create(ip string) (*Session, error) {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}

	if m.config.MaxSessionsPerIP > 0 && m.sessionsByIP[ip] >= m.config.MaxSessionsPerIP {
		m.mu.Unlock()
		return nil, ErrTooManySessionsFromIP
	}

	var evicted *Session
	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		if m.config.EvictionPolicy != EvictionLRU {
			m.mu.Unlock()
			return nil, ErrMaxSessionsReached
		}
		evicted = m.leastRecentlyActiveLocked()
		if evicted == nil {
			m.mu.Unlock()
			return nil, ErrMaxSessionsReached
		}
		m.removeLocked(evicted)
	}

	now := m.now()
	sess := newSession(m.newID(), ip, now, m.config.RegistryOptions)
	m.sessions[sess.ID] = sess
	m.sessionsByIP[ip]++

	m.stats.TotalCreated++
	if len(m.sessions) > m.stats.Peak {
		m.stats.Peak = len(m.sessions)
	}

	m.logger.Debug("session created",
		"session_id", sess.ID,
		"ip", ip,
		"ip_session_count", m.sessionsByIP[ip])

	m.mu.Unlock()

	if evicted != nil {
		m.finish(evicted, EndEvicted)
	}
	if m.config.OnStart != nil {
		m.config.OnStart(sess)
	}
	return sess, nil
}

// Get returns the session with the given ID and marks it active.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, ErrManagerStopped
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(m.now())
	return sess, nil
}

// Touch marks the session active without returning it. It reports whether
// the session exists.
func (m *Manager) Touch(id string) bool {
	_, err := m.Get(id)
	return err == nil
}

// End ends the session with the given ID and discards its registry.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	m.removeLocked(sess)
	m.mu.Unlock()

	m.finish(sess, EndExplicit)
	return nil
}

// List returns all live sessions in no particular order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Stats returns the session counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.Active = len(m.sessions)
	return stats
}

// Shutdown stops the idle sweep and ends every session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.done)

	ended := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		ended = append(ended, sess)
	}
	for _, sess := range ended {
		m.removeLocked(sess)
	}
	m.mu.Unlock()

	for _, sess := range ended {
		m.finish(sess, EndShutdown)
	}

	waited := make(chan struct{})
	go func() {
		m.loopWG.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.logger.Info("session manager stopped", "ended", len(ended))
	return nil
}

// removeLocked unlinks a session from the manager's indexes.
func (m *Manager) removeLocked(sess *Session) {
	delete(m.sessions, sess.ID)

	m.sessionsByIP[sess.IP]--
	if m.sessionsByIP[sess.IP] <= 0 {
		delete(m.sessionsByIP, sess.IP)
	}
	m.stats.TotalEnded++
}

// finish closes the session's done channel and fires OnEnd.
func (m *Manager) finish(sess *Session, reason EndReason) {
	close(sess.done)

	m.logger.Debug("session ended",
		"session_id", sess.ID,
		"reason", reason.String(),
		"images", sess.registry.Len())

	if m.config.OnEnd != nil {
		m.config.OnEnd(sess, reason)
	}
}

func (m *Manager) leastRecentlyActiveLocked() *Session {
	var oldest *Session
	for _, sess := range m.sessions {
		if oldest == nil || sess.lastActive.Load() < oldest.lastActive.Load() {
			oldest = sess
		}
	}
	return oldest
}

// cleanupLoop periodically ends idle sessions.
func (m *Manager) cleanupLoop() {
	defer m.loopWG.Done()

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupIdle()
		case <-m.done:
			return
		}
	}
}

// cleanupIdle ends sessions that exceeded IdleTimeout and have no attached
// viewer.
func (m *Manager) cleanupIdle() {
	if m.config.IdleTimeout <= 0 {
		return
	}

	cutoff := m.now().Add(-m.config.IdleTimeout).UnixNano()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	var expired []*Session
	for _, sess := range m.sessions {
		if sess.viewers.Load() == 0 && sess.lastActive.Load() < cutoff {
			expired = append(expired, sess)
		}
	}
	for _, sess := range expired {
		m.removeLocked(sess)
	}
	m.mu.Unlock()

	for _, sess := range expired {
		m.finish(sess, EndIdle)
	}
	if len(expired) > 0 {
		m.logger.Info("ended idle sessions", "count", len(expired))
	}
}
