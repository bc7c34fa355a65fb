package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron/v3"

	appLog "sinulogmap/internal/log"
	"sinulogmap/internal/schedule"
	"sinulogmap/internal/venue"
)

// DefaultSweepSpec runs the idle sweep every ten minutes.
const DefaultSweepSpec = "*/10 * * * *"

// Manager owns the live sessions and evicts idle ones on a cron schedule.
type Manager struct {
	store *schedule.Store
	dir   *venue.Directory
	opts  Options
	idle  time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session

	now     func() time.Time
	onEvict []func(id string)
	cron    *cron.Cron
}

// NewManager creates a Manager. idle <= 0 disables eviction.
func NewManager(store *schedule.Store, dir *venue.Directory, opts Options, idle time.Duration) *Manager {
	return &Manager{
		store:    store,
		dir:      dir,
		opts:     opts,
		idle:     idle,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// OnEvict registers a hook called with the id of every evicted session.
func (m *Manager) OnEvict(fn func(id string)) {
	m.mu.Lock()
	m.onEvict = append(m.onEvict, fn)
	m.mu.Unlock()
}

// Get returns a live session and marks it as seen.
func (m *Manager) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

// GetOrCreate returns the session for id, creating a fresh one with a new
// id when id is unknown. created reports whether a new session was made.
func (m *Manager) GetOrCreate(id string) (s *Session, created bool, err error) {
	if s, ok := m.Get(id); ok {
		return s, false, nil
	}
	newID, err := gonanoid.New()
	if err != nil {
		return nil, false, fmt.Errorf("generate session id: %w", err)
	}
	s = New(newID, m.store, m.dir, m.opts)
	s.touch(m.now())

	m.mu.Lock()
	m.sessions[newID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	appLog.Debug("session created", "session", newID, "sessions", n)
	return s, true, nil
}

// Len is the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the configured TTL and
// returns how many were removed.
func (m *Manager) Sweep() int {
	if m.idle <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idle)

	m.mu.Lock()
	var evicted []string
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	hooks := append([]func(string){}, m.onEvict...)
	m.mu.Unlock()

	for _, id := range evicted {
		for _, fn := range hooks {
			fn(id)
		}
	}
	if len(evicted) > 0 {
		appLog.Info("idle sessions evicted", "count", len(evicted), "remaining", m.Len())
	}
	return len(evicted)
}

// Start schedules Sweep with a standard 5-field cron spec.
func (m *Manager) Start(spec string) error {
	if spec == "" {
		spec = DefaultSweepSpec
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { m.Sweep() }); err != nil {
		return fmt.Errorf("invalid session sweep spec %q: %w", spec, err)
	}
	c.Start()
	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	appLog.Info("session sweeper started", "spec", spec, "idle", m.idle)
	return nil
}

// Stop halts the sweeper; the returned context is done once a running
// sweep has finished.
func (m *Manager) Stop() context.Context {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return c.Stop()
}
