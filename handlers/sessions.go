package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"consultation-desk/app"
	"consultation-desk/monitoring"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("desk session not found")

const DefaultSessionIdleTimeout = 30 * time.Minute

type session struct {
	app      *app.App
	lastSeen time.Time
}

// Sessions is the in-memory registry of open desk sessions. A session not
// touched for the idle timeout is treated as closed and evicted.
type Sessions struct {
	newApp func() *app.App
	idle   time.Duration
	now    func() time.Time

	mu    sync.Mutex
	items map[string]*session
}

type SessionOption func(*Sessions)

func WithIdleTimeout(d time.Duration) SessionOption {
	return func(s *Sessions) {
		if d > 0 {
			s.idle = d
		}
	}
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *Sessions) { s.now = now }
}

func NewSessions(newApp func() *app.App, opts ...SessionOption) *Sessions {
	s := &Sessions{
		newApp: newApp,
		idle:   DefaultSessionIdleTimeout,
		now:    time.Now,
		items:  make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a session on the dashboard and loads the current month.
func (s *Sessions) Create(ctx context.Context) (string, *app.App) {
	a := s.newApp()
	id := uuid.NewString()

	s.mu.Lock()
	s.items[id] = &session{app: a, lastSeen: s.now()}
	s.mu.Unlock()
	monitoring.WizardSessions.Inc()

	a.List().Load(ctx)
	return id, a
}

// Get returns a live session and marks it as used.
func (s *Sessions) Get(id string) (*app.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	now := s.now()
	if s.expired(entry, now) {
		s.evict(id)
		return nil, ErrSessionNotFound
	}
	entry.lastSeen = now
	return entry.app, nil
}

func (s *Sessions) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrSessionNotFound
	}
	s.evict(id)
	return nil
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep evicts every idle session and returns how many it removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, entry := range s.items {
		if s.expired(entry, now) {
			s.evict(id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Sessions) RunSweeper(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				logger.Info("Evicted idle desk sessions", zap.Int("count", n))
			}
		}
	}
}

// ReloadAll refreshes the list of every live session. Idle sessions are
// skipped; they are not marked as used.
func (s *Sessions) ReloadAll(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	apps := make([]*app.App, 0, len(s.items))
	for _, entry := range s.items {
		if !s.expired(entry, now) {
			apps = append(apps, entry.app)
		}
	}
	s.mu.Unlock()

	for _, a := range apps {
		a.Reload(ctx)
	}
}

func (s *Sessions) expired(entry *session, now time.Time) bool {
	return now.Sub(entry.lastSeen) >= s.idle
}

// evict is called with s.mu held.
func (s *Sessions) evict(id string) {
	delete(s.items, id)
	monitoring.WizardSessions.Dec()
}
