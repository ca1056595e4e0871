package conversations

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	logx "github.com/frerescollection/shopbot/pkg/logger"
)

// SessionManager owns the in-memory copy of every active session, backed by a
// durable repository, and serializes turns per sender.
type SessionManager struct {
	repo   model.SessionRepository
	idle   time.Duration
	now    func() time.Time
	shared bool

	mu    sync.Mutex
	locks map[string]*senderLock
	hot   map[string]*model.Session
}

type senderLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*SessionManager)

func WithClock(now func() time.Time) Option {
	return func(m *SessionManager) { m.now = now }
}

// WithSharedRepository marks the repository as shared with other replicas. A
// warm copy is then checked against the stored one on every Load and the newer
// of the two wins.
func WithSharedRepository() Option {
	return func(m *SessionManager) { m.shared = true }
}

func NewSessionManager(repo model.SessionRepository, config model.SessionConfig, opts ...Option) *SessionManager {
	m := &SessionManager{
		repo:  repo,
		idle:  config.IdleTimeout,
		now:   time.Now,
		locks: make(map[string]*senderLock),
		hot:   make(map[string]*model.Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Lock blocks until no other turn for senderID is running. The returned
// function releases the lock.
func (m *SessionManager) Lock(senderID string) func() {
	m.mu.Lock()
	l, ok := m.locks[senderID]
	if !ok {
		l = &senderLock{}
		m.locks[senderID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, senderID)
		}
		m.mu.Unlock()
	}
}

// Load returns the session for senderID: the in-memory copy when warm, else the
// durable copy, else a fresh start session. Expired copies are discarded.
// The caller owns the returned value until Save.
func (m *SessionManager) Load(ctx context.Context, senderID string) (*model.Session, error) {
	now := m.now()

	m.mu.Lock()
	s, ok := m.hot[senderID]
	if ok && s.Expired(now, m.idle) {
		delete(m.hot, senderID)
		ok = false
		logx.Debug().Str("sender_id", senderID).Msg("in-memory session expired")
	}
	m.mu.Unlock()
	if ok && !m.shared {
		return s.Clone(), nil
	}

	stored, err := m.repo.Load(ctx, senderID)
	if ok {
		return m.fresher(senderID, s, stored, err), nil
	}
	switch {
	case err == nil:
		logx.Debug().Str("sender_id", senderID).Str("state", string(stored.State)).Msg("session hydrated")
		return stored, nil
	case errors.Is(err, errx.ErrNotFound):
		return model.NewSession(senderID, now), nil
	default:
		logx.Error().Err(err).Str("sender_id", senderID).Msg("failed to hydrate session")
		return nil, err
	}
}

// fresher picks between the warm copy and what the shared repository returned.
func (m *SessionManager) fresher(senderID string, warm, stored *model.Session, err error) *model.Session {
	switch {
	case err == nil && stored.LastActivity.After(warm.LastActivity):
		logx.Debug().Str("sender_id", senderID).Msg("stored session is newer than warm copy")
		m.mu.Lock()
		m.hot[senderID] = stored.Clone()
		m.mu.Unlock()
		return stored
	case err != nil && !errors.Is(err, errx.ErrNotFound):
		logx.Warn().Err(err).Str("sender_id", senderID).Msg("serving warm session copy; repository read failed")
	}
	return warm.Clone()
}

// Save stamps the activity time, keeps the copy warm and writes it through.
// The in-memory copy is updated even when the durable write fails.
func (m *SessionManager) Save(ctx context.Context, s *model.Session) error {
	s.LastActivity = m.now()
	s.Normalize()

	m.mu.Lock()
	m.hot[s.SenderID] = s.Clone()
	m.mu.Unlock()

	if err := m.repo.Save(ctx, s); err != nil {
		logx.Error().Err(err).Str("sender_id", s.SenderID).Msg("failed to persist session")
		return err
	}
	return nil
}

// Sweep drops idle sessions from memory and from the repository.
func (m *SessionManager) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	cutoff := now.Add(-m.idle)

	m.mu.Lock()
	evicted := 0
	for id, s := range m.hot {
		if s.Expired(now, m.idle) {
			delete(m.hot, id)
			evicted++
		}
	}
	m.mu.Unlock()

	removed, err := m.repo.DeleteIdleBefore(ctx, cutoff)
	logx.Info().
		Int("evicted", evicted).
		Int("removed", removed).
		Time("cutoff", cutoff).
		Msg("session sweep")
	if err != nil {
		return evicted, err
	}
	return evicted + removed, nil
}

// Active reports how many sessions are held in memory.
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hot)
}
