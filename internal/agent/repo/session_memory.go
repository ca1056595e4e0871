package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
)

// MemorySessionRepository keeps sessions in process. Nothing survives a restart.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	idle     time.Duration
	now      func() time.Time
}

func NewMemorySessionRepository(idle time.Duration, opts ...Option) *MemorySessionRepository {
	o := collect(opts)
	return &MemorySessionRepository{
		sessions: make(map[string]*model.Session),
		idle:     idle,
		now:      o.now,
	}
}

func (r *MemorySessionRepository) Load(_ context.Context, senderID string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[senderID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", senderID, errx.ErrNotFound)
	}
	if s.Expired(r.now(), r.idle) {
		delete(r.sessions, senderID)
		return nil, fmt.Errorf("session %s expired: %w", senderID, errx.ErrNotFound)
	}
	return s.Clone(), nil
}

func (r *MemorySessionRepository) Save(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	r.sessions[s.SenderID] = s.Clone()
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, senderID string) error {
	r.mu.Lock()
	delete(r.sessions, senderID)
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

var _ model.SessionRepository = (*MemorySessionRepository)(nil)
