package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	"google.golang.org/api/iterator"
)

const sessionsCollection = "sesiones"

// sessionDoc stores the session as JSON next to the fields the sweep queries.
type sessionDoc struct {
	State        string    `firestore:"estado"`
	LastActivity time.Time `firestore:"ultima_actividad"`
	Data         string    `firestore:"datos"`
}

type FirestoreSessionRepository struct {
	client *firestore.Client
	idle   time.Duration
	now    func() time.Time
}

func NewFirestoreSessionRepository(client *firestore.Client, idle time.Duration, opts ...Option) *FirestoreSessionRepository {
	o := collect(opts)
	return &FirestoreSessionRepository{client: client, idle: idle, now: o.now}
}

func (r *FirestoreSessionRepository) sessionDoc(senderID string) *firestore.DocumentRef {
	return r.client.Collection(sessionsCollection).Doc(senderID)
}

func (r *FirestoreSessionRepository) Load(ctx context.Context, senderID string) (*model.Session, error) {
	snap, err := r.sessionDoc(senderID).Get(ctx)
	if err != nil {
		return nil, errx.WrapFirestore(err)
	}
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, r.discard(ctx, senderID, err)
	}
	s, err := decodeSession(senderID, doc)
	if err != nil {
		return nil, r.discard(ctx, senderID, err)
	}
	if s.Expired(r.now(), r.idle) {
		if err := r.Delete(ctx, senderID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("session %s expired: %w", senderID, errx.ErrNotFound)
	}
	return s, nil
}

// discard deletes a session document that cannot be decoded so the sender
// starts over instead of failing every turn.
func (r *FirestoreSessionRepository) discard(ctx context.Context, senderID string, cause error) error {
	logx.Error().Err(cause).Str("sender_id", senderID).Msg("discarding unreadable session")
	if err := r.Delete(ctx, senderID); err != nil {
		return err
	}
	return fmt.Errorf("session %s unreadable: %w", senderID, errx.ErrNotFound)
}

func (r *FirestoreSessionRepository) Save(ctx context.Context, s *model.Session) error {
	doc, err := encodeSession(s)
	if err != nil {
		return err
	}
	if _, err := r.sessionDoc(s.SenderID).Set(ctx, doc); err != nil {
		logx.Error().Err(err).Str("sender_id", s.SenderID).Msg("failed to save session to firestore")
		return errx.WrapFirestore(err)
	}
	return nil
}

func (r *FirestoreSessionRepository) Delete(ctx context.Context, senderID string) error {
	if _, err := r.sessionDoc(senderID).Delete(ctx); err != nil {
		logx.Error().Err(err).Str("sender_id", senderID).Msg("failed to delete session from firestore")
		return errx.WrapFirestore(err)
	}
	return nil
}

func (r *FirestoreSessionRepository) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int, error) {
	iter := r.client.Collection(sessionsCollection).
		Where("ultima_actividad", "<", cutoff).
		Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return removed, nil
		}
		if err != nil {
			return removed, errx.WrapFirestore(err)
		}
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return removed, errx.WrapFirestore(err)
		}
		removed++
	}
}

func encodeSession(s *model.Session) (sessionDoc, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return sessionDoc{}, fmt.Errorf("marshal session: %w", err)
	}
	return sessionDoc{
		State:        string(s.State),
		LastActivity: s.LastActivity,
		Data:         string(b),
	}, nil
}

func decodeSession(senderID string, doc sessionDoc) (*model.Session, error) {
	var s model.Session
	if doc.Data != "" {
		if err := json.Unmarshal([]byte(doc.Data), &s); err != nil {
			return nil, fmt.Errorf("unmarshal session: %w", err)
		}
	}
	s.SenderID = senderID
	if s.LastActivity.IsZero() {
		s.LastActivity = doc.LastActivity
	}
	if s.State == "" {
		s.State = model.State(doc.State)
	}
	s.Normalize()
	return &s, nil
}

var _ model.SessionRepository = (*FirestoreSessionRepository)(nil)
