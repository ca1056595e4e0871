package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/frerescollection/shopbot/internal/agent/model"
	errx "github.com/frerescollection/shopbot/internal/core/error"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

type RedisSessionRepository struct {
	rdb  redis.Cmdable
	idle time.Duration
	now  func() time.Time
}

func NewRedisSessionRepository(rdb redis.Cmdable, idle time.Duration, opts ...Option) *RedisSessionRepository {
	o := collect(opts)
	return &RedisSessionRepository{rdb: rdb, idle: idle, now: o.now}
}

func (r *RedisSessionRepository) sessionKey(senderID string) string {
	return sessionKeyPrefix + senderID
}

func (r *RedisSessionRepository) Load(ctx context.Context, senderID string) (*model.Session, error) {
	key := r.sessionKey(senderID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		}
		return nil, errx.WrapRedis(err)
	}

	var s model.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("discarding unreadable session")
		if err := r.Delete(ctx, senderID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("session %s unreadable: %w", senderID, errx.ErrNotFound)
	}
	if s.Expired(r.now(), r.idle) {
		if err := r.Delete(ctx, senderID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("session %s expired: %w", senderID, errx.ErrNotFound)
	}
	s.Normalize()
	return &s, nil
}

func (r *RedisSessionRepository) Save(ctx context.Context, s *model.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		logx.Error().Err(err).Str("sender_id", s.SenderID).Msg("failed to marshal session")
		return fmt.Errorf("marshal session: %w", err)
	}
	key := r.sessionKey(s.SenderID)

	// TTL refreshed on every write
	if err := r.rdb.Set(ctx, key, b, r.idle).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisSessionRepository) Delete(ctx context.Context, senderID string) error {
	key := r.sessionKey(senderID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// DeleteIdleBefore scans session keys and removes those idle since before cutoff.
// Keys normally expire through their TTL; this catches copies written without one.
func (r *RedisSessionRepository) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			logx.Error().Err(err).Msg("failed to scan sessions")
			return removed, errx.WrapRedis(err)
		}
		for _, key := range keys {
			raw, err := r.rdb.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var s model.Session
			if err := json.Unmarshal(raw, &s); err != nil || s.LastActivity.Before(cutoff) {
				if err := r.Delete(ctx, strings.TrimPrefix(key, sessionKeyPrefix)); err != nil {
					return removed, err
				}
				removed++
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
