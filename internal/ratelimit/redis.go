package ratelimit

import (
	"context"
	"strconv"
	"time"

	errx "github.com/frerescollection/shopbot/internal/core/error"
	logx "github.com/frerescollection/shopbot/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript trims the sorted set to the window, then records ARGV[3]
// only when fewer than ARGV[2] members remain.
var slidingWindowScript = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local limit  = tonumber(ARGV[2])
local member = ARGV[3]
local window = tonumber(ARGV[4])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
  return 0
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisWindow is the sliding-window limiter shared across bot instances.
type RedisWindow struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisWindow(rdb redis.Scripter, limit int, window time.Duration, opts ...Option) *RedisWindow {
	o := buildOptions(opts)
	return &RedisWindow{
		rdb:    rdb,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
		now:    o.now,
	}
}

func (r *RedisWindow) key(senderID string) string {
	return r.prefix + senderID
}

func (r *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	nowMs := r.now().UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, r.rdb,
		[]string{r.key(key)},
		nowMs, r.limit, member, r.window.Milliseconds(),
	).Int()
	if err != nil {
		logx.Error().Err(err).Str("sender_id", key).Msg("rate limit script failed")
		return false, errx.WrapRedis(err)
	}
	return res == 1, nil
}

var _ Limiter = (*RedisWindow)(nil)
