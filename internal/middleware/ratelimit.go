package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/mwork/socialgraph-api/internal/pkg/logger"
	"github.com/mwork/socialgraph-api/internal/pkg/response"
)

// Limiter decides whether a user may perform one more rate-limited action.
type Limiter interface {
	Allow(ctx context.Context, userID uuid.UUID) bool
}

// RedisLimiter is a fixed-window counter shared by every API replica.
type RedisLimiter struct {
	redis  *redis.Client
	scope  string
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing limit actions per window.
func NewRedisLimiter(client *redis.Client, scope string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{redis: client, scope: scope, limit: limit, window: window}
}

// Allow fails open when Redis is unreachable.
func (rl *RedisLimiter) Allow(ctx context.Context, userID uuid.UUID) bool {
	key := fmt.Sprintf("ratelimit:%s:%s", rl.scope, userID)

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("scope", rl.scope).Msg("rate limiter unavailable, allowing request")
		return true
	}
	if count == 1 {
		rl.redis.Expire(ctx, key, rl.window)
	}
	return count <= int64(rl.limit)
}

// LocalLimiter keeps a token bucket per user in process memory.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[uuid.UUID]*localEntry
	every    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter allows perMinute actions per minute with the given burst.
func NewLocalLimiter(perMinute, burst int) *LocalLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LocalLimiter{
		limiters: make(map[uuid.UUID]*localEntry),
		every:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, userID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[userID]
	if !ok {
		l.evictIdle(now)
		entry = &localEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *LocalLimiter) evictIdle(now time.Time) {
	for id, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.idleTTL {
			delete(l.limiters, id)
		}
	}
}

// NewLimiter picks the shared Redis limiter when a client is configured.
func NewLimiter(client *redis.Client, scope string, perMinute, burst int) Limiter {
	if client != nil {
		return NewRedisLimiter(client, scope, perMinute, time.Minute)
	}
	return NewLocalLimiter(perMinute, burst)
}

// RateLimitPerUser rejects requests beyond the limiter's budget with 429.
// It must run after Auth.
func RateLimitPerUser(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID != uuid.Nil && !limiter.Allow(r.Context(), userID) {
				response.TooManyRequests(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
