package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/speedwagon-io/soilwatch/internal/lib/logger/sl"
)

// WindowCounter increments the hit counter of key within a fixed window and
// returns the new count and the time left in the window.
type WindowCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RedisCounter is a fixed-window counter kept in Redis.
type RedisCounter struct {
	client redis.Cmdable
}

func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}

	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, err
		}
		return count, window, nil
	}

	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return count, window, err
	}
	// A key without expiry would block the client forever.
	if ttl < 0 {
		c.client.Expire(ctx, key, window)
		ttl = window
	}

	return count, ttl, nil
}

type RateLimiter struct {
	log     *slog.Logger
	counter WindowCounter
	limit   int
	window  time.Duration
	prefix  string
}

func NewRateLimiter(log *slog.Logger, counter WindowCounter, limit int, window time.Duration, prefix string) *RateLimiter {
	return &RateLimiter{
		log:     log.With(slog.String("component", "rate-limit")),
		counter: counter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

// Middleware limits requests per client address. Counter errors let the
// request through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.prefix + ":rl:" + clientID(r)

		count, ttl, err := l.counter.Incr(r.Context(), key, l.window)
		if err != nil {
			l.log.Warn("rate limit counter unavailable", sl.Err(err))
			next.ServeHTTP(w, r)
			return
		}

		reset := int(ttl.Seconds())
		if reset < 0 {
			reset = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Reset", strconv.Itoa(reset))

		if count > int64(l.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(reset))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(l.limit)-count, 10))
		next.ServeHTTP(w, r)
	})
}

func clientID(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	if host == "" {
		return "anonymous"
	}
	return host
}
