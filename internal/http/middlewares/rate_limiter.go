package middlewares

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// WindowCounter counts hits per key in fixed windows. Hit returns the
// count including this hit and the time until the window resets.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimiter rejects a key's requests past limit within one window.
type RateLimiter struct {
	limit   int
	window  time.Duration
	counter WindowCounter

	// OnLimited is called for each rejected request (metrics hook).
	OnLimited func()
}

// NewRateLimiter limits per key. A nil counter keeps counts in process
// memory; pass a shared one (Redis) when running several replicas.
func NewRateLimiter(limit int, window time.Duration, counter WindowCounter) *RateLimiter {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	return &RateLimiter{limit: limit, window: window, counter: counter}
}

// RateLimiterMiddleware enforces the limit for the key derived by keyFn.
// A non-positive limit disables it. Counter failures let the request
// through.
func (rl *RateLimiter) RateLimiterMiddleware(keyFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		key := keyFn(c)
		if key == "" {
			key = clientIP(c)
		}

		count, resetIn, err := rl.counter.Hit(c.Request.Context(), key, rl.window)
		if err != nil {
			slog.Default().WarnContext(c.Request.Context(), "rate limiter unavailable", "err", err)
			c.Next()
			return
		}

		if count > int64(rl.limit) {
			if rl.OnLimited != nil {
				rl.OnLimited()
			}

			retryAfter := int(math.Ceil(resetIn.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			abortWithError(c, http.StatusTooManyRequests, "rate_limited", "Too many requests. Please try again shortly.")
			return
		}

		c.Next()
	}
}

// MemoryCounter is a WindowCounter for a single process.
type MemoryCounter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count     int64
	windowEnd time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{buckets: make(map[string]*bucket), now: time.Now}
}

func (m *MemoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep(now)

	b, ok := m.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		b = &bucket{windowEnd: now.Add(window)}
		m.buckets[key] = b
	}
	b.count++

	return b.count, b.windowEnd.Sub(now), nil
}

// sweep drops expired buckets once the map grows; caller holds mu.
func (m *MemoryCounter) sweep(now time.Time) {
	if len(m.buckets) < 1024 {
		return
	}
	for k, b := range m.buckets {
		if !now.Before(b.windowEnd) {
			delete(m.buckets, k)
		}
	}
}

func KeyByIP(c *gin.Context) string {
	return "ip:" + clientIP(c)
}

// KeyByUsernameOrIP keys login attempts by client and submitted username so
// one client cannot spray many accounts, nor lock one out from every IP.
func KeyByUsernameOrIP(c *gin.Context) string {
	if u := c.PostForm("username"); u != "" {
		return "ip:" + clientIP(c) + "|user:" + u
	}
	return KeyByIP(c)
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()

	host, _, err := net.SplitHostPort(ip)
	if err == nil && host != "" {
		return host
	}
	return ip
}
