package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_BlocksAfterLimitAndResets(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	counter := NewMemoryCounter()
	counter.now = func() time.Time { return now }
	rl := NewRateLimiter(2, time.Minute, counter)

	limited := 0
	rl.OnLimited = func() { limited++ }

	r := gin.New()
	r.POST("/token", rl.RateLimiterMiddleware(KeyByUsernameOrIP), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(username string) *httptest.ResponseRecorder {
		body := strings.NewReader("username=" + username + "&password=x")
		req := httptest.NewRequest(http.MethodPost, "/token", body)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := do("alice"); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i, w.Code)
		}
	}

	w := do("alice")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "60" {
		t.Fatalf("got Retry-After %q, want 60", w.Header().Get("Retry-After"))
	}
	if limited != 1 {
		t.Fatalf("OnLimited called %d times, want 1", limited)
	}

	// other usernames have their own bucket
	if w := do("bob"); w.Code != http.StatusOK {
		t.Fatalf("bob: got %d, want 200", w.Code)
	}

	now = now.Add(61 * time.Second)
	if w := do("alice"); w.Code != http.StatusOK {
		t.Fatalf("after window: got %d, want 200", w.Code)
	}
}

func TestRateLimiter_DisabledWhenLimitIsZero(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(0, time.Minute, nil)
	r := gin.New()
	r.GET("/", rl.RateLimiterMiddleware(KeyByIP), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", w.Code)
		}
	}
}

type brokenCounter struct{}

func (brokenCounter) Hit(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("redis down")
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(1, time.Minute, brokenCounter{})
	r := gin.New()
	r.GET("/", rl.RateLimiterMiddleware(KeyByIP), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", w.Code)
		}
	}
}
