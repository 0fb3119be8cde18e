package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter counts actions per user. The Redis store's limiter is shared
// across instances; MemoryLimiter is per process.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64, action string, limit int, window time.Duration) (bool, error)
}

type Limit struct {
	Action string
	Limit  int
	Window time.Duration
}

// RateLimitMiddleware applies a limit per route, keyed on method and gin
// route pattern ("POST /api/bets"). Routes without a limit pass through, and
// so do requests when the limiter itself fails.
func RateLimitMiddleware(limiter RateLimiter, limits map[string]Limit) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt64(ContextUserID)
		l, ok := limits[c.Request.Method+" "+c.FullPath()]
		if userID == 0 || !ok || l.Limit <= 0 {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), userID, l.Action, l.Limit, l.Window)
		if err != nil {
			log.WithError(err).WithField("action", l.Action).Warn("Rate limit check failed")
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", fmt.Sprint(int(math.Ceil(l.Window.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": l.Window.Seconds(),
			})
			return
		}

		c.Next()
	}
}

// sweepEvery is how often Allow drops buckets that have refilled.
const sweepEvery = time.Minute

type bucket struct {
	limiter *rate.Limiter
	window  time.Duration
	seen    time.Time
}

// MemoryLimiter is a token bucket per (user, action), refilling limit tokens
// per window. A bucket left alone for a full window is back at capacity, so
// it is dropped and recreated on the next request.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

func (m *MemoryLimiter) Allow(_ context.Context, userID int64, action string, limit int, window time.Duration) (bool, error) {
	key := fmt.Sprintf("%d:%s", userID, action)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= sweepEvery {
		m.sweep(now)
	}

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit), window: window}
		m.buckets[key] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1), nil
}

func (m *MemoryLimiter) sweep(now time.Time) {
	for key, b := range m.buckets {
		if now.Sub(b.seen) >= b.window {
			delete(m.buckets, key)
		}
	}
	m.lastSweep = now
}

// Len returns the number of live buckets.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}
