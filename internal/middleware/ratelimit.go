package middleware

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/attendo-api/pkg/errors"
	"github.com/noah-isme/attendo-api/pkg/response"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out a token bucket per caller: limit requests per window, bursting to limit.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	now      func() time.Time
	lastGC   time.Time
}

// NewRateLimiter builds a limiter. A non-positive limit disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	rl := &RateLimiter{visitors: make(map[string]*visitor), now: time.Now}
	if limit > 0 {
		rl.limit = rate.Every(window / time.Duration(limit))
		rl.burst = limit
	}
	return rl
}

// Allow reports whether key may proceed and, when not, how long until it may.
func (r *RateLimiter) Allow(key string) (bool, time.Duration) {
	if r.burst == 0 {
		return true, 0
	}
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.gcLocked(now)

	v, ok := r.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[key] = v
	}
	v.lastSeen = now

	reservation := v.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	reservation.CancelAt(now)
	return false, delay
}

func (r *RateLimiter) gcLocked(now time.Time) {
	if now.Sub(r.lastGC) < limiterIdleTTL {
		return
	}
	r.lastGC = now
	for key, v := range r.visitors {
		if now.Sub(v.lastSeen) > limiterIdleTTL {
			delete(r.visitors, key)
		}
	}
}

// RateLimit rejects callers over their budget with 429. Callers are keyed by user id when
// authenticated and by client IP otherwise.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if claims := Claims(c); claims != nil && claims.UserID != "" {
			key = "user:" + claims.UserID
		}

		allowed, wait := limiter.Allow(key)
		if !allowed {
			seconds := int(math.Ceil(wait.Seconds()))
			c.Header("Retry-After", fmt.Sprintf("%d", seconds))
			response.Error(c, appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrRateLimited, "too many attendance submissions, try again shortly"),
				map[string]interface{}{"retry_after_seconds": seconds},
			))
			c.Abort()
			return
		}
		c.Next()
	}
}
