package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"chatmallu/client/pkg/errors"
	"chatmallu/client/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit is the sustained rate in requests per second
	Limit rate.Limit
	// Burst is the bucket size
	Burst int
	// IdleTTL is how long a client's bucket is kept after its last request
	IdleTTL time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
	// Exempt requests are never counted
	Exempt func(*gin.Context) bool
}

func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:   20,
		Burst:   40,
		IdleTTL: time.Hour,
		KeyFunc: func(c *gin.Context) string {
			return c.ClientIP()
		},
	}
}

// ReadsExempt exempts safe methods, so a UI polling the sidebar or the
// connection indicator never starves its own message sends.
func ReadsExempt(c *gin.Context) bool {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*bucket
	logger  *logger.Logger
	now     func() time.Time
}

func NewRateLimiter(log *logger.Logger, options ...RateLimiterOptions) *RateLimiter {
	opts := DefaultRateLimiterOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	if opts.KeyFunc == nil {
		opts.KeyFunc = DefaultRateLimiterOptions().KeyFunc
	}

	return &RateLimiter{
		options: opts,
		clients: make(map[string]*bucket),
		logger:  log,
		now:     time.Now,
	}
}

// Middleware rejects requests over the limit with RATE_LIMIT_EXCEEDED and a
// Retry-After hint in whole seconds.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.options.Exempt != nil && r.options.Exempt(c) {
			c.Next()
			return
		}

		key := r.options.KeyFunc(c)
		now := r.now()
		limiter := r.getLimiter(key, now)

		c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
		if !limiter.AllowN(now, 1) {
			wait := retryAfter(limiter, now)
			r.logger.Warn("Rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"retry_after", wait,
			)
			c.Header("Retry-After", strconv.Itoa(wait))
			_ = c.Error(errors.NewTooManyRequestsError(errors.CodeRateLimited, "Too many requests. Please try again later."))
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(limiter.TokensAt(now))))
		c.Next()
	}
}

// retryAfter is the number of seconds until one token is available.
func retryAfter(l *rate.Limiter, now time.Time) int {
	if l.Limit() <= 0 {
		return 1
	}
	missing := 1 - l.TokensAt(now)
	secs := int(math.Ceil(missing / float64(l.Limit())))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Run evicts idle clients every minute until ctx is done.
func (r *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle(r.now())
		}
	}
}

func (r *RateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.clients[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.options.Limit, r.options.Burst)}
		r.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

func (r *RateLimiter) evictIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, b := range r.clients {
		if now.Sub(b.lastSeen) > r.options.IdleTTL {
			delete(r.clients, k)
		}
	}
}
