package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/turf-booking/pkg/response"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerSecond per client key
	RequestsPerSecond float64
	// BurstSize is the token bucket capacity
	BurstSize int
	// CleanupInterval for idle entries
	CleanupInterval time.Duration
	// EntryTTL evicts keys idle for longer than this
	EntryTTL time.Duration
	// KeyFunc picks the client key (default: user id, falling back to client IP)
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 20,
		BurstSize:         40,
		CleanupInterval:   time.Minute,
		EntryTTL:          5 * time.Minute,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// LocalRateLimiter keeps one token bucket per client key in memory
type LocalRateLimiter struct {
	config  RateLimitConfig
	entries sync.Map
	stop    chan struct{}
	once    sync.Once

	totalAllowed  atomic.Uint64
	totalRejected atomic.Uint64
}

// NewLocalRateLimiter creates a limiter and starts its cleanup goroutine
func NewLocalRateLimiter(config RateLimitConfig) *LocalRateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.EntryTTL <= 0 {
		config.EntryTTL = 5 * time.Minute
	}
	if config.KeyFunc == nil {
		config.KeyFunc = defaultRateLimitKey
	}

	rl := &LocalRateLimiter{
		config: config,
		stop:   make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func defaultRateLimitKey(c *gin.Context) string {
	if userID, ok := GetUserID(c); ok {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

// Allow reports whether a request for key may proceed
func (rl *LocalRateLimiter) Allow(key string) bool {
	v, _ := rl.entries.LoadOrStore(key, &limiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.BurstSize),
	})
	e := v.(*limiterEntry)
	e.lastSeen.Store(time.Now().UnixNano())

	if e.limiter.Allow() {
		rl.totalAllowed.Add(1)
		return true
	}
	rl.totalRejected.Add(1)
	return false
}

// GetStats returns allowed and rejected totals
func (rl *LocalRateLimiter) GetStats() (allowed, rejected uint64) {
	return rl.totalAllowed.Load(), rl.totalRejected.Load()
}

func (rl *LocalRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.config.EntryTTL).UnixNano()
			rl.entries.Range(func(key, value interface{}) bool {
				if value.(*limiterEntry).lastSeen.Load() < cutoff {
					rl.entries.Delete(key)
				}
				return true
			})
		case <-rl.stop:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *LocalRateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// Middleware rejects over-limit clients with 429
func (rl *LocalRateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := "1"
	if rl.config.RequestsPerSecond > 0 && rl.config.RequestsPerSecond < 1 {
		retryAfter = strconv.Itoa(int(1 / rl.config.RequestsPerSecond))
	}

	return func(c *gin.Context) {
		if !rl.Allow(rl.config.KeyFunc(c)) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.ErrorBody("RATE_LIMITED", "too many requests"))
			return
		}
		c.Next()
	}
}
