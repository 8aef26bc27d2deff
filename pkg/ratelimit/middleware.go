package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"userbus/internal/config"
	"userbus/pkg/metrics"
	"userbus/pkg/middleware"
	"userbus/pkg/models"
)

const MessageRateLimited = "rate limit exceeded"

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// FromConfig fills unset fields from DefaultConfig. Interval fields in the
// file are seconds.
func FromConfig(cfg config.RateLimitConfig) RateLimitConfig {
	out := DefaultConfig()
	if cfg.RPS > 0 {
		out.RPS = cfg.RPS
	}
	if cfg.Burst > 0 {
		out.Burst = cfg.Burst
	}
	if cfg.CleanupInterval > 0 {
		out.CleanupInterval = time.Duration(cfg.CleanupInterval) * time.Second
	}
	if cfg.MaxAge > 0 {
		out.MaxAge = time.Duration(cfg.MaxAge) * time.Second
	}
	return out
}

type clientLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// clientLimiters hands out one token bucket per client address.
type clientLimiters struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func newClientLimiters(cfg RateLimitConfig) *clientLimiters {
	return &clientLimiters{cfg: cfg, clients: make(map[string]*clientLimiter)}
}

func (l *clientLimiters) get(client string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[client]
	if !ok {
		cl = &clientLimiter{Limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.clients[client] = cl
	}
	cl.lastSeen = now
	return cl.Limiter
}

// sweep forgets clients idle for longer than MaxAge and returns how many remain.
func (l *clientLimiters) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for client, cl := range l.clients {
		if now.Sub(cl.lastSeen) > l.cfg.MaxAge {
			delete(l.clients, client)
		}
	}
	return len(l.clients)
}

func (l *clientLimiters) run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// RateLimitMiddleware limits requests per client IP and answers 429 with the
// usual response body once a client's bucket is empty. The cleanup goroutine
// stops when ctx is cancelled.
func RateLimitMiddleware(ctx context.Context, cfg RateLimitConfig) gin.HandlerFunc {
	limiters := newClientLimiters(cfg)
	go limiters.run(ctx)

	limit := strconv.FormatFloat(cfg.RPS, 'f', -1, 64)
	retryAfter := strconv.Itoa(retryAfterSeconds(cfg.RPS))

	return func(c *gin.Context) {
		client := c.ClientIP()
		if client == "" {
			client = c.RemoteIP()
		}
		limiter := limiters.get(client, time.Now())

		c.Header("X-RateLimit-Limit", limit)
		if !limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				models.NewAPIResponse(http.StatusTooManyRequests, middleware.RequestID(c), MessageRateLimited))
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(int(limiter.Tokens()), 0)))
		c.Next()
	}
}

// retryAfterSeconds is the time for one token to refill, at least a second.
func retryAfterSeconds(rps float64) int {
	if rps <= 0 {
		return 1
	}
	return max(int(math.Ceil(1/rps)), 1)
}
