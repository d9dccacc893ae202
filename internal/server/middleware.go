package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/healthylife/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 3 * time.Minute
	limiterSweepInterval = time.Minute
)

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		reason := "invalid_token"
		switch {
		case errors.Is(err, auth.ErrMissingSessionToken):
			reason = "missing_token"
			h.logger.Debug("session token missing", zap.String("path", c.FullPath()))
		case errors.Is(err, auth.ErrExpiredSessionToken):
			reason = "expired_token"
			h.logger.Info("token validation failed", zap.Error(err))
		default:
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		if h.metrics != nil {
			h.metrics.AuthRejected(reason)
		}
		respondFailure(c, http.StatusUnauthorized, messageUnauthorized, "auth."+reason)
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Next()
}

type ipVisitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP and forgets idle clients.
type ipRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*ipVisitor
	limit     rate.Limit
	burst     int
	clock     func() time.Time
	lastSweep time.Time
}

func newIPRateLimiter(cfg RateLimitConfig, clock func() time.Time) *ipRateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &ipRateLimiter{
		visitors: make(map[string]*ipVisitor),
		limit:    rate.Limit(cfg.RPS),
		burst:    burst,
		clock:    clock,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if now.Sub(l.lastSweep) >= limiterSweepInterval {
		for key, visitor := range l.visitors {
			if now.Sub(visitor.lastSeen) > limiterIdleTTL {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	visitor, ok := l.visitors[ip]
	if !ok {
		visitor = &ipVisitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = visitor
	}
	visitor.lastSeen = now
	return visitor.limiter.AllowN(now, 1)
}

func (l *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			respondFailure(c, http.StatusTooManyRequests, messageRateLimited, "rate_limited")
			return
		}
		c.Next()
	}
}
