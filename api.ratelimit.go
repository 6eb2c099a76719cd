package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per caller ip.
type RateLimiter struct {
	logger   *zap.Logger
	clock    TickerClocker
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	ttl      time.Duration

	// trustProxy keys callers on the forwarding headers instead of the peer address.
	trustProxy bool
}

// NewRateLimiter returns nil when no rate is configured, which disables limiting.
func NewRateLimiter(logger *zap.Logger, clock TickerClocker, config *RateLimitConfig) *RateLimiter {
	if config.RPS <= 0 {
		return nil
	}
	burst := config.Burst
	if burst <= 0 {
		burst = int(config.RPS) + 1
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RateLimiter{
		logger:   logger,
		clock:    clock,
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(config.RPS),
		burst:    burst,
		ttl:      ttl,

		trustProxy: config.TrustProxyHeaders,
	}
}

// Key returns the bucket key of the request caller.
func (rl *RateLimiter) Key(r *http.Request) string {
	if rl.trustProxy {
		return GetRequestSourceIP(r)
	}
	return GetRequestPeerIP(r)
}

// Allow reports whether the caller still has a token.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.clock.Now()
	rl.mu.Lock()
	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

// sweep forgets callers idle for longer than the ttl and returns how many were removed.
func (rl *RateLimiter) sweep() int {
	now := rl.clock.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.ttl {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// Sweep periodically drops idle callers until the context is done.
func (rl *RateLimiter) Sweep(ctx context.Context) error {
	ticker := rl.clock.NewTicker(rl.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			rl.logger.Info("rate limiter: sweeper stopped", zap.String("reason", ctx.Err().Error()))
			return nil
		case <-ticker.C:
			if n := rl.sweep(); n > 0 {
				rl.logger.Debug("rate limiter: idle visitors removed", zap.Int("count", n))
			}
		}
	}
}
