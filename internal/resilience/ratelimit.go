package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds the token-bucket tunables.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// DefaultRateLimitConfig is spec §4.6's rate limiter policy.
var DefaultRateLimitConfig = RateLimitConfig{PerMinute: 300, Burst: 50}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	out := c
	if out.PerMinute == 0 {
		out.PerMinute = DefaultRateLimitConfig.PerMinute
	}
	if out.Burst == 0 {
		out.Burst = DefaultRateLimitConfig.Burst
	}
	return out
}

// RateLimiter is a per-host token bucket that blocks (never drops) callers
// until a token is available or ctx is canceled.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter constructs a token bucket per cfg, one per host per §4.6.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()
	perSecond := float64(cfg.PerMinute) / 60.0
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), cfg.Burst)}
}

// Wait blocks until a token is available or ctx is canceled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// hostLimiters keys a RateLimiter per destination host, since §4.6 scopes
// the token bucket "per host".
type hostLimiters struct {
	cfg      RateLimitConfig
	limiters map[string]*RateLimiter
}

// NewHostLimiters constructs a registry that lazily creates one RateLimiter
// per host, all sharing cfg.
func NewHostLimiters(cfg RateLimitConfig) *hostLimiters {
	return &hostLimiters{cfg: cfg, limiters: map[string]*RateLimiter{}}
}

// For returns (creating if necessary) the RateLimiter for host.
func (h *hostLimiters) For(host string) *RateLimiter {
	if l, ok := h.limiters[host]; ok {
		return l
	}
	l := NewRateLimiter(h.cfg)
	h.limiters[host] = l
	return l
}
