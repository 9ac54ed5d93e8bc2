package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/platinummonkey/keystone-auth/pkg/auth"
	"github.com/platinummonkey/keystone-auth/pkg/httputil"
	"github.com/platinummonkey/keystone-auth/pkg/observability"
)

// ThrottleConfig bounds login attempts per client
type ThrottleConfig struct {
	// Attempts is the number of logins allowed per Window
	Attempts int
	// Window is the refill period for Attempts
	Window time.Duration
	// Burst allows temporary bursts above the rate
	Burst int
}

// DefaultThrottleConfig allows 10 login attempts a minute per client
func DefaultThrottleConfig() *ThrottleConfig {
	return &ThrottleConfig{
		Attempts: 10,
		Window:   time.Minute,
	}
}

func (c *ThrottleConfig) capacity() float64 {
	return float64(c.Attempts + c.Burst)
}

// Throttle decides whether a client may attempt another login. retryAfter
// is meaningful only when allowed is false.
type Throttle interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// LoginThrottle is an in-process token bucket per client key
type LoginThrottle struct {
	config  *ThrottleConfig
	now     func() time.Time
	buckets map[string]*bucket
	mu      sync.Mutex
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewLoginThrottle creates an in-process throttle
func NewLoginThrottle(config *ThrottleConfig) *LoginThrottle {
	if config == nil {
		config = DefaultThrottleConfig()
	}
	return &LoginThrottle{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (t *LoginThrottle) refillRate() float64 {
	return float64(t.config.Attempts) / t.config.Window.Seconds()
}

// Allow takes one token from key's bucket
func (t *LoginThrottle) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{tokens: t.config.capacity(), lastUpdate: now}
		t.buckets[key] = b
	}

	elapsed := now.Sub(b.lastUpdate).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(t.config.capacity(), b.tokens+elapsed*t.refillRate())
		b.lastUpdate = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0, nil
	}

	wait := time.Duration((1 - b.tokens) * float64(t.config.Window) / float64(t.config.Attempts))
	return false, wait, nil
}

// Remaining returns the whole tokens left for key
func (t *LoginThrottle) Remaining(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[key]
	if !ok {
		return int(t.config.capacity())
	}
	return int(b.tokens)
}

// Cleanup drops buckets idle for two windows. Hosts schedule it.
func (t *LoginThrottle) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, b := range t.buckets {
		if now.Sub(b.lastUpdate) > t.config.Window*2 {
			delete(t.buckets, key)
		}
	}
}

// ThrottleLogins rejects login submissions from clients over their
// allowance with 429. Only POSTs count; throttle errors fail open. Clients
// are keyed by socket address unless the peer is one of proxies.
func ThrottleLogins(throttle Throttle, proxies httputil.TrustedProxies, audit *auth.AuditLogger, metrics *observability.AuthMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			allowed, retryAfter, err := throttle.Allow(ctx, "ip:"+proxies.ClientIP(r))
			if err != nil {
				observability.FromContext(ctx).WithError(err).Warn("Login throttle unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.RecordLogin(observability.LoginThrottled)
				if audit != nil {
					audit.LogFromRequest(r, auth.ActionLoginThrottled, auth.StatusDenied, nil, nil)
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(retryAfter.Seconds())))
				httputil.WriteTooManyRequests(w, "too many login attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
