package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter checks whether a request should be allowed based on
// the identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// DefaultTier is used for identities without a service tier.
const DefaultTier = "default"

// InProcessLimiter is a fixed-window limiter that counts requests per
// subject and tier in memory. Windows are one minute long.
type InProcessLimiter struct {
	tiers      map[string]int
	defaultRPM int
	now        func() time.Time

	mu        sync.Mutex
	counters  map[string]*counter
	lastSweep time.Time
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a limiter from per-tier requests-per-minute
// limits. Tiers not listed use defaultRPM; a limit of zero or less means
// unlimited.
func NewInProcessLimiter(tiers map[string]int, defaultRPM int) *InProcessLimiter {
	t := make(map[string]int, len(tiers))
	for k, v := range tiers {
		t[k] = v
	}
	return &InProcessLimiter{
		tiers:      t,
		defaultRPM: defaultRPM,
		now:        time.Now,
		counters:   make(map[string]*counter),
	}
}

// Tier returns the tier name an identity is limited under.
func Tier(identity *Identity) string {
	if identity == nil || identity.ServiceTier == "" {
		return DefaultTier
	}
	return identity.ServiceTier
}

// Allow returns ErrTooManyRequests once the identity exceeds its tier's
// limit within the current window.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	if identity == nil {
		return nil
	}
	tier := Tier(identity)

	rpm := l.defaultRPM
	if v, ok := l.tiers[tier]; ok {
		rpm = v
	}
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[key] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops expired windows at most once a minute so the counter map
// does not grow with every subject ever seen. Callers hold l.mu.
func (l *InProcessLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < time.Minute {
		return
	}
	l.lastSweep = now
	for k, c := range l.counters {
		if now.Sub(c.windowAt) >= time.Minute {
			delete(l.counters, k)
		}
	}
}
