// Package ratelimit guards endpoints with per-IP sliding windows, a
// dangerous-content inspector and a temporary IP blacklist.
package ratelimit

import (
	"sync"
	"time"
)

// Rule bounds the number of requests one IP may make to an endpoint per window.
type Rule struct {
	MaxRequests int
	Window      time.Duration
}

// Decision is the outcome of a Limiter check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type hitKey struct {
	ip       string
	endpoint string
}

// Limiter keeps a sliding window of request timestamps per (ip, endpoint).
type Limiter struct {
	mu    sync.Mutex
	rules map[string]Rule
	hits  map[hitKey][]time.Time

	now func() time.Time
}

// NewLimiter returns a Limiter enforcing rules keyed by endpoint name.
func NewLimiter(rules map[string]Rule) *Limiter {
	copied := make(map[string]Rule, len(rules))
	for endpoint, rule := range rules {
		copied[endpoint] = rule
	}
	return &Limiter{
		rules: copied,
		hits:  make(map[hitKey][]time.Time),
		now:   time.Now,
	}
}

// Check records a request from ip to endpoint unless the window is full.
// Endpoints without a rule are always allowed.
func (l *Limiter) Check(ip, endpoint string) Decision {
	rule, ok := l.rules[endpoint]
	if !ok || rule.MaxRequests <= 0 {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := hitKey{ip: ip, endpoint: endpoint}
	recent := live(l.hits[key], now, rule.Window)

	if len(recent) >= rule.MaxRequests {
		l.hits[key] = recent
		return Decision{Allowed: false, RetryAfter: rule.Window}
	}

	l.hits[key] = append(recent, now)
	return Decision{Allowed: true}
}

// Clear forgets every recorded request.
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits = make(map[hitKey][]time.Time)
}

// Prune drops expired timestamps and empty windows, returning how many windows were removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, stamps := range l.hits {
		recent := live(stamps, now, l.rules[key.endpoint].Window)
		if len(recent) == 0 {
			delete(l.hits, key)
			removed++
			continue
		}
		l.hits[key] = recent
	}
	return removed
}

// live returns the suffix of stamps younger than window. stamps is in ascending order.
func live(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) >= window {
		i++
	}
	if i == 0 {
		return stamps
	}
	return append([]time.Time(nil), stamps[i:]...)
}
