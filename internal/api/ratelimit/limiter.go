// Package ratelimit throttles API clients by IP.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	DefaultRequestsPerMinute = 30
	DefaultWindow            = time.Minute
	DefaultMaxFailures       = 5
	DefaultLockoutDuration   = 15 * time.Minute
	MaxLockoutDuration       = time.Hour
)

type bucket struct {
	count     int64
	resetTime time.Time
}

type lockout struct {
	failures     int
	lockedUntil  time.Time
	lockoutCount int
}

// Limiter is a fixed-window request limiter plus an escalating lockout for
// repeated failures. Each submission fans out to one remote call per URL, so
// the mutating routes sit behind Middleware.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	lockouts map[string]*lockout
	now      func() time.Time

	limit           int64
	window          time.Duration
	maxFailures     int
	baseLockoutTime time.Duration
}

// New creates a limiter allowing requestsPerMinute per key. Zero uses the default.
func New(requestsPerMinute int) *Limiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	return &Limiter{
		buckets:         make(map[string]*bucket),
		lockouts:        make(map[string]*lockout),
		now:             time.Now,
		limit:           int64(requestsPerMinute),
		window:          DefaultWindow,
		maxFailures:     DefaultMaxFailures,
		baseLockoutTime: DefaultLockoutDuration,
	}
}

// Middleware rejects requests beyond the per-IP budget with 429.
func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please try again later")
			}
			return next(c)
		}
	}
}

// Allow counts one request for key and reports whether it is within budget.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, exists := l.buckets[key]
	if !exists || now.After(b.resetTime) {
		l.buckets[key] = &bucket{count: 1, resetTime: now.Add(l.window)}
		return true
	}

	if b.count >= l.limit {
		return false
	}

	b.count++
	return true
}

// IsLocked reports whether key is currently locked out.
func (l *Limiter) IsLocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lo, exists := l.lockouts[key]
	return exists && l.now().Before(lo.lockedUntil)
}

// RecordFailure counts a failure for key. Every maxFailures failures lock the
// key out, each lockout longer than the last up to MaxLockoutDuration.
func (l *Limiter) RecordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	lo, exists := l.lockouts[key]
	if !exists {
		lo = &lockout{}
		l.lockouts[key] = lo
	}

	if now.After(lo.lockedUntil) && lo.failures >= l.maxFailures {
		lo.failures = 0
	}

	lo.failures++

	if lo.failures >= l.maxFailures {
		lo.lockoutCount++
		duration := l.baseLockoutTime * time.Duration(lo.lockoutCount)
		if duration > MaxLockoutDuration {
			duration = MaxLockoutDuration
		}
		lo.lockedUntil = now.Add(duration)
	}
}

// Reset forgets the failures recorded for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.lockouts, key)
}

// Cleanup drops expired buckets and lockouts.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	for key, b := range l.buckets {
		if now.After(b.resetTime) {
			delete(l.buckets, key)
		}
	}

	for key, lo := range l.lockouts {
		if now.After(lo.lockedUntil) && lo.failures < l.maxFailures {
			delete(l.lockouts, key)
		}
	}
}
