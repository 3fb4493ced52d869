// Gatehouse - HTTP Request Authorization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatehouse

package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AttemptLimiter throttles repeated authentication failures per client key
// (normally the remote IP). Each failure consumes a token from a per-key
// rate.Limiter; once the budget is exhausted, further attempts are rejected
// until tokens refill.
type AttemptLimiter struct {
	mu      sync.Mutex
	entries map[string]*attemptEntry

	limit rate.Limit
	burst int
}

type attemptEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAttemptLimiter creates a limiter allowing burst failures, refilling at
// one failure per interval.
func NewAttemptLimiter(interval time.Duration, burst int) *AttemptLimiter {
	if interval <= 0 {
		interval = time.Minute
	}
	if burst <= 0 {
		burst = 5
	}
	return &AttemptLimiter{
		entries: make(map[string]*attemptEntry),
		limit:   rate.Every(interval),
		burst:   burst,
	}
}

// RecordFailure registers a failed authentication attempt for key.
// It returns true when the key has exhausted its failure budget.
func (l *AttemptLimiter) RecordFailure(key string) bool {
	return !l.entry(key).limiter.Allow()
}

// Blocked reports whether key is currently out of failure budget.
func (l *AttemptLimiter) Blocked(key string) bool {
	return l.entry(key).limiter.Tokens() < 1
}

// Reset clears the failure history for key, typically after a successful
// authentication.
func (l *AttemptLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *AttemptLimiter) entry(key string) *attemptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &attemptEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = time.Now()
	return e
}

// Cleanup drops entries idle longer than maxIdle. Callers run this
// periodically; the limiter itself starts no goroutines.
func (l *AttemptLimiter) Cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}
