// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package ratelimit implements advisory per-key admission control. Buckets
// are memory-resident and rebuilt on restart; this is an anti-abuse
// heuristic, never a security boundary.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/crewos/crew-service/internal/logging"
)

const bucketTTL = 5 * time.Minute

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	perSecond rate.Limit
	burst     int

	done chan struct{}
	once sync.Once

	logger logging.LoggerInterface
}

// NewLimiter creates a token-bucket limiter keyed by caller or tenant.
// Idle buckets are evicted by a janitor until Close is called.
func NewLimiter(perSecond, burst int, logger logging.LoggerInterface) *Limiter {
	l := &Limiter{
		buckets:   make(map[string]*bucket),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		done:      make(chan struct{}),
		logger:    logger,
	}

	go l.janitor()

	return l
}

// Allow reports whether the caller identified by key may proceed.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.lim.Allow()
}

// RetryAfter returns the hint surfaced to rejected callers, rounded up to
// a whole second so the Retry-After header is always at least 1.
func (l *Limiter) RetryAfter() int64 {
	if l.perSecond >= 1 {
		return 1
	}
	if l.perSecond <= 0 {
		return 1
	}
	return int64(float64(1)/float64(l.perSecond) + 0.5)
}

func (l *Limiter) Close() {
	l.once.Do(func() { close(l.done) })
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for k, b := range l.buckets {
				if now.Sub(b.lastSeen) > bucketTTL {
					delete(l.buckets, k)
				}
			}
			l.mu.Unlock()
		case <-l.done:
			return
		}
	}
}
