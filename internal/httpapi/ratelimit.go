// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Client rate limiting defaults.
const (
	DefaultRateLimit       = 1.0
	DefaultRateBurst       = 10
	DefaultCleanupInterval = time.Minute
	DefaultClientIdleTTL   = 10 * time.Minute
)

// ClientLimiterConfig configures a ClientLimiter. Zero values take defaults.
type ClientLimiterConfig struct {
	// Rate is the sustained requests per second per client.
	Rate float64
	// Burst is the number of requests a fresh client may send at once.
	Burst int
	// CleanupInterval is how often idle clients are dropped.
	CleanupInterval time.Duration
	// IdleTTL is how long a client may stay silent before it is dropped.
	IdleTTL time.Duration
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter applies a token bucket per client key. It runs a background
// cleanup goroutine until Close is called.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewClientLimiter creates a ClientLimiter and starts its cleanup loop.
func NewClientLimiter(cfg ClientLimiterConfig) *ClientLimiter {
	if cfg.Rate <= 0 {
		cfg.Rate = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultRateBurst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultClientIdleTTL
	}

	l := &ClientLimiter{
		clients: make(map[string]*clientEntry),
		limit:   rate.Limit(cfg.Rate),
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	l.wg.Add(1)
	go l.cleanupLoop(cfg.CleanupInterval)
	return l
}

// Allow consumes one token for key and reports whether the request may
// proceed.
func (l *ClientLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.clients[key]
	if !ok {
		entry = &clientEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// ClientCount returns the number of tracked clients.
func (l *ClientLimiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Cleanup drops clients idle for longer than the configured TTL.
func (l *ClientLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	for key, entry := range l.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

func (l *ClientLimiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit.
func (l *ClientLimiter) Close() {
	close(l.stop)
	l.wg.Wait()
}
