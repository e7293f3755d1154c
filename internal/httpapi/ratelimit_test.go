// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package httpapi

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, cfg ClientLimiterConfig) (*ClientLimiter, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewClientLimiter(cfg)
	l.now = clock.Now
	t.Cleanup(l.Close)
	return l, clock
}

func TestClientLimiter_BurstThenRefill(t *testing.T) {
	l, clock := newTestLimiter(t, ClientLimiterConfig{Rate: 1, Burst: 3})

	for i := range 3 {
		assert.True(t, l.Allow("10.0.0.1"), "request %d within burst", i+1)
	}
	assert.False(t, l.Allow("10.0.0.1"))

	clock.Advance(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestClientLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, ClientLimiterConfig{Rate: 1, Burst: 1})

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
	assert.Equal(t, 2, l.ClientCount())
}

func TestClientLimiter_CleanupDropsIdleClients(t *testing.T) {
	l, clock := newTestLimiter(t, ClientLimiterConfig{IdleTTL: time.Minute})

	l.Allow("idle")
	clock.Advance(45 * time.Second)
	l.Allow("active")
	clock.Advance(30 * time.Second)

	l.Cleanup()
	assert.Equal(t, 1, l.ClientCount())

	// A dropped client starts over with a full bucket.
	assert.True(t, l.Allow("idle"))
}

func TestClientLimiter_Defaults(t *testing.T) {
	l, _ := newTestLimiter(t, ClientLimiterConfig{})

	allowed := 0
	for range DefaultRateBurst + 5 {
		if l.Allow("k") {
			allowed++
		}
	}
	assert.Equal(t, DefaultRateBurst, allowed)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"BEARER   abc  ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
		{"Bearer   ", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			token, ok := bearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.token, token)
		})
	}
}
