package ratelimit

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiter_BurstThenDenied(t *testing.T) {
	l := NewLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i+1)
	}
	assert.False(t, l.Allow("10.0.0.1"))

	// other clients have their own bucket
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestLimiter_TokensShrink(t *testing.T) {
	l := NewLimiter(1, 5)

	assert.InDelta(t, 5, l.Tokens("a"), 0.01)
	l.Allow("a")
	assert.InDelta(t, 4, l.Tokens("a"), 0.01)
	assert.Equal(t, 5, l.Burst())
}

func TestLimiter_MinimumBurst(t *testing.T) {
	l := NewLimiter(100, 0)
	assert.Equal(t, 1, l.Burst())
	assert.True(t, l.Allow("a"))
}

func TestLimiter_EvictsIdleBuckets(t *testing.T) {
	l := NewLimiter(3600, 2)
	now := time.Date(2026, 1, 21, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.lastSweep = now

	for i := 0; i < 100; i++ {
		l.Allow(fmt.Sprintf("10.0.%d.%d", i/250, i%250))
	}
	assert.Len(t, l.clients, 100)

	now = now.Add(5 * time.Minute)
	l.Allow("10.9.9.9")
	assert.Len(t, l.clients, 101, "nothing is idle long enough yet")

	now = now.Add(minIdle)
	l.Allow("10.9.9.9")
	assert.Len(t, l.clients, 1, "idle buckets are dropped")
}

func TestLimiter_ZeroRateNeverEvicts(t *testing.T) {
	l := NewLimiter(0, 1)
	now := time.Now()
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	now = now.Add(24 * time.Hour)
	assert.False(t, l.Allow("a"), "an exhausted bucket is not reset by eviction")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{"direct", "192.0.2.10:54321", "", "192.0.2.10"},
		{"forwarded header from remote client is ignored", "192.0.2.10:54321", "203.0.113.7", "192.0.2.10"},
		{"local proxy", "127.0.0.1:40000", "203.0.113.7", "203.0.113.7"},
		{"local proxy appends the real address", "[::1]:40000", "198.51.100.1, 203.0.113.7", "203.0.113.7"},
		{"local proxy without header", "127.0.0.1:40000", "", "127.0.0.1"},
		{"unparseable remote", "pipe", "203.0.113.7", "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.fwd != "" {
				r.Header.Set("X-Forwarded-For", tt.fwd)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}
