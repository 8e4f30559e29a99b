package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minIdle is the shortest time a bucket is kept after its last request
const minIdle = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter hands out one token bucket per client address
type Limiter struct {
	clients map[string]*client
	mu      sync.Mutex
	rate    rate.Limit
	burst   int

	// buckets unused for idle are dropped; zero keeps them forever
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewLimiter creates a new rate limiter
// requestsPerHour: sustained requests allowed per hour per client (e.g., 600)
// burst: max requests in a burst (e.g., 20)
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	r := rate.Limit(float64(requestsPerHour) / 3600.0)
	if burst < 1 {
		burst = 1
	}

	// a bucket is only dropped once it would have refilled anyway
	var idle time.Duration
	if r > 0 {
		idle = max(time.Duration(float64(burst)/float64(r)*float64(time.Second)), minIdle)
	}

	l := &Limiter{
		clients: make(map[string]*client),
		rate:    r,
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
	l.lastSweep = l.now()
	return l
}

// GetLimiter returns the bucket for a client, creating it on first use
func (l *Limiter) GetLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, exists := l.clients[key]
	if !exists {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now

	return c.limiter
}

// sweep drops idle buckets, at most once per idle period. Callers hold l.mu.
func (l *Limiter) sweep(now time.Time) {
	if l.idle == 0 || now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) >= l.idle {
			delete(l.clients, key)
		}
	}
}

// Allow checks if a request is allowed for the given client
func (l *Limiter) Allow(key string) bool {
	return l.GetLimiter(key).Allow()
}

// Tokens returns the current number of available tokens for a client
func (l *Limiter) Tokens(key string) float64 {
	return l.GetLimiter(key).Tokens()
}

// Burst is the bucket size shared by every client
func (l *Limiter) Burst() int { return l.burst }

// ClientIP identifies the caller of r. X-Forwarded-For is only honoured when the
// connection comes from a reverse proxy on loopback, and then its last entry,
// the address that proxy saw, is used.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			entries := strings.Split(fwd, ",")
			if last := strings.TrimSpace(entries[len(entries)-1]); last != "" {
				return last
			}
		}
	}
	return host
}
