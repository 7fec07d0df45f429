package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// client tracks one caller's token bucket and its last use, so idle buckets
// can be evicted.
type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is an in-memory Limiter backed by golang.org/x/time/rate.
// Each key owns an independent token bucket; a background goroutine evicts
// buckets untouched for two cleanup intervals.
type MemoryLimiter struct {
	refill   rate.Limit
	burst    int
	perMin   int
	interval time.Duration

	mu      sync.Mutex
	clients map[string]*client

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMemoryLimiter creates a limiter allowing requestsPerMinute sustained
// requests per key with the given burst, and starts the eviction goroutine.
func NewMemoryLimiter(requestsPerMinute, burst int, cleanupInterval time.Duration) *MemoryLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	m := &MemoryLimiter{
		refill:   rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:    burst,
		perMin:   requestsPerMinute,
		interval: cleanupInterval,
		clients:  make(map[string]*client),
		stop:     make(chan struct{}),
	}
	go m.reap()
	return m
}

// Allow reports whether a request for the key may proceed, along with header
// information for the response.
func (m *MemoryLimiter) Allow(key string) (bool, Info) {
	now := time.Now()

	m.mu.Lock()
	c, ok := m.clients[key]
	if !ok {
		c = &client{bucket: rate.NewLimiter(m.refill, m.burst)}
		m.clients[key] = c
	}
	c.lastSeen = now
	m.mu.Unlock()

	allowed := c.bucket.Allow()

	tokens := c.bucket.TokensAt(now)
	info := Info{
		Limit:     m.perMin,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now,
	}

	// ResetAt is when the bucket refills completely at the sustained rate.
	if missing := float64(m.burst) - tokens; missing > 0 {
		info.ResetAt = now.Add(time.Duration(missing / float64(m.refill) * float64(time.Second)))
	}

	if !allowed {
		res := c.bucket.Reserve()
		info.RetryAfter = res.Delay()
		res.Cancel()
	}

	return allowed, info
}

// Close stops the eviction goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryLimiter) reap() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * m.interval)
			m.mu.Lock()
			for key, c := range m.clients {
				if c.lastSeen.Before(cutoff) {
					delete(m.clients, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
