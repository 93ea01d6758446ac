// Package ratelimit provides admission control by key. The interface is
// injectable so single-process deployments use the in-memory token bucket
// while multi-process ones can swap in an external store without touching
// the HTTP layer.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Admitter decides whether a request identified by key may proceed.
type Admitter interface {
	Allow(key string) bool
}

// Unlimited admits everything. Useful in tests.
type Unlimited struct{}

func (Unlimited) Allow(string) bool { return true }

const bucketTTL = 5 * time.Minute

// PerKey is a token-bucket Admitter keyed by an opaque string (typically
// the client IP). State is process-local and resets on restart; that is
// acceptable for a best-effort guard.
type PerKey struct {
	mu      sync.Mutex
	buckets map[string]*bucket

	perSec int
	burst  int
}

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// NewPerKey constructs a limiter allowing perSec requests per second with
// the given burst, and starts a janitor that drops idle buckets.
func NewPerKey(perSec, burst int) *PerKey {
	p := &PerKey{
		buckets: make(map[string]*bucket),
		perSec:  perSec,
		burst:   burst,
	}
	go p.janitor()
	return p
}

// Allow reports whether the key's bucket has a token available.
func (p *PerKey) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}
	p.mu.Lock()
	b, ok := p.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(p.perSec), p.burst)}
		p.buckets[key] = b
	}
	b.ts = time.Now()
	p.mu.Unlock()
	return b.lim.Allow()
}

func (p *PerKey) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		p.mu.Lock()
		for k, b := range p.buckets {
			if now.Sub(b.ts) > bucketTTL {
				delete(p.buckets, k)
			}
		}
		p.mu.Unlock()
	}
}
