package handler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterTTL           = 10 * time.Minute
	limiterCleanupPeriod = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool hands out one token bucket per user and forgets buckets that
// have been idle for limiterTTL.
type limiterPool struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	clock   func() time.Time

	startCleanup sync.Once
	stopOnce     sync.Once
	stopCh       chan struct{}
}

func newLimiterPool(perSecond float64, burst int) *limiterPool {
	return &limiterPool{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clock:   time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Allow reports whether key may send now.
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).AllowN(p.clock(), 1)
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.startCleanup.Do(func() { go p.cleanupLoop() })

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[key]; ok {
		e.lastSeen = p.clock()
		return e.limiter
	}
	l := rate.NewLimiter(p.limit, p.burst)
	p.entries[key] = &limiterEntry{limiter: l, lastSeen: p.clock()}
	return l
}

// Shutdown stops the cleanup goroutine.
func (p *limiterPool) Shutdown() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *limiterPool) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stopCh:
			return
		}
	}
}

func (p *limiterPool) evictIdle() {
	cutoff := p.clock().Add(-limiterTTL)
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.entries {
		if e.lastSeen.Before(cutoff) {
			delete(p.entries, key)
		}
	}
}

func (p *limiterPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
