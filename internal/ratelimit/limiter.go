// Package ratelimit keeps one token bucket per client key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store manages rate limiters for multiple clients. Limiters idle for
// longer than the cleanup interval are forgotten.
type Store struct {
	limiters map[string]*entry
	limit    rate.Limit
	burst    int
	cleanup  time.Duration
	mu       sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
}

// NewStore allows perMinute requests per key with the given burst.
func NewStore(perMinute int, burst int, cleanupInterval time.Duration) *Store {
	if burst <= 0 {
		burst = max(1, perMinute/6)
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	s := &Store{
		limiters: make(map[string]*entry),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		cleanup:  cleanupInterval,
		stop:     make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Allow reports whether a request from key may proceed now.
func (s *Store) Allow(key string) bool {
	s.mu.Lock()
	e, ok := s.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = time.Now()
	s.mu.Unlock()

	return e.limiter.Allow()
}

// RetryAfter estimates how long key has to wait for its next token.
func (s *Store) RetryAfter(key string) time.Duration {
	s.mu.Lock()
	e, ok := s.limiters[key]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	r := e.limiter.Reserve()
	defer r.Cancel()
	return r.Delay()
}

// Count returns the number of tracked limiters
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanup)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanupExpired(time.Now())
		}
	}
}

func (s *Store) cleanupExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.limiters {
		if now.Sub(e.lastSeen) > s.cleanup {
			delete(s.limiters, key)
		}
	}
}

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}
