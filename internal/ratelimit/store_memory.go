package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemory is a process-local sliding window store.
type InMemory struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewInMemory(now func() time.Time) *InMemory {
	if now == nil {
		now = time.Now
	}
	return &InMemory{windows: make(map[string][]time.Time), now: now}
}

func (s *InMemory) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hits := prune(s.windows[key], now.Add(-window))
	res := Result{Limit: limit, ResetAt: now.Add(window)}
	if len(hits) > 0 {
		res.ResetAt = hits[0].Add(window)
	}
	if len(hits) >= limit {
		s.store(key, hits)
		return res, nil
	}
	hits = append(hits, now)
	s.store(key, hits)
	res.Allowed = true
	res.Remaining = limit - len(hits)
	res.ResetAt = hits[0].Add(window)
	return res, nil
}

// Len is the number of keys currently tracked.
func (s *InMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *InMemory) store(key string, hits []time.Time) {
	if len(hits) == 0 {
		delete(s.windows, key)
		return
	}
	s.windows[key] = hits
}

// prune drops timestamps at or before cutoff. hits is in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
