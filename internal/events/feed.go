package events

import (
	"context"
	"sync"
)

// DefaultFeedCapacity bounds how many events the feed remembers.
const DefaultFeedCapacity = 500

// Feed is a bounded in-memory record of recent events. When full the oldest
// event is dropped.
type Feed struct {
	mu       sync.Mutex
	events   []Event
	head     int
	count    int
	capacity int
	dropped  int64
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{events: make([]Event, capacity), capacity: capacity}
}

func (f *Feed) Publish(_ context.Context, e Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count == f.capacity {
		f.dropped++
	} else {
		f.count++
	}
	f.events[f.head] = e
	f.head = (f.head + 1) % f.capacity
	return nil
}

// ListRecent returns up to limit events, newest first. A non-positive limit
// returns everything retained.
func (f *Feed) ListRecent(limit int) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, f.events[(f.head-i+f.capacity)%f.capacity])
	}
	return out
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Dropped is how many events were evicted to make room.
func (f *Feed) Dropped() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}
