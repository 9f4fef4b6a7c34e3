package positioning

import (
	"context"
	"sync"
	"time"

	"geosats/internal/geo"
)

// StaticSource always reports the same coordinate, stamped at query time.
type StaticSource struct {
	Coordinate geo.Coordinate
	AccuracyM  float64
	Now        func() time.Time
}

func (s StaticSource) fix() Fix {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return Fix{Coordinate: s.Coordinate, AccuracyM: s.AccuracyM, Timestamp: now()}
}

func (s StaticSource) Current(ctx context.Context, _ time.Duration) (Fix, error) {
	if err := ctx.Err(); err != nil {
		return Fix{}, err
	}
	return s.fix(), nil
}

func (s StaticSource) Subscribe(ctx context.Context, _ time.Duration) (<-chan Update, error) {
	ch := make(chan Update, 1)
	ch <- Update{Fix: s.fix()}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// ManualSource is fed by Push. The HTTP location endpoint writes to it.
type ManualSource struct {
	now func() time.Time

	mu      sync.Mutex
	last    *Fix
	waiters []chan Fix
	subs    map[int]chan Update
	nextID  int
}

func NewManualSource(now func() time.Time) *ManualSource {
	if now == nil {
		now = time.Now
	}
	return &ManualSource{now: now, subs: make(map[int]chan Update)}
}

// Push records a fix and fans it out. Slow subscribers miss updates rather
// than block the pusher.
func (m *ManualSource) Push(fix Fix) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last != nil && fix.Timestamp.Before(m.last.Timestamp) {
		return
	}
	m.last = &fix
	for _, w := range m.waiters {
		w <- fix
	}
	m.waiters = nil
	for _, ch := range m.subs {
		select {
		case ch <- Update{Fix: fix}:
		default:
		}
	}
}

// Fail sends err to every subscriber.
func (m *ManualSource) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- Update{Err: err}:
		default:
		}
	}
}

// Last returns the most recent fix, if any.
func (m *ManualSource) Last() (Fix, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Fix{}, false
	}
	return *m.last, true
}

// Current returns the last fix when fresh enough, otherwise waits for the next
// Push or ctx expiry.
func (m *ManualSource) Current(ctx context.Context, maxAge time.Duration) (Fix, error) {
	m.mu.Lock()
	if m.last != nil && m.last.Age(m.now()) <= maxAge {
		fix := *m.last
		m.mu.Unlock()
		return fix, nil
	}
	w := make(chan Fix, 1)
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	select {
	case fix := <-w:
		return fix, nil
	case <-ctx.Done():
		m.dropWaiter(w)
		return Fix{}, ctx.Err()
	}
}

func (m *ManualSource) dropWaiter(w chan Fix) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.waiters {
		if c == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

func (m *ManualSource) Subscribe(ctx context.Context, maxAge time.Duration) (<-chan Update, error) {
	ch := make(chan Update, 16)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	if m.last != nil && m.last.Age(m.now()) <= maxAge {
		ch <- Update{Fix: *m.last}
	}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		close(ch)
		m.mu.Unlock()
	}()
	return ch, nil
}
