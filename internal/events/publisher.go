package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// ErrBufferFull is returned by an async publisher that cannot queue an event.
var ErrBufferFull = errors.New("event buffer full")

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.logger.InfoContext(ctx, "event_published",
		"event_id", e.ID.String(),
		"kind", int(e.Kind),
		"bounty_id", e.BountyID.String(),
		"tags", e.Tags,
	)
	return nil
}

// Multi publishes to each publisher in turn and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async decouples callers from a slow sink. Publish enqueues and returns;
// a single worker forwards events in order. Close drains the queue.
type Async struct {
	next   Publisher
	logger *slog.Logger
	queue  chan asyncItem
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type asyncItem struct {
	ctx   context.Context
	event Event
}

type AsyncOption func(*Async)

func WithAsyncLogger(logger *slog.Logger) AsyncOption {
	return func(a *Async) {
		a.logger = logger
	}
}

// NewAsync starts the forwarding worker. size is the queue capacity.
func NewAsync(next Publisher, size int, opts ...AsyncOption) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{next: next, queue: make(chan asyncItem, size)}
	for _, opt := range opts {
		opt(a)
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Publish queues the event. It fails with ErrBufferFull instead of blocking.
func (a *Async) Publish(ctx context.Context, e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errors.New("event publisher closed")
	}
	select {
	case a.queue <- asyncItem{ctx: context.WithoutCancel(ctx), event: e}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

func (a *Async) run() {
	defer a.wg.Done()
	for item := range a.queue {
		if err := a.next.Publish(item.ctx, item.event); err != nil && a.logger != nil {
			a.logger.WarnContext(item.ctx, "event delivery failed",
				"event_id", item.event.ID.String(),
				"kind", int(item.event.Kind),
				"error", err,
			)
		}
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	a.wg.Wait()
}
