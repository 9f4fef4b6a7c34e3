// Package puzzle suggests riddles for new bounties. Generation runs in the
// background and is handed back as a Future so callers can cancel or bound it.
package puzzle

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"geosats/pkg/platform/async"
)

const (
	DefaultDelay   = 2 * time.Second
	DefaultTimeout = 5 * time.Second
)

// Catalogue is the fixed set of riddles the generator draws from.
var Catalogue = []string{
	"What has four legs in the morning, two legs in the afternoon, and three legs in the evening?",
	"I speak without a mouth and hear without ears. I have no body, but come alive with wind. What am I?",
	"The more you take, the more you leave behind. What am I?",
	"I can be cracked, made, told, and played. What am I?",
	"What begins with T, ends with T, and has T in it?",
}

type Generator struct {
	delay   time.Duration
	timeout time.Duration
	pick    func(n int) int
	logger  *slog.Logger
}

type Option func(*Generator)

// WithDelay sets the simulated generation time. Zero generates immediately.
func WithDelay(d time.Duration) Option {
	return func(g *Generator) {
		if d >= 0 {
			g.delay = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithPicker replaces the random index source (tests).
func WithPicker(pick func(n int) int) Option {
	return func(g *Generator) {
		if pick != nil {
			g.pick = pick
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{
		delay:   DefaultDelay,
		timeout: DefaultTimeout,
		pick:    rand.IntN,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate starts producing a riddle. The future fails with the context error
// when the timeout elapses first, or async.ErrCancelled when cancelled.
func (g *Generator) Generate(ctx context.Context) *async.Future[string] {
	return async.Go(ctx, g.timeout, func(ctx context.Context) (string, error) {
		if g.delay > 0 {
			t := time.NewTimer(g.delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		riddle := Catalogue[g.pick(len(Catalogue))]
		g.logger.DebugContext(ctx, "puzzle generated", "length", len(riddle))
		return riddle, nil
	})
}
