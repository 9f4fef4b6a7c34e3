package positioning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"geosats/internal/geo"
)

// scriptedSource counts Current calls and returns a scripted result.
type scriptedSource struct {
	calls   atomic.Int32
	delay   time.Duration
	fix     Fix
	err     error
	updates chan Update
}

func (s *scriptedSource) Current(ctx context.Context, _ time.Duration) (Fix, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return Fix{}, ctx.Err()
		}
	}
	return s.fix, s.err
}

func (s *scriptedSource) Subscribe(ctx context.Context, _ time.Duration) (<-chan Update, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.updates, nil
}

type AdapterSuite struct {
	suite.Suite
	now time.Time
}

func TestAdapterSuite(t *testing.T) {
	suite.Run(t, new(AdapterSuite))
}

func (s *AdapterSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *AdapterSuite) clock() time.Time { return s.now }

func (s *AdapterSuite) fixAt(lat, lng float64, at time.Time) Fix {
	return Fix{Coordinate: geo.Coordinate{Latitude: lat, Longitude: lng}, Timestamp: at}
}

func (s *AdapterSuite) TestCurrentLocation() {
	ctx := context.Background()

	s.Run("nil source is unsupported", func() {
		a := NewAdapter(nil)
		_, err := a.CurrentLocation(ctx)
		s.ErrorIs(err, ErrUnsupported)

		_, err = a.Watch(ctx, func(Fix) {}, nil)
		s.ErrorIs(err, ErrUnsupported)
	})

	s.Run("returns source coordinate", func() {
		src := &scriptedSource{fix: s.fixAt(37.7749, -122.4194, s.now)}
		a := NewAdapter(src, WithClock(s.clock))

		loc, err := a.CurrentLocation(ctx)
		s.Require().NoError(err)
		s.Equal(37.7749, loc.Latitude)
		s.Equal(-122.4194, loc.Longitude)
	})

	s.Run("fresh cached fix skips the source", func() {
		src := &scriptedSource{fix: s.fixAt(1, 1, s.now)}
		a := NewAdapter(src, WithClock(s.clock), WithMaxAge(time.Minute))

		_, err := a.CurrentFix(ctx)
		s.Require().NoError(err)
		_, err = a.CurrentFix(ctx)
		s.Require().NoError(err)
		s.Equal(int32(1), src.calls.Load())
	})

	s.Run("stale cached fix queries the source again", func() {
		src := &scriptedSource{fix: s.fixAt(1, 1, s.now.Add(-2*time.Minute))}
		a := NewAdapter(src, WithClock(s.clock), WithMaxAge(time.Minute))

		_, err := a.CurrentFix(ctx)
		s.Require().NoError(err)
		_, err = a.CurrentFix(ctx)
		s.Require().NoError(err)
		s.Equal(int32(2), src.calls.Load())
	})

	s.Run("slow source times out", func() {
		src := &scriptedSource{delay: time.Second}
		a := NewAdapter(src, WithTimeout(20*time.Millisecond))

		_, err := a.CurrentLocation(ctx)
		s.ErrorIs(err, ErrTimeout)
	})

	s.Run("permission denial passes through", func() {
		src := &scriptedSource{err: ErrPermissionDenied}
		a := NewAdapter(src)

		_, err := a.CurrentLocation(ctx)
		s.ErrorIs(err, ErrPermissionDenied)
	})

	s.Run("unknown source error is unavailable", func() {
		src := &scriptedSource{err: errors.New("gps chip on fire")}
		a := NewAdapter(src)

		_, err := a.CurrentLocation(ctx)
		s.ErrorIs(err, ErrUnavailable)
	})

	s.Run("concurrent lookups share one query", func() {
		src := &scriptedSource{fix: s.fixAt(2, 2, s.now), delay: 50 * time.Millisecond}
		a := NewAdapter(src, WithClock(s.clock))

		var g errgroup.Group
		for range 8 {
			g.Go(func() error {
				_, err := a.CurrentFix(ctx)
				return err
			})
		}
		s.Require().NoError(g.Wait())
		s.Equal(int32(1), src.calls.Load())
	})
}

func (s *AdapterSuite) TestWatch() {
	s.Run("delivers fixes in order and drops older ones", func() {
		updates := make(chan Update, 4)
		src := &scriptedSource{updates: updates}
		a := NewAdapter(src, WithClock(s.clock))

		var mu sync.Mutex
		var got []Fix
		delivered := make(chan struct{}, 4)
		sub, err := a.Watch(context.Background(), func(f Fix) {
			mu.Lock()
			got = append(got, f)
			mu.Unlock()
			delivered <- struct{}{}
		}, nil)
		s.Require().NoError(err)

		updates <- Update{Fix: s.fixAt(1, 1, s.now.Add(-10*time.Second))}
		updates <- Update{Fix: s.fixAt(2, 2, s.now.Add(-20*time.Second))}
		updates <- Update{Fix: s.fixAt(3, 3, s.now)}
		<-delivered
		<-delivered

		sub.Cancel()
		<-sub.Done()

		mu.Lock()
		defer mu.Unlock()
		s.Require().Len(got, 2)
		s.Equal(1.0, got[0].Coordinate.Latitude)
		s.Equal(3.0, got[1].Coordinate.Latitude)
	})

	s.Run("errors go to the error callback", func() {
		updates := make(chan Update, 1)
		src := &scriptedSource{updates: updates}
		a := NewAdapter(src, WithClock(s.clock))

		errs := make(chan error, 1)
		sub, err := a.Watch(context.Background(), func(Fix) {}, func(err error) { errs <- err })
		s.Require().NoError(err)
		defer sub.Cancel()

		updates <- Update{Err: ErrPermissionDenied}
		s.ErrorIs(<-errs, ErrPermissionDenied)
	})

	s.Run("cancel from inside a callback stops delivery", func() {
		src := NewManualSource(s.clock)
		a := NewAdapter(src, WithClock(s.clock))

		var count atomic.Int32
		var sub *Subscription
		ready := make(chan struct{})
		sub, err := a.Watch(context.Background(), func(Fix) {
			<-ready
			count.Add(1)
			sub.Cancel()
			sub.Cancel()
		}, nil)
		s.Require().NoError(err)
		close(ready)

		src.Push(s.fixAt(1, 1, s.now))
		<-sub.Done()
		src.Push(s.fixAt(2, 2, s.now.Add(time.Second)))

		s.Equal(int32(1), count.Load())
	})

	s.Run("watched fixes refresh the one-shot cache", func() {
		src := NewManualSource(s.clock)
		a := NewAdapter(src, WithClock(s.clock))

		delivered := make(chan struct{}, 1)
		sub, err := a.Watch(context.Background(), func(Fix) { delivered <- struct{}{} }, nil)
		s.Require().NoError(err)
		defer sub.Cancel()

		src.Push(s.fixAt(9, 9, s.now))
		<-delivered

		loc, err := a.CurrentLocation(context.Background())
		s.Require().NoError(err)
		s.Equal(9.0, loc.Latitude)
	})
}

func (s *AdapterSuite) TestManualSource() {
	s.Run("current waits for the next push", func() {
		src := NewManualSource(s.clock)
		done := make(chan Fix, 1)
		go func() {
			fix, err := src.Current(context.Background(), time.Minute)
			if err == nil {
				done <- fix
			}
		}()

		s.Eventually(func() bool {
			src.mu.Lock()
			defer src.mu.Unlock()
			return len(src.waiters) == 1
		}, time.Second, 5*time.Millisecond)
		src.Push(s.fixAt(4, 4, s.now))
		s.Equal(4.0, (<-done).Coordinate.Latitude)
	})

	s.Run("current honours context", func() {
		src := NewManualSource(s.clock)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := src.Current(ctx, time.Minute)
		s.ErrorIs(err, context.DeadlineExceeded)
	})

	s.Run("older pushes are ignored", func() {
		src := NewManualSource(s.clock)
		src.Push(s.fixAt(1, 1, s.now))
		src.Push(s.fixAt(2, 2, s.now.Add(-time.Second)))
		last, ok := src.Last()
		s.Require().True(ok)
		s.Equal(1.0, last.Coordinate.Latitude)
	})
}
