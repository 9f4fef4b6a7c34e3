package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"geosats/internal/bounty/models"
	"geosats/internal/bounty/store"
	"geosats/internal/escrow"
	"geosats/internal/geo"
	id "geosats/pkg/domain"
	dErrors "geosats/pkg/domain-errors"
	"geosats/pkg/platform/sentinel"
	"geosats/pkg/requestcontext"
)

// fakeEscrow records locks and refunds and can be told to fail.
type fakeEscrow struct {
	mu        sync.Mutex
	locked    map[id.EscrowID]int64
	refunded  []id.EscrowID
	lockErr   error
	refundErr error
}

func newFakeEscrow() *fakeEscrow {
	return &fakeEscrow{locked: make(map[id.EscrowID]int64)}
}

func (f *fakeEscrow) Lock(_ context.Context, creator string, amount int64, bountyID id.BountyID) (escrow.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return escrow.Handle{}, f.lockErr
	}
	h := escrow.Handle{ID: id.NewEscrowID(), BountyID: bountyID, Creator: creator, Amount: amount, State: escrow.StateLocked}
	f.locked[h.ID] = amount
	return h, nil
}

func (f *fakeEscrow) Refund(_ context.Context, escrowID id.EscrowID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return f.refundErr
	}
	if _, ok := f.locked[escrowID]; !ok {
		return escrow.ErrEscrowNotFound
	}
	delete(f.locked, escrowID)
	f.refunded = append(f.refunded, escrowID)
	return nil
}

func (f *fakeEscrow) lockedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.locked)
}

// failingStore rejects every insert.
type failingStore struct {
	*store.InMemory
}

func (failingStore) Create(context.Context, *models.Bounty) error {
	return errors.New("disk full")
}

type RegistrySuite struct {
	suite.Suite
	store    *store.InMemory
	escrow   *fakeEscrow
	registry *Registry
	ctx      context.Context
	now      time.Time
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.store = store.New()
	s.escrow = newFakeEscrow()
	var err error
	s.registry, err = New(s.store, s.escrow)
	s.Require().NoError(err)
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *RegistrySuite) request(reward int64) models.CreateBountyRequest {
	return models.CreateBountyRequest{
		Title:       "Times Square Challenge",
		Description: "Find the QR code",
		Reward:      reward,
		Difficulty:  models.DifficultyHard,
		Location:    geo.Coordinate{Latitude: 40.7580, Longitude: -73.9855},
	}
}

func (s *RegistrySuite) create(reward int64) *models.Bounty {
	b, err := s.registry.Create(s.ctx, s.request(reward), "creator")
	s.Require().NoError(err)
	return b
}

func (s *RegistrySuite) TestNew() {
	_, err := New(nil, s.escrow)
	s.Error(err)
	_, err = New(s.store, nil)
	s.Error(err)
}

func (s *RegistrySuite) TestCreate() {
	s.Run("locks escrow and stores an active bounty", func() {
		b := s.create(5000)
		s.Equal(models.StatusActive, b.Status)
		s.Equal(s.now, b.CreatedAt)
		s.Require().NotNil(b.EscrowID)

		got, err := s.registry.Get(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(*b.EscrowID, *got.EscrowID)
	})

	s.Run("invalid reward never touches escrow", func() {
		before := s.escrow.lockedCount()
		_, err := s.registry.Create(s.ctx, s.request(0), "creator")
		s.ErrorIs(err, models.ErrInvalidReward)
		s.Equal(before, s.escrow.lockedCount())
	})

	s.Run("failed lock registers nothing", func() {
		s.escrow.lockErr = escrow.ErrInsufficientBalance
		defer func() { s.escrow.lockErr = nil }()

		before := s.store.Len()
		_, err := s.registry.Create(s.ctx, s.request(100), "creator")
		s.ErrorIs(err, escrow.ErrInsufficientBalance)
		s.Equal(before, s.store.Len())
	})

	s.Run("failed insert refunds the lock", func() {
		esc := newFakeEscrow()
		r, err := New(failingStore{store.New()}, esc)
		s.Require().NoError(err)

		_, err = r.Create(s.ctx, s.request(100), "creator")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal(0, esc.lockedCount())
		s.Len(esc.refunded, 1)
	})
}

func (s *RegistrySuite) TestList() {
	a := s.create(100)
	b := s.create(200)
	_, err := s.registry.TransitionToClaimed(s.ctx, b.ID, "hunter")
	s.Require().NoError(err)

	active := s.registry.List(s.ctx, models.ListFilter{Status: models.StatusActive})
	var ids []id.BountyID
	for x := range active {
		ids = append(ids, x.ID)
	}
	s.Equal([]id.BountyID{a.ID}, ids)

	s.Run("re-evaluated on each pass", func() {
		c := s.create(300)
		ids = ids[:0]
		for x := range active {
			ids = append(ids, x.ID)
		}
		s.Equal([]id.BountyID{a.ID, c.ID}, ids)
	})

	s.Run("radius filter", func() {
		far := geo.Coordinate{Latitude: 37.7749, Longitude: -122.4194}
		n := 0
		for range s.registry.List(s.ctx, models.ListFilter{Near: &far, RadiusKm: 10}) {
			n++
		}
		s.Zero(n)
	})
}

func (s *RegistrySuite) TestGet() {
	_, err := s.registry.Get(s.ctx, id.NewBountyID())
	s.ErrorIs(err, ErrNotFound)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistrySuite) TestTransitionToClaimed() {
	s.Run("sets claimer", func() {
		b := s.create(100)
		got, err := s.registry.TransitionToClaimed(s.ctx, b.ID, "hunter")
		s.Require().NoError(err)
		s.Equal(models.StatusClaimed, got.Status)
		s.Equal("hunter", got.ClaimedBy)

		status, err := s.registry.Status(s.ctx, b.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusClaimed, status)
	})

	s.Run("second claim is invalid state", func() {
		b := s.create(100)
		_, err := s.registry.TransitionToClaimed(s.ctx, b.ID, "first")
		s.Require().NoError(err)
		_, err = s.registry.TransitionToClaimed(s.ctx, b.ID, "second")
		s.ErrorIs(err, ErrInvalidState)

		got, _ := s.registry.Get(s.ctx, b.ID)
		s.Equal("first", got.ClaimedBy)
	})

	s.Run("overdue bounty cannot be won before the sweep", func() {
		req := s.request(100)
		exp := s.now.Add(time.Minute)
		req.ExpiresAt = &exp
		b, err := s.registry.Create(s.ctx, req, "creator")
		s.Require().NoError(err)

		_, err = s.registry.TransitionToClaimed(requestcontext.WithTime(context.Background(), exp), b.ID, "late")
		s.ErrorIs(err, ErrInvalidState)
		s.ErrorIs(err, sentinel.ErrExpired)

		got, _ := s.registry.Get(s.ctx, b.ID)
		s.Equal(models.StatusActive, got.Status)
		s.Empty(got.ClaimedBy)
	})

	s.Run("unknown id", func() {
		_, err := s.registry.TransitionToClaimed(s.ctx, id.NewBountyID(), "x")
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("concurrent claimants have one winner", func() {
		b := s.create(100)
		var wins, lost atomic.Int32
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.registry.TransitionToClaimed(s.ctx, b.ID, "hunter")
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, ErrInvalidState):
					lost.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), wins.Load())
		s.Equal(int32(49), lost.Load())
	})
}

func (s *RegistrySuite) TestCancel() {
	s.Run("creator cancels and escrow is refunded", func() {
		b := s.create(100)
		got, err := s.registry.Cancel(s.ctx, b.ID, "creator")
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, got.Status)
		s.Nil(got.EscrowID)
		s.Contains(s.escrow.refunded, *b.EscrowID)
	})

	s.Run("someone else cannot cancel", func() {
		b := s.create(100)
		_, err := s.registry.Cancel(s.ctx, b.ID, "stranger")
		s.ErrorIs(err, ErrNotCreator)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("claimed bounty cannot be cancelled", func() {
		b := s.create(100)
		_, err := s.registry.TransitionToClaimed(s.ctx, b.ID, "hunter")
		s.Require().NoError(err)
		_, err = s.registry.Cancel(s.ctx, b.ID, "creator")
		s.ErrorIs(err, ErrInvalidState)
	})
}

func (s *RegistrySuite) TestExpireDue() {
	req := s.request(100)
	exp := s.now.Add(time.Hour)
	req.ExpiresAt = &exp
	due, err := s.registry.Create(s.ctx, req, "creator")
	s.Require().NoError(err)
	open := s.create(100)

	expired, err := s.registry.ExpireDue(s.ctx)
	s.Require().NoError(err)
	s.Empty(expired)

	later := requestcontext.WithTime(context.Background(), exp)
	s.Run("refund failure keeps the escrow reference for retry", func() {
		s.escrow.refundErr = escrow.ErrProviderUnavailable
		expired, err := s.registry.ExpireDue(later)
		s.Error(err)
		s.Require().Len(expired, 1)
		s.Equal(due.ID, expired[0].ID)
		s.Equal(models.StatusExpired, expired[0].Status)
		s.NotNil(expired[0].EscrowID)
	})

	s.Run("next pass retries the refund", func() {
		s.escrow.refundErr = nil
		expired, err := s.registry.ExpireDue(later)
		s.Require().NoError(err)
		s.Empty(expired)

		got, err := s.registry.Get(s.ctx, due.ID)
		s.Require().NoError(err)
		s.Nil(got.EscrowID)
		s.Contains(s.escrow.refunded, *due.EscrowID)
	})

	got, err := s.registry.Get(s.ctx, open.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, got.Status)
}
