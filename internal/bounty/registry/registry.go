// Package registry owns every bounty record and its lifecycle transitions.
// Funds are locked before a bounty becomes visible and refunded when it closes
// without a winner.
package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"geosats/internal/bounty/models"
	"geosats/internal/escrow"
	id "geosats/pkg/domain"
	dErrors "geosats/pkg/domain-errors"
	"geosats/pkg/platform/sentinel"
	"geosats/pkg/requestcontext"
)

var (
	ErrNotFound     = dErrors.New(dErrors.CodeNotFound, "bounty not found")
	ErrInvalidState = dErrors.New(dErrors.CodeInvalidState, "bounty is not active")
	ErrNotCreator   = dErrors.New(dErrors.CodeForbidden, "only the creator can cancel a bounty")
)

// Store is the record storage the registry needs.
type Store interface {
	Create(ctx context.Context, b *models.Bounty) error
	FindByID(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error)
	All(ctx context.Context) iter.Seq[models.Bounty]
	Execute(ctx context.Context, bountyID id.BountyID, validate func(*models.Bounty) error, mutate func(*models.Bounty)) (*models.Bounty, error)
}

// Escrow is the subset of the escrow adapter used for lock and refund.
type Escrow interface {
	Lock(ctx context.Context, creator string, amount int64, bountyID id.BountyID) (escrow.Handle, error)
	Refund(ctx context.Context, escrowID id.EscrowID) error
}

type Registry struct {
	store  Store
	escrow Escrow
	logger *slog.Logger
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func New(store Store, esc Escrow, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, errors.New("bounty store is required")
	}
	if esc == nil {
		return nil, errors.New("escrow is required")
	}
	r := &Registry{store: store, escrow: esc}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Create builds an active bounty, locks its reward and only then stores it.
// A failed lock leaves nothing behind; a failed insert refunds the lock.
func (r *Registry) Create(ctx context.Context, req models.CreateBountyRequest, creator string) (*models.Bounty, error) {
	b, err := models.NewBounty(id.NewBountyID(), req, creator, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	h, err := r.escrow.Lock(ctx, creator, b.Reward, b.ID)
	if err != nil {
		return nil, err
	}
	b.EscrowID = &h.ID

	if err := r.store.Create(ctx, b); err != nil {
		if rerr := r.escrow.Refund(context.WithoutCancel(ctx), h.ID); rerr != nil {
			r.logError(ctx, "escrow refund after failed create", rerr, "bounty_id", b.ID.String())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store bounty")
	}
	return b, nil
}

// List yields bounties matching filter in creation order. Each range over the
// returned sequence re-reads current state.
func (r *Registry) List(ctx context.Context, filter models.ListFilter) iter.Seq[models.Bounty] {
	return func(yield func(models.Bounty) bool) {
		for b := range r.store.All(ctx) {
			if !filter.Matches(&b) {
				continue
			}
			if !yield(b) {
				return
			}
		}
	}
}

func (r *Registry) Get(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	b, err := r.store.FindByID(ctx, bountyID)
	if err != nil {
		return nil, translateErr(err)
	}
	return b, nil
}

// Status reads the current status of a bounty.
func (r *Registry) Status(ctx context.Context, bountyID id.BountyID) (models.Status, error) {
	b, err := r.Get(ctx, bountyID)
	if err != nil {
		return "", err
	}
	return b.Status, nil
}

// TransitionToClaimed is the compare-and-set active -> claimed. Exactly one of
// any number of concurrent callers succeeds; the rest get ErrInvalidState. A
// bounty past its expiry cannot be won even before the sweeper closes it.
func (r *Registry) TransitionToClaimed(ctx context.Context, bountyID id.BountyID, claimer string) (*models.Bounty, error) {
	now := requestcontext.Now(ctx)
	b, err := r.store.Execute(ctx, bountyID,
		func(b *models.Bounty) error {
			if err := b.CanClaim(); err != nil {
				return fmt.Errorf("%w: %w", sentinel.ErrInvalidState, err)
			}
			if b.IsDue(now) {
				return fmt.Errorf("bounty passed its expiry: %w", sentinel.ErrExpired)
			}
			return nil
		},
		func(b *models.Bounty) {
			b.ApplyClaim(claimer, now)
		},
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return b, nil
}

// Cancel closes an active bounty on behalf of its creator and refunds the
// reward.
func (r *Registry) Cancel(ctx context.Context, bountyID id.BountyID, actor string) (*models.Bounty, error) {
	b, err := r.store.Execute(ctx, bountyID,
		func(b *models.Bounty) error {
			if b.Creator != actor {
				return ErrNotCreator
			}
			if err := b.CanClose(models.StatusCancelled); err != nil {
				return fmt.Errorf("%w: %w", sentinel.ErrInvalidState, err)
			}
			return nil
		},
		func(b *models.Bounty) {
			b.ApplyClose(models.StatusCancelled)
		},
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return r.refund(ctx, b)
}

// Expire closes an active bounty whose expiry has passed and refunds it.
func (r *Registry) Expire(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	now := requestcontext.Now(ctx)
	b, err := r.store.Execute(ctx, bountyID,
		func(b *models.Bounty) error {
			if !b.IsDue(now) {
				return fmt.Errorf("bounty is not due: %w", sentinel.ErrInvalidState)
			}
			return nil
		},
		func(b *models.Bounty) {
			b.ApplyClose(models.StatusExpired)
		},
	)
	if err != nil {
		return nil, translateErr(err)
	}
	return r.refund(ctx, b)
}

// ExpireDue expires every due bounty and retries refunds that failed earlier.
// It returns the bounties closed by this pass.
func (r *Registry) ExpireDue(ctx context.Context) ([]models.Bounty, error) {
	now := requestcontext.Now(ctx)
	var (
		expired []models.Bounty
		errs    []error
	)
	for b := range r.store.All(ctx) {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		switch {
		case b.IsDue(now):
			out, err := r.Expire(ctx, b.ID)
			if err != nil {
				if !errors.Is(err, ErrInvalidState) {
					errs = append(errs, err)
				}
				if out == nil {
					continue
				}
			}
			expired = append(expired, *out)
		case (b.Status == models.StatusExpired || b.Status == models.StatusCancelled) && b.EscrowID != nil:
			if _, err := r.refund(ctx, &b); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return expired, errors.Join(errs...)
}

// ClearEscrow drops the escrow reference once the funds are settled.
func (r *Registry) ClearEscrow(ctx context.Context, bountyID id.BountyID) error {
	_, err := r.store.Execute(ctx, bountyID,
		func(*models.Bounty) error { return nil },
		func(b *models.Bounty) { b.EscrowID = nil },
	)
	return translateErr(err)
}

// refund settles the escrow of a closed bounty. The bounty stays closed if the
// refund fails; its escrow reference is kept so a later pass can retry.
func (r *Registry) refund(ctx context.Context, b *models.Bounty) (*models.Bounty, error) {
	if b.EscrowID == nil {
		return b, nil
	}
	err := r.escrow.Refund(ctx, *b.EscrowID)
	if err != nil && !errors.Is(err, escrow.ErrAlreadySettled) {
		r.logError(ctx, "escrow refund failed", err, "bounty_id", b.ID.String())
		return b, err
	}
	if err := r.ClearEscrow(ctx, b.ID); err != nil {
		return b, err
	}
	b.EscrowID = nil
	return b, nil
}

func (r *Registry) logError(ctx context.Context, msg string, err error, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.ErrorContext(ctx, msg, append(args, "error", err)...)
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, sentinel.ErrInvalidState), errors.Is(err, sentinel.ErrExpired):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	default:
		return err
	}
}
