// Package escrow reserves bounty rewards with a payment provider and settles
// each reservation exactly once, by payout or by refund.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"geosats/internal/escrow/metrics"
	id "geosats/pkg/domain"
	"geosats/pkg/platform/async"
	"geosats/pkg/platform/circuit"
	"geosats/pkg/platform/sentinel"
	"geosats/pkg/requestcontext"
)

const (
	DefaultProviderTimeout = 5 * time.Second
	DefaultMaxRetries      = 2
)

// Adapter wraps a PaymentChannel. Every provider call is bounded by a
// timeout, guarded by a circuit breaker and retried only when the provider
// reports itself unavailable.
type Adapter struct {
	provider   PaymentChannel
	handles    *HandleStore
	timeout    time.Duration
	maxRetries uint64
	newBackOff func() backoff.BackOff
	breaker    *circuit.Breaker
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Adapter)

func WithProviderTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

func WithMaxRetries(n uint64) Option {
	return func(a *Adapter) {
		a.maxRetries = n
	}
}

// WithBackOff replaces the retry schedule. Tests use a zero backoff.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(a *Adapter) {
		if fn != nil {
			a.newBackOff = fn
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(a *Adapter) {
		if b != nil {
			a.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) {
		a.metrics = m
	}
}

func WithHandleStore(s *HandleStore) Option {
	return func(a *Adapter) {
		if s != nil {
			a.handles = s
		}
	}
}

func New(provider PaymentChannel, opts ...Option) (*Adapter, error) {
	if provider == nil {
		return nil, errors.New("payment provider is required")
	}
	a := &Adapter{
		provider:   provider,
		handles:    NewHandleStore(),
		timeout:    DefaultProviderTimeout,
		maxRetries: DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 500 * time.Millisecond
			return b
		},
		breaker: circuit.New("payment-provider"),
		tracer:  otel.Tracer("geosats/escrow"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Lock debits creator by amount and records a handle for bountyID.
func (a *Adapter) Lock(ctx context.Context, creator string, amount int64, bountyID id.BountyID) (Handle, error) {
	ctx, span := a.tracer.Start(ctx, "escrow.Lock", trace.WithAttributes(
		attribute.String("bounty.id", bountyID.String()),
		attribute.Int64("escrow.amount", amount),
	))
	defer span.End()

	h, err := a.lock(ctx, creator, amount, bountyID)
	a.finish(ctx, span, "lock", err)
	return h, err
}

func (a *Adapter) lock(ctx context.Context, creator string, amount int64, bountyID id.BountyID) (Handle, error) {
	if amount <= 0 {
		return Handle{}, ErrInvalidAmount
	}
	h := Handle{
		ID:        id.NewEscrowID(),
		BountyID:  bountyID,
		Creator:   creator,
		Amount:    amount,
		State:     StateLocking,
		Op:        OpLock,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := a.handles.Create(ctx, h); err != nil {
		return Handle{}, fmt.Errorf("record escrow handle: %w", err)
	}
	if err := a.debit(ctx, h); err != nil {
		a.failLock(ctx, h, StateLocking, err)
		return Handle{}, err
	}
	locked, err := a.handles.Transition(ctx, h.ID, StateLocking, StateLocked, time.Time{})
	if err != nil {
		return Handle{}, fmt.Errorf("finalize lock: %w", err)
	}
	if a.metrics != nil {
		a.metrics.AddLocked(amount)
	}
	a.log(ctx, slog.LevelInfo, "escrow_locked", "escrow_id", h.ID.String(), "bounty_id", bountyID.String(), "amount", amount)
	return locked, nil
}

func (a *Adapter) debit(ctx context.Context, h Handle) error {
	return a.call(ctx, "debit", func(ctx context.Context) error {
		return a.provider.Debit(ctx, IdempotencyKey(h.ID, OpLock), h.Creator, h.Amount)
	})
}

// failLock parks a locking handle whose debit may have landed and drops one
// the provider refused. It reports whether the handle is now in doubt.
func (a *Adapter) failLock(ctx context.Context, h Handle, prior State, err error) bool {
	if afterFailure(prior, err) == StateInDoubt {
		a.markInDoubt(ctx, h.ID, StateLocking, OpLock, err)
		return true
	}
	a.handles.Delete(ctx, h.ID)
	return false
}

// Release pays the locked amount to payee and settles the handle. A second
// release or refund of the same handle fails with ErrAlreadySettled. A release
// left in doubt is replayed with its original idempotency key, so the payee is
// paid at most once.
func (a *Adapter) Release(ctx context.Context, escrowID id.EscrowID, payee string) (PayoutReceipt, error) {
	ctx, span := a.tracer.Start(ctx, "escrow.Release", trace.WithAttributes(
		attribute.String("escrow.id", escrowID.String()),
	))
	defer span.End()

	r, err := a.release(ctx, escrowID, payee)
	a.finish(ctx, span, "release", err)
	return r, err
}

func (a *Adapter) release(ctx context.Context, escrowID id.EscrowID, payee string) (PayoutReceipt, error) {
	h, prior, err := a.beginSettle(ctx, escrowID, OpRelease, payee)
	if err != nil {
		return PayoutReceipt{}, err
	}

	var payment Payment
	err = a.call(ctx, "pay", func(ctx context.Context) error {
		var perr error
		payment, perr = a.provider.Pay(ctx, IdempotencyKey(escrowID, OpRelease), payee, h.Amount)
		return perr
	})
	if err != nil {
		a.abortSettle(ctx, escrowID, prior, OpRelease, err)
		return PayoutReceipt{}, err
	}

	now := requestcontext.Now(ctx)
	if _, err := a.handles.Transition(ctx, escrowID, StateSettling, StateReleased, now); err != nil {
		return PayoutReceipt{}, fmt.Errorf("finalize release: %w", err)
	}
	if a.metrics != nil {
		a.metrics.AddLocked(-h.Amount)
	}
	a.log(ctx, slog.LevelInfo, "escrow_released", "escrow_id", escrowID.String(), "bounty_id", h.BountyID.String(), "payee", payee, "amount", h.Amount)
	return PayoutReceipt{
		EscrowID: escrowID,
		BountyID: h.BountyID,
		Payee:    payee,
		Amount:   h.Amount,
		Fee:      payment.Fee,
		Preimage: payment.Preimage,
		PaidAt:   now,
	}, nil
}

// Refund returns the locked amount to the creator and settles the handle.
func (a *Adapter) Refund(ctx context.Context, escrowID id.EscrowID) error {
	ctx, span := a.tracer.Start(ctx, "escrow.Refund", trace.WithAttributes(
		attribute.String("escrow.id", escrowID.String()),
	))
	defer span.End()

	err := a.refund(ctx, escrowID)
	a.finish(ctx, span, "refund", err)
	return err
}

func (a *Adapter) refund(ctx context.Context, escrowID id.EscrowID) error {
	h, prior, err := a.beginSettle(ctx, escrowID, OpRefund, "")
	if err != nil {
		return err
	}
	if err := a.call(ctx, "credit", func(ctx context.Context) error {
		return a.provider.Credit(ctx, IdempotencyKey(escrowID, OpRefund), h.Creator, h.Amount)
	}); err != nil {
		a.abortSettle(ctx, escrowID, prior, OpRefund, err)
		return err
	}
	if _, err := a.handles.Transition(ctx, escrowID, StateSettling, StateRefunded, requestcontext.Now(ctx)); err != nil {
		return fmt.Errorf("finalize refund: %w", err)
	}
	if a.metrics != nil {
		a.metrics.AddLocked(-h.Amount)
	}
	a.log(ctx, slog.LevelInfo, "escrow_refunded", "escrow_id", escrowID.String(), "bounty_id", h.BountyID.String(), "amount", h.Amount)
	return nil
}

// Reconcile replays every operation left in doubt with its original
// idempotency key. A lock in doubt has no bounty behind it, so once its debit
// is confirmed the funds go straight back to the creator. It returns the
// number of handles resolved.
func (a *Adapter) Reconcile(ctx context.Context) (int, error) {
	var (
		resolved int
		errs     []error
	)
	for _, h := range a.handles.InDoubt(ctx) {
		if err := ctx.Err(); err != nil {
			return resolved, err
		}
		var err error
		switch h.Op {
		case OpLock:
			err = a.reconcileLock(ctx, h)
		case OpRelease:
			_, err = a.release(ctx, h.ID, h.Payee)
		case OpRefund:
			err = a.refund(ctx, h.ID)
		}
		switch {
		case err == nil:
			resolved++
		case errors.Is(err, ErrAlreadySettled), errors.Is(err, ErrEscrowNotFound):
		default:
			errs = append(errs, fmt.Errorf("reconcile escrow %s: %w", h.ID, err))
		}
	}
	return resolved, errors.Join(errs...)
}

func (a *Adapter) reconcileLock(ctx context.Context, h Handle) error {
	if _, err := a.handles.Transition(ctx, h.ID, StateInDoubt, StateLocking, time.Time{}); err != nil {
		return translateStoreErr(err)
	}
	if err := a.debit(ctx, h); err != nil {
		if a.failLock(ctx, h, StateInDoubt, err) {
			return err
		}
		// the provider refused the replay, so the first debit never landed
		return nil
	}
	// the refund is owed from here on; park it so a failed credit is replayed
	// by the next pass rather than left locked with no bounty to claim it
	if _, err := a.handles.Park(ctx, h.ID, StateLocking, OpRefund); err != nil {
		return translateStoreErr(err)
	}
	if a.metrics != nil {
		a.metrics.AddLocked(h.Amount)
	}
	a.log(ctx, slog.LevelInfo, "escrow_lock_reconciled", "escrow_id", h.ID.String(), "bounty_id", h.BountyID.String(), "amount", h.Amount)
	return a.refund(ctx, h.ID)
}

// Get returns a copy of the handle.
func (a *Adapter) Get(ctx context.Context, escrowID id.EscrowID) (Handle, error) {
	h, err := a.handles.Get(ctx, escrowID)
	if err != nil {
		return Handle{}, translateStoreErr(err)
	}
	return h, nil
}

// Balance reports the provider balance for account.
func (a *Adapter) Balance(ctx context.Context, account string) (int64, error) {
	var bal int64
	err := a.call(ctx, "balance", func(ctx context.Context) error {
		var berr error
		bal, berr = a.provider.Balance(ctx, account)
		return berr
	})
	return bal, err
}

// RequestInvoice asks the provider for a payment request.
func (a *Adapter) RequestInvoice(ctx context.Context, amount int64, memo string) (Invoice, error) {
	if amount <= 0 {
		return Invoice{}, ErrInvalidAmount
	}
	var inv Invoice
	err := a.call(ctx, "invoice", func(ctx context.Context) error {
		var ierr error
		inv, ierr = a.provider.CreateInvoice(ctx, amount, memo)
		return ierr
	})
	return inv, err
}

// LockedTotal sums the amounts currently held for bounties.
func (a *Adapter) LockedTotal(ctx context.Context) int64 {
	return a.handles.LockedTotal(ctx)
}

func (a *Adapter) beginSettle(ctx context.Context, escrowID id.EscrowID, op Op, payee string) (Handle, State, error) {
	h, prior, err := a.handles.Begin(ctx, escrowID, op, payee)
	if err != nil {
		return Handle{}, prior, translateStoreErr(err)
	}
	return h, prior, nil
}

// abortSettle moves a handle out of settling after a failed provider call:
// back to locked when the provider proves nothing moved, otherwise in doubt.
func (a *Adapter) abortSettle(ctx context.Context, escrowID id.EscrowID, prior State, op Op, err error) {
	if afterFailure(prior, err) == StateInDoubt {
		a.markInDoubt(ctx, escrowID, StateSettling, op, err)
		return
	}
	if _, terr := a.handles.Transition(ctx, escrowID, StateSettling, StateLocked, time.Time{}); terr != nil {
		a.log(ctx, slog.LevelError, "escrow_abort_failed", "escrow_id", escrowID.String(), "error", terr)
	}
}

func (a *Adapter) markInDoubt(ctx context.Context, escrowID id.EscrowID, from State, op Op, cause error) {
	if _, err := a.handles.Park(ctx, escrowID, from, op); err != nil {
		a.log(ctx, slog.LevelError, "escrow_abort_failed", "escrow_id", escrowID.String(), "error", err)
		return
	}
	a.log(ctx, slog.LevelWarn, "escrow_in_doubt", "escrow_id", escrowID.String(), "op", string(op), "error", cause)
}

// afterFailure decides where a handle goes when a provider call fails. A call
// that timed out or was cancelled may still have landed. A replay of such a
// call proves nothing while the provider is unavailable; only an explicit
// refusal shows the key was never applied.
func afterFailure(prior State, err error) State {
	if ambiguous(err) {
		return StateInDoubt
	}
	if prior == StateInDoubt && errors.Is(err, ErrProviderUnavailable) {
		return StateInDoubt
	}
	return StateLocked
}

func ambiguous(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, async.ErrCancelled)
}

// call runs one provider operation with timeout, breaker and retry.
func (a *Adapter) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if !a.breaker.Allow() {
		return fmt.Errorf("%w: circuit open", ErrProviderUnavailable)
	}

	op := func() error {
		start := time.Now()
		f := async.Go(ctx, a.timeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
		defer f.Cancel()
		// bounded even if the provider ignores cancellation
		actx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		_, err := f.Await(actx)
		if a.metrics != nil {
			a.metrics.ObserveProviderCall(name, start)
		}
		if err == nil {
			return nil
		}
		err = classifyProviderErr(err)
		// a timed out call may still have landed; the handle goes in doubt
		// and Reconcile replays it instead
		if !isRetryable(err) || ambiguous(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), a.maxRetries), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		if a.metrics != nil {
			a.metrics.IncrementRetries()
		}
		a.log(ctx, slog.LevelWarn, "payment_provider_retry", "call", name, "wait", wait, "error", err)
	})

	if ctx.Err() != nil {
		// the caller gave up; that says nothing about provider health
		return err
	}
	if errors.Is(err, ErrProviderUnavailable) {
		if _, change := a.breaker.RecordFailure(); change.Opened && a.metrics != nil {
			a.metrics.SetCircuitOpen(true)
		}
	} else {
		if _, change := a.breaker.RecordSuccess(); change.Closed && a.metrics != nil {
			a.metrics.SetCircuitOpen(false)
		}
	}
	return err
}

func classifyProviderErr(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrProviderUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.Is(err, async.ErrCancelled):
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	default:
		return err
	}
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrEscrowNotFound, err)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return fmt.Errorf("%w: %w", ErrAlreadySettled, err)
	case errors.Is(err, sentinel.ErrInvalidState):
		return fmt.Errorf("%w: %w", ErrSettlementInDoubt, err)
	default:
		return err
	}
}

func (a *Adapter) finish(ctx context.Context, span trace.Span, op string, err error) {
	if a.metrics != nil {
		a.metrics.RecordOperation(op, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.log(ctx, slog.LevelWarn, "escrow_"+op+"_failed", "error", err)
	}
}

func (a *Adapter) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if a.logger == nil {
		return
	}
	if rid := requestcontext.RequestID(ctx); rid != "" {
		args = append(args, "request_id", rid)
	}
	a.logger.Log(ctx, level, msg, args...)
}
