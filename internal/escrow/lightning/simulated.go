// Package lightning provides a simulated Lightning wallet that stands in for a
// real node. Balances live in memory; every account starts funded. Transfers
// are idempotent per key, like a node deduplicating on payment hash.
package lightning

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"geosats/internal/escrow"
)

const (
	DefaultStartingBalance int64 = 25000
	DefaultFee             int64 = 1
)

// Simulated implements escrow.PaymentChannel.
type Simulated struct {
	startingBalance int64
	fee             int64
	latency         time.Duration
	now             func() time.Time

	mu         sync.Mutex
	balances   map[string]int64
	applied    map[string]escrow.Payment
	available  bool
	replyDelay time.Duration
}

type Option func(*Simulated)

func WithStartingBalance(sats int64) Option {
	return func(s *Simulated) {
		if sats >= 0 {
			s.startingBalance = sats
		}
	}
}

func WithFee(sats int64) Option {
	return func(s *Simulated) {
		if sats >= 0 {
			s.fee = sats
		}
	}
}

// WithLatency delays every call, honouring context cancellation.
func WithLatency(d time.Duration) Option {
	return func(s *Simulated) {
		s.latency = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Simulated) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSimulated(opts ...Option) *Simulated {
	s := &Simulated{
		startingBalance: DefaultStartingBalance,
		fee:             DefaultFee,
		now:             time.Now,
		balances:        make(map[string]int64),
		applied:         make(map[string]escrow.Payment),
		available:       true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAvailable toggles a simulated outage.
func (s *Simulated) SetAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = ok
}

// SetReplyDelay holds back every answer to a transfer by d after the transfer
// has been applied, ignoring cancellation. It simulates a reply lost in
// transit.
func (s *Simulated) SetReplyDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyDelay = d
}

func (s *Simulated) Debit(ctx context.Context, key, account string, amount int64) error {
	_, err := s.transfer(ctx, key, func() (escrow.Payment, error) {
		bal := s.balanceLocked(account)
		if bal < amount {
			return escrow.Payment{}, fmt.Errorf("%w: have %d sats, need %d", escrow.ErrInsufficientBalance, bal, amount)
		}
		s.balances[account] = bal - amount
		return escrow.Payment{}, nil
	})
	return err
}

func (s *Simulated) Credit(ctx context.Context, key, account string, amount int64) error {
	_, err := s.transfer(ctx, key, func() (escrow.Payment, error) {
		s.balances[account] = s.balanceLocked(account) + amount
		return escrow.Payment{}, nil
	})
	return err
}

// Pay credits payee with amount less the routing fee.
func (s *Simulated) Pay(ctx context.Context, key, payee string, amount int64) (escrow.Payment, error) {
	preimage, _, err := newPreimage()
	if err != nil {
		return escrow.Payment{}, err
	}
	return s.transfer(ctx, key, func() (escrow.Payment, error) {
		fee := min(s.fee, amount)
		s.balances[payee] = s.balanceLocked(payee) + amount - fee
		return escrow.Payment{Preimage: preimage, Fee: fee}, nil
	})
}

// transfer applies fn once per key. A replayed key returns the recorded
// outcome without moving funds; refused transfers are not recorded.
func (s *Simulated) transfer(ctx context.Context, key string, fn func() (escrow.Payment, error)) (escrow.Payment, error) {
	if err := s.wait(ctx); err != nil {
		return escrow.Payment{}, err
	}
	s.mu.Lock()
	p, done := s.applied[key]
	if !done {
		var err error
		if p, err = fn(); err != nil {
			s.mu.Unlock()
			return escrow.Payment{}, err
		}
		if key != "" {
			s.applied[key] = p
		}
	}
	delay := s.replyDelay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return p, nil
}

func (s *Simulated) Balance(ctx context.Context, account string) (int64, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(account), nil
}

func (s *Simulated) CreateInvoice(ctx context.Context, amount int64, memo string) (escrow.Invoice, error) {
	if err := s.wait(ctx); err != nil {
		return escrow.Invoice{}, err
	}
	_, hash, err := newPreimage()
	if err != nil {
		return escrow.Invoice{}, err
	}
	return escrow.Invoice{
		PaymentRequest: fmt.Sprintf("lnbc%dn1p%s", amount, hash[:20]),
		PaymentHash:    hash,
		Amount:         amount,
		Memo:           memo,
		CreatedAt:      s.now(),
	}, nil
}

// balanceLocked opens the account on first touch. Callers hold s.mu.
func (s *Simulated) balanceLocked(account string) int64 {
	bal, ok := s.balances[account]
	if !ok {
		bal = s.startingBalance
		s.balances[account] = bal
	}
	return bal
}

func (s *Simulated) wait(ctx context.Context) error {
	s.mu.Lock()
	up := s.available
	s.mu.Unlock()
	if !up {
		return fmt.Errorf("%w: simulated outage", escrow.ErrProviderUnavailable)
	}
	if s.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newPreimage() (preimage, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate preimage: %w", err)
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(buf), hex.EncodeToString(sum[:]), nil
}
