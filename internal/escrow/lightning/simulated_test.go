package lightning

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geosats/internal/escrow"
)

func TestSimulated_Balances(t *testing.T) {
	ctx := context.Background()
	s := NewSimulated()

	bal, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, DefaultStartingBalance, bal)

	require.NoError(t, s.Debit(ctx, "k1", "alice", 5000))
	bal, _ = s.Balance(ctx, "alice")
	assert.Equal(t, int64(20000), bal)

	err = s.Debit(ctx, "k2", "alice", 20001)
	assert.ErrorIs(t, err, escrow.ErrInsufficientBalance)
	bal, _ = s.Balance(ctx, "alice")
	assert.Equal(t, int64(20000), bal)

	require.NoError(t, s.Credit(ctx, "k3", "alice", 5000))
	bal, _ = s.Balance(ctx, "alice")
	assert.Equal(t, DefaultStartingBalance, bal)
}

func TestSimulated_PayDeductsFee(t *testing.T) {
	ctx := context.Background()
	s := NewSimulated(WithStartingBalance(0), WithFee(1))

	p, err := s.Pay(ctx, "k1", "bob", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Fee)
	assert.Len(t, p.Preimage, 64)

	bal, _ := s.Balance(ctx, "bob")
	assert.Equal(t, int64(99), bal)
}

func TestSimulated_Invoice(t *testing.T) {
	inv, err := NewSimulated().CreateInvoice(context.Background(), 2500, "bounty")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(inv.PaymentRequest, "lnbc2500"))
	assert.Len(t, inv.PaymentHash, 64)
	assert.Equal(t, "bounty", inv.Memo)
}

func TestSimulated_OutageAndLatency(t *testing.T) {
	s := NewSimulated(WithLatency(time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Debit(ctx, "k1", "a", 1), context.DeadlineExceeded)

	s = NewSimulated()
	s.SetAvailable(false)
	assert.ErrorIs(t, s.Credit(context.Background(), "k1", "a", 1), escrow.ErrProviderUnavailable)
}

func TestSimulated_ReplayedKeyMovesFundsOnce(t *testing.T) {
	ctx := context.Background()
	s := NewSimulated(WithFee(1))

	first, err := s.Pay(ctx, "escrow-1:release", "bob", 100)
	require.NoError(t, err)
	again, err := s.Pay(ctx, "escrow-1:release", "bob", 100)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, s.Debit(ctx, "escrow-2:lock", "alice", 500))
	require.NoError(t, s.Debit(ctx, "escrow-2:lock", "alice", 500))

	bob, _ := s.Balance(ctx, "bob")
	alice, _ := s.Balance(ctx, "alice")
	assert.Equal(t, DefaultStartingBalance+99, bob)
	assert.Equal(t, DefaultStartingBalance-500, alice)
}

func TestSimulated_RefusedKeyCanBeRetried(t *testing.T) {
	ctx := context.Background()
	s := NewSimulated(WithStartingBalance(100))

	assert.ErrorIs(t, s.Debit(ctx, "k", "alice", 150), escrow.ErrInsufficientBalance)
	require.NoError(t, s.Credit(ctx, "top-up", "alice", 50))
	require.NoError(t, s.Debit(ctx, "k", "alice", 150))

	bal, _ := s.Balance(ctx, "alice")
	assert.Zero(t, bal)
}

func TestSimulated_LateReplyStillApplies(t *testing.T) {
	s := NewSimulated(WithFee(0))
	s.SetReplyDelay(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := s.Pay(ctx, "k", "bob", 10)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	s.SetReplyDelay(0)
	bal, _ := s.Balance(context.Background(), "bob")
	assert.Equal(t, DefaultStartingBalance+10, bal)
}
