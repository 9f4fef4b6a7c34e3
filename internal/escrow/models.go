package escrow

import (
	"time"

	id "geosats/pkg/domain"
	dErrors "geosats/pkg/domain-errors"
)

var (
	ErrInsufficientBalance = dErrors.New(dErrors.CodePaymentRequired, "insufficient balance")
	ErrProviderUnavailable = dErrors.New(dErrors.CodeUnavailable, "payment provider unavailable")
	ErrEscrowNotFound      = dErrors.New(dErrors.CodeNotFound, "escrow not found")
	ErrAlreadySettled      = dErrors.New(dErrors.CodeConflict, "escrow already settled")
	ErrInvalidAmount       = dErrors.New(dErrors.CodeValidation, "amount must be positive")
	ErrSettlementInDoubt   = dErrors.New(dErrors.CodeConflict, "escrow settlement outcome unknown")
)

// State of a locked amount.
type State string

const (
	StateLocking  State = "locking"
	StateLocked   State = "locked"
	StateSettling State = "settling"
	// StateInDoubt marks a handle whose last provider call timed out or was
	// cancelled. Funds may or may not have moved; only the same operation,
	// replayed with the same idempotency key, may touch it again.
	StateInDoubt  State = "in_doubt"
	StateReleased State = "released"
	StateRefunded State = "refunded"
)

func (s State) IsSettled() bool {
	return s == StateReleased || s == StateRefunded
}

// Op is the provider operation a handle is waiting on.
type Op string

const (
	OpLock    Op = "lock"
	OpRelease Op = "release"
	OpRefund  Op = "refund"
)

// IdempotencyKey identifies one operation on one handle. Providers must apply
// a key at most once and answer a replay with the original outcome.
func IdempotencyKey(escrowID id.EscrowID, op Op) string {
	return escrowID.String() + ":" + string(op)
}

// Handle records funds debited from a creator and held for one bounty. Op and
// Payee describe the operation in flight or in doubt.
type Handle struct {
	ID        id.EscrowID `json:"id"`
	BountyID  id.BountyID `json:"bounty_id"`
	Creator   string      `json:"creator"`
	Amount    int64       `json:"amount"`
	State     State       `json:"state"`
	Op        Op          `json:"op,omitempty"`
	Payee     string      `json:"payee,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	SettledAt *time.Time  `json:"settled_at,omitempty"`
}

// PayoutReceipt is returned by a successful release.
type PayoutReceipt struct {
	EscrowID id.EscrowID `json:"escrow_id"`
	BountyID id.BountyID `json:"bounty_id"`
	Payee    string      `json:"payee"`
	Amount   int64       `json:"amount"`
	Fee      int64       `json:"fee"`
	Preimage string      `json:"preimage"`
	PaidAt   time.Time   `json:"paid_at"`
}

// Invoice is a payment request issued by the provider.
type Invoice struct {
	PaymentRequest string    `json:"payment_request"`
	PaymentHash    string    `json:"payment_hash"`
	Amount         int64     `json:"amount"`
	Memo           string    `json:"memo,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Payment is the provider's record of a completed transfer.
type Payment struct {
	Preimage string
	Fee      int64
}
