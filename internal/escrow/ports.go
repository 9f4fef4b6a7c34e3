package escrow

import (
	"context"
	"errors"
)

// PaymentChannel is the external payment provider.
//
// Providers signal a retryable failure by wrapping ErrProviderUnavailable and
// an empty wallet with ErrInsufficientBalance; anything else is treated as
// permanent. Calls that move funds carry an idempotency key: a replayed key
// must not move funds again and must return the first outcome.
type PaymentChannel interface {
	// Debit removes amount from account, failing if the balance is short.
	Debit(ctx context.Context, key, account string, amount int64) error
	// Credit adds amount back to account.
	Credit(ctx context.Context, key, account string, amount int64) error
	// Pay sends amount to payee.
	Pay(ctx context.Context, key, payee string, amount int64) (Payment, error)
	Balance(ctx context.Context, account string) (int64, error)
	CreateInvoice(ctx context.Context, amount int64, memo string) (Invoice, error)
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
