package escrow

import (
	"context"

	"washflow/models"
)

// HoldRequest places funds in escrow for an order.
type HoldRequest struct {
	OrderID    string
	Amount     int64
	Currency   string
	PaymentRef string
}

// Ledger is the escrow state machine: pending -> held -> captured|refunded|frozen,
// frozen -> captured|refunded.
type Ledger interface {
	// Hold is idempotent on the order id.
	Hold(ctx context.Context, req HoldRequest) (*models.EscrowTransaction, error)
	// Capture takes amount (0 = everything held). A capture below the held
	// amount releases the remainder back to the payer.
	Capture(ctx context.Context, txID string, amount int64, opts ...CallOption) (*models.EscrowTransaction, error)
	// Refund returns amount (0 = everything held) to the payer.
	Refund(ctx context.Context, txID string, amount int64, reason string, opts ...CallOption) (*models.EscrowTransaction, error)
	Freeze(ctx context.Context, txID, reason string) (*models.EscrowTransaction, error)
	GetStatus(ctx context.Context, txID string) (*models.EscrowTransaction, error)
	GetByOrder(ctx context.Context, orderID string) (*models.EscrowTransaction, error)
	// History returns the ledger entries of a transaction, oldest first.
	History(ctx context.Context, txID string) ([]models.LedgerEntry, error)
}

type callOptions struct {
	key            string
	disputeRelease bool
}

type CallOption func(*callOptions)

// WithIdempotencyKey makes a retried call with the same key a no-op.
func WithIdempotencyKey(key string) CallOption {
	return func(o *callOptions) { o.key = key }
}

// WithDisputeRelease lets a dispute resolution move money out of a frozen transaction.
func WithDisputeRelease() CallOption {
	return func(o *callOptions) { o.disputeRelease = true }
}

func collect(opts []CallOption) callOptions {
	var o callOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
