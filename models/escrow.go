package models

import "time"

type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowHeld     EscrowStatus = "held"
	EscrowCaptured EscrowStatus = "captured"
	EscrowRefunded EscrowStatus = "refunded"
	EscrowFrozen   EscrowStatus = "frozen"
)

type LedgerOp string

const (
	LedgerHold    LedgerOp = "hold"
	LedgerCapture LedgerOp = "capture"
	LedgerRefund  LedgerOp = "refund"
	LedgerFreeze  LedgerOp = "freeze"
	LedgerRelease LedgerOp = "release" // uncaptured remainder returned to the driver
)

// LedgerEntry is one logged escrow operation.
type LedgerEntry struct {
	Op             LedgerOp     `bson:"op" json:"op"`
	Amount         int64        `bson:"amount" json:"amount"`
	From           EscrowStatus `bson:"from" json:"from"`
	To             EscrowStatus `bson:"to" json:"to"`
	Reason         string       `bson:"reason,omitempty" json:"reason,omitempty"`
	IdempotencyKey string       `bson:"idempotencyKey,omitempty" json:"idempotencyKey,omitempty"`
	At             time.Time    `bson:"at" json:"at"`
}

// EscrowTransaction is the mock-ledger record for one order. Amounts are in
// minor currency units; Amount is what is currently held (or captured).
type EscrowTransaction struct {
	ID             string        `bson:"id" json:"id"`
	OrderID        string        `bson:"orderId" json:"orderId"`
	IdempotencyKey string        `bson:"idempotencyKey" json:"idempotencyKey"`
	PaymentRef     string        `bson:"paymentRef" json:"paymentRef"` // mock card or wallet token
	Currency       string        `bson:"currency" json:"currency"`
	Amount         int64         `bson:"amount" json:"amount"`
	OriginalAmount int64         `bson:"originalAmount" json:"originalAmount"`
	CapturedAmount int64         `bson:"capturedAmount" json:"capturedAmount"`
	RefundedAmount int64         `bson:"refundedAmount" json:"refundedAmount"`
	Status         EscrowStatus  `bson:"status" json:"status"`
	FreezeReason   string        `bson:"freezeReason,omitempty" json:"freezeReason,omitempty"`
	HeldAt         *time.Time    `bson:"heldAt,omitempty" json:"heldAt,omitempty"`
	CapturedAt     *time.Time    `bson:"capturedAt,omitempty" json:"capturedAt,omitempty"`
	RefundedAt     *time.Time    `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`
	FrozenAt       *time.Time    `bson:"frozenAt,omitempty" json:"frozenAt,omitempty"`
	Log            []LedgerEntry `bson:"log" json:"log"`
	Version        int           `bson:"version" json:"version"`
	CreatedAt      time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// HasKey reports whether an operation with this idempotency key was already applied.
func (t *EscrowTransaction) HasKey(key string) bool {
	if key == "" {
		return false
	}
	for _, e := range t.Log {
		if e.IdempotencyKey == key {
			return true
		}
	}
	return false
}

// Snapshot is the projection stored on the order.
func (t *EscrowTransaction) Snapshot() EscrowSnapshot {
	return EscrowSnapshot{
		TransactionID: t.ID,
		Amount:        t.Amount,
		Status:        t.Status,
		HeldAt:        t.HeldAt,
		CapturedAt:    t.CapturedAt,
		RefundedAt:    t.RefundedAt,
		FrozenAt:      t.FrozenAt,
	}
}

// EscrowSnapshot mirrors the ledger state on the order document.
type EscrowSnapshot struct {
	TransactionID string       `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	Amount        int64        `bson:"amount" json:"amount"`
	Status        EscrowStatus `bson:"status" json:"status"`
	HeldAt        *time.Time   `bson:"heldAt,omitempty" json:"heldAt,omitempty"`
	CapturedAt    *time.Time   `bson:"capturedAt,omitempty" json:"capturedAt,omitempty"`
	RefundedAt    *time.Time   `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`
	FrozenAt      *time.Time   `bson:"frozenAt,omitempty" json:"frozenAt,omitempty"`
}
