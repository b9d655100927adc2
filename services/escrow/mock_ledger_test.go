package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"washflow/database/repository/memstore"
	"washflow/models"
	"washflow/utils"
)

func makeLedger(t *testing.T) *MockLedger {
	t.Helper()
	return NewMockLedger(memstore.NewLedgerStore(), utils.NewManualClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)), nil)
}

func hold(t *testing.T, l *MockLedger, orderID string, amount int64) *models.EscrowTransaction {
	t.Helper()
	tx, err := l.Hold(context.Background(), HoldRequest{OrderID: orderID, Amount: amount, Currency: "KES", PaymentRef: "tok_visa"})
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	return tx
}

func TestHoldIsIdempotentOnOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := makeLedger(t)

	first := hold(t, l, "order-1", 15000)
	second := hold(t, l, "order-1", 15000)
	if first.ID != second.ID {
		t.Fatalf("second hold created %s, want %s", second.ID, first.ID)
	}
	if first.Status != models.EscrowHeld || first.Amount != 15000 {
		t.Fatalf("unexpected hold: %+v", first)
	}

	_, err := l.Hold(ctx, HoldRequest{OrderID: "order-1", Amount: 9000})
	if !utils.IsKind(err, utils.KindConflict) {
		t.Fatalf("mismatched hold err = %v, want conflict", err)
	}
	_, err = l.Hold(ctx, HoldRequest{OrderID: "order-2", Amount: 0})
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("zero hold err = %v, want validation", err)
	}
}

func TestPartialThenFullRefund(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := makeLedger(t)
	tx := hold(t, l, "order-1", 15000)

	after, err := l.Refund(ctx, tx.ID, 2000, "goodwill")
	if err != nil {
		t.Fatalf("partial refund: %v", err)
	}
	if after.Status != models.EscrowHeld || after.Amount != 13000 {
		t.Fatalf("after partial refund: status=%s amount=%d", after.Status, after.Amount)
	}

	after, err = l.Refund(ctx, tx.ID, 13000, "cancelled")
	if err != nil {
		t.Fatalf("full refund: %v", err)
	}
	if after.Status != models.EscrowRefunded || after.Amount != 0 || after.RefundedAmount != 15000 {
		t.Fatalf("after full refund: %+v", after)
	}
	if after.RefundedAt == nil {
		t.Fatal("refund timestamp missing")
	}
}

func TestRefundAboveHeldIsRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := makeLedger(t)
	tx := hold(t, l, "order-1", 15000)

	_, err := l.Refund(ctx, tx.ID, 15001, "too much")
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	current, _ := l.GetStatus(ctx, tx.ID)
	if current.Amount != 15000 || current.Status != models.EscrowHeld {
		t.Fatalf("rejected refund changed the transaction: %+v", current)
	}
}

func TestRefundIdempotencyKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := makeLedger(t)
	tx := hold(t, l, "order-1", 15000)

	for i := 0; i < 2; i++ {
		if _, err := l.Refund(ctx, tx.ID, 10500, "cancel", WithIdempotencyKey("cancel:order-1")); err != nil {
			t.Fatalf("refund %d: %v", i, err)
		}
	}
	current, _ := l.GetStatus(ctx, tx.ID)
	if current.Amount != 4500 {
		t.Fatalf("amount = %d, want 4500 after one applied refund", current.Amount)
	}
}

func TestCapture(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("idempotent", func(t *testing.T) {
		l := makeLedger(t)
		tx := hold(t, l, "order-1", 15000)
		for i := 0; i < 2; i++ {
			got, err := l.Capture(ctx, tx.ID, 0)
			if err != nil {
				t.Fatalf("capture %d: %v", i, err)
			}
			if got.Status != models.EscrowCaptured || got.CapturedAmount != 15000 {
				t.Fatalf("capture %d: %+v", i, got)
			}
		}
		current, _ := l.GetStatus(ctx, tx.ID)
		captures := 0
		for _, e := range current.Log {
			if e.Op == models.LedgerCapture {
				captures++
			}
		}
		if captures != 1 {
			t.Fatalf("logged %d captures, want 1", captures)
		}
	})

	t.Run("above held amount is inconsistent", func(t *testing.T) {
		l := makeLedger(t)
		tx := hold(t, l, "order-1", 15000)
		if _, err := l.Refund(ctx, tx.ID, 2000, "partial"); err != nil {
			t.Fatalf("refund: %v", err)
		}
		_, err := l.Capture(ctx, tx.ID, 15000)
		if !utils.IsKind(err, utils.KindInconsistent) {
			t.Fatalf("err = %v, want inconsistent", err)
		}
	})

	t.Run("below held releases remainder", func(t *testing.T) {
		l := makeLedger(t)
		tx := hold(t, l, "order-1", 15000)
		got, err := l.Capture(ctx, tx.ID, 9000)
		if err != nil {
			t.Fatalf("capture: %v", err)
		}
		if got.CapturedAmount != 9000 || got.RefundedAmount != 6000 {
			t.Fatalf("split = captured %d refunded %d", got.CapturedAmount, got.RefundedAmount)
		}
	})

	t.Run("refunded cannot be captured", func(t *testing.T) {
		l := makeLedger(t)
		tx := hold(t, l, "order-1", 15000)
		if _, err := l.Refund(ctx, tx.ID, 0, "cancel"); err != nil {
			t.Fatalf("refund: %v", err)
		}
		if _, err := l.Capture(ctx, tx.ID, 0); !utils.IsKind(err, utils.KindPrecondition) {
			t.Fatalf("err = %v, want precondition", err)
		}
	})
}

func TestFreezeBlocksMoneyMovement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := makeLedger(t)
	tx := hold(t, l, "order-1", 15000)

	frozen, err := l.Freeze(ctx, tx.ID, "dispute")
	if err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if frozen.Status != models.EscrowFrozen {
		t.Fatalf("status = %s", frozen.Status)
	}
	if _, err := l.Freeze(ctx, tx.ID, "dispute"); err != nil {
		t.Fatalf("second freeze should be a no-op: %v", err)
	}
	if _, err := l.Capture(ctx, tx.ID, 0); !utils.IsKind(err, utils.KindPrecondition) {
		t.Fatalf("capture on frozen err = %v, want precondition", err)
	}
	if _, err := l.Refund(ctx, tx.ID, 0, "x"); !utils.IsKind(err, utils.KindPrecondition) {
		t.Fatalf("refund on frozen err = %v, want precondition", err)
	}

	got, err := l.Capture(ctx, tx.ID, 0, WithDisputeRelease())
	if err != nil {
		t.Fatalf("release capture: %v", err)
	}
	if got.Status != models.EscrowCaptured {
		t.Fatalf("status = %s, want captured", got.Status)
	}
	if _, err := l.Freeze(ctx, tx.ID, "late"); !utils.IsKind(err, utils.KindPrecondition) {
		t.Fatalf("freeze after capture err = %v, want precondition", err)
	}
}

func TestFrozenRefundIsAllOrNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := makeLedger(t)
	tx := hold(t, l, "order-f", 15000)
	if _, err := l.Freeze(ctx, tx.ID, "dispute"); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	if _, err := l.Refund(ctx, tx.ID, 5000, "split", WithDisputeRelease()); !utils.IsKind(err, utils.KindPrecondition) {
		t.Fatalf("partial refund on frozen err = %v, want precondition", err)
	}
	still, _ := l.GetStatus(ctx, tx.ID)
	if still.Status != models.EscrowFrozen || still.Amount != 15000 {
		t.Fatalf("rejected refund changed the transaction: %s %d", still.Status, still.Amount)
	}

	got, err := l.Refund(ctx, tx.ID, 0, "driver_favor", WithDisputeRelease())
	if err != nil {
		t.Fatalf("full refund: %v", err)
	}
	if got.Status != models.EscrowRefunded || got.Amount != 0 {
		t.Fatalf("after full refund: %s %d", got.Status, got.Amount)
	}
}

type brokenStore struct{ *memstore.LedgerStore }

func (brokenStore) GetByID(context.Context, string) (*models.EscrowTransaction, error) {
	return nil, errors.New("connection reset")
}

func TestStoreAndTimeoutFailuresAreDependencyErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	l := NewMockLedger(brokenStore{memstore.NewLedgerStore()}, nil, nil)
	if _, err := l.Capture(ctx, "tx", 0); !utils.IsKind(err, utils.KindDependency) {
		t.Fatalf("store failure err = %v, want dependency", err)
	}

	slow := makeLedger(t)
	slow.Latency = 50 * time.Millisecond
	slow.Timeout = 5 * time.Millisecond
	if _, err := slow.Hold(ctx, HoldRequest{OrderID: "o", Amount: 100}); !utils.IsKind(err, utils.KindDependency) {
		t.Fatalf("timeout err = %v, want dependency", err)
	}
}

func TestHistoryRecordsEveryMovement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := makeLedger(t)

	tx := hold(t, l, "order-h", 10000)
	if _, err := l.Capture(ctx, tx.ID, 7000, WithIdempotencyKey("k1")); err != nil {
		t.Fatalf("capture: %v", err)
	}

	entries, err := l.History(ctx, tx.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []models.LedgerOp{models.LedgerHold, models.LedgerRelease, models.LedgerCapture}
	if len(entries) != len(want) {
		t.Fatalf("entries = %d, want %d", len(entries), len(want))
	}
	for i, op := range want {
		if entries[i].Op != op {
			t.Errorf("entry %d = %s, want %s", i, entries[i].Op, op)
		}
	}
	if entries[1].Amount != 3000 {
		t.Errorf("released %d, want 3000", entries[1].Amount)
	}

	if _, err := l.History(ctx, "missing"); !utils.IsKind(err, utils.KindNotFound) {
		t.Fatalf("missing tx = %v", err)
	}
}
