package escrow

import (
	"context"
	"errors"
	"time"

	"washflow/database/repository"
	escrowRepo "washflow/database/repository/escrow"
	"washflow/models"
	"washflow/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCASAttempts = 5

// MockLedger simulates a payment gateway's escrow API on top of a LedgerStore.
// Calls pay a configurable latency and are cut off by Timeout.
type MockLedger struct {
	Store   escrowRepo.LedgerStore
	Clock   utils.Clock
	Logger  *zap.Logger
	Latency time.Duration
	Timeout time.Duration
}

func NewMockLedger(store escrowRepo.LedgerStore, clock utils.Clock, logger *zap.Logger) *MockLedger {
	if clock == nil {
		clock = utils.NewSystemClock()
	}
	return &MockLedger{Store: store, Clock: clock, Logger: utils.LoggerOrNop(logger), Timeout: 3 * time.Second}
}

func (l *MockLedger) Hold(ctx context.Context, req HoldRequest) (*models.EscrowTransaction, error) {
	if req.OrderID == "" {
		return nil, utils.NewValidationError("order_required", "hold needs an order reference")
	}
	if req.Amount <= 0 {
		return nil, utils.NewValidationError("amount_invalid", "hold amount must be positive")
	}

	var out *models.EscrowTransaction
	err := l.call(ctx, func(ctx context.Context) error {
		existing, err := l.Store.GetByOrderID(ctx, req.OrderID)
		if err == nil {
			out, err = sameHold(existing, req)
			return err
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		now := l.Clock.Now()
		tx := &models.EscrowTransaction{
			ID:             uuid.New().String(),
			OrderID:        req.OrderID,
			IdempotencyKey: req.OrderID,
			PaymentRef:     req.PaymentRef,
			Currency:       req.Currency,
			Amount:         req.Amount,
			OriginalAmount: req.Amount,
			Status:         models.EscrowHeld,
			HeldAt:         &now,
			Log: []models.LedgerEntry{{
				Op: models.LedgerHold, Amount: req.Amount,
				From: models.EscrowPending, To: models.EscrowHeld,
				IdempotencyKey: req.OrderID, At: now,
			}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := l.Store.Insert(ctx, tx); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// Lost a race with a concurrent hold for the same order.
				existing, gerr := l.Store.GetByOrderID(ctx, req.OrderID)
				if gerr != nil {
					return gerr
				}
				out, err = sameHold(existing, req)
				return err
			}
			return err
		}
		out = tx
		l.Logger.Info("escrow held", zap.String("txId", tx.ID), zap.String("orderId", req.OrderID), zap.Int64("amount", req.Amount))
		return nil
	})
	return out, err
}

func sameHold(existing *models.EscrowTransaction, req HoldRequest) (*models.EscrowTransaction, error) {
	if existing.OriginalAmount != req.Amount {
		return nil, utils.NewConflictError("hold_mismatch", "order already has a hold for a different amount")
	}
	return existing, nil
}

func (l *MockLedger) Capture(ctx context.Context, txID string, amount int64, opts ...CallOption) (*models.EscrowTransaction, error) {
	o := collect(opts)
	if amount < 0 {
		return nil, utils.NewValidationError("amount_invalid", "capture amount must not be negative")
	}
	return l.mutate(ctx, txID, func(tx *models.EscrowTransaction, now time.Time) (bool, error) {
		if tx.Status == models.EscrowCaptured {
			return false, nil
		}
		if o.key != "" && tx.HasKey(o.key) {
			return false, nil
		}
		if tx.Status == models.EscrowFrozen && !o.disputeRelease {
			return false, utils.NewPreconditionError("escrow_frozen", "transaction is frozen by a dispute")
		}
		if tx.Status != models.EscrowHeld && tx.Status != models.EscrowFrozen {
			return false, utils.NewPreconditionError("escrow_not_capturable", "cannot capture a "+string(tx.Status)+" transaction")
		}

		take := amount
		if take == 0 {
			take = tx.Amount
		}
		if take > tx.Amount {
			return false, utils.NewInconsistentError("capture_exceeds_hold", "capture amount is above the held amount")
		}

		from := tx.Status
		if rest := tx.Amount - take; rest > 0 {
			tx.RefundedAmount += rest
			tx.Log = append(tx.Log, models.LedgerEntry{
				Op: models.LedgerRelease, Amount: rest, From: from, To: models.EscrowCaptured,
				Reason: "uncaptured remainder", IdempotencyKey: o.key, At: now,
			})
		}
		tx.Amount = take
		tx.CapturedAmount = take
		tx.Status = models.EscrowCaptured
		tx.CapturedAt = &now
		tx.Log = append(tx.Log, models.LedgerEntry{
			Op: models.LedgerCapture, Amount: take, From: from, To: models.EscrowCaptured,
			IdempotencyKey: o.key, At: now,
		})
		return true, nil
	})
}

func (l *MockLedger) Refund(ctx context.Context, txID string, amount int64, reason string, opts ...CallOption) (*models.EscrowTransaction, error) {
	o := collect(opts)
	if amount < 0 {
		return nil, utils.NewValidationError("amount_invalid", "refund amount must not be negative")
	}
	return l.mutate(ctx, txID, func(tx *models.EscrowTransaction, now time.Time) (bool, error) {
		if o.key != "" && tx.HasKey(o.key) {
			return false, nil
		}
		if tx.Status == models.EscrowRefunded && amount == 0 {
			return false, nil
		}
		if tx.Status == models.EscrowFrozen && !o.disputeRelease {
			return false, utils.NewPreconditionError("escrow_frozen", "transaction is frozen by a dispute")
		}
		switch tx.Status {
		case models.EscrowHeld, models.EscrowCaptured, models.EscrowFrozen:
		default:
			return false, utils.NewPreconditionError("escrow_not_refundable", "cannot refund a "+string(tx.Status)+" transaction")
		}

		give := amount
		if give == 0 {
			give = tx.Amount
		}
		if give > tx.Amount {
			return false, utils.NewValidationError("refund_exceeds_amount", "refund amount is above the remaining amount")
		}
		// Frozen money leaves only as a whole: refunded, or captured with a release.
		if tx.Status == models.EscrowFrozen && give < tx.Amount {
			return false, utils.NewPreconditionError("escrow_frozen_partial", "a frozen transaction can only be refunded in full")
		}

		from := tx.Status
		tx.Amount -= give
		tx.RefundedAmount += give
		if tx.Amount == 0 {
			tx.Status = models.EscrowRefunded
			tx.RefundedAt = &now
		}
		tx.Log = append(tx.Log, models.LedgerEntry{
			Op: models.LedgerRefund, Amount: give, From: from, To: tx.Status,
			Reason: reason, IdempotencyKey: o.key, At: now,
		})
		return true, nil
	})
}

func (l *MockLedger) Freeze(ctx context.Context, txID, reason string) (*models.EscrowTransaction, error) {
	return l.mutate(ctx, txID, func(tx *models.EscrowTransaction, now time.Time) (bool, error) {
		if tx.Status == models.EscrowFrozen {
			return false, nil
		}
		if tx.Status != models.EscrowHeld {
			return false, utils.NewPreconditionError("escrow_not_freezable", "only held transactions can be frozen")
		}
		tx.Status = models.EscrowFrozen
		tx.FreezeReason = reason
		tx.FrozenAt = &now
		tx.Log = append(tx.Log, models.LedgerEntry{
			Op: models.LedgerFreeze, Amount: tx.Amount, From: models.EscrowHeld, To: models.EscrowFrozen,
			Reason: reason, At: now,
		})
		return true, nil
	})
}

func (l *MockLedger) GetStatus(ctx context.Context, txID string) (*models.EscrowTransaction, error) {
	var out *models.EscrowTransaction
	err := l.call(ctx, func(ctx context.Context) error {
		tx, err := l.Store.GetByID(ctx, txID)
		out = tx
		return err
	})
	return out, err
}

func (l *MockLedger) GetByOrder(ctx context.Context, orderID string) (*models.EscrowTransaction, error) {
	var out *models.EscrowTransaction
	err := l.call(ctx, func(ctx context.Context) error {
		tx, err := l.Store.GetByOrderID(ctx, orderID)
		out = tx
		return err
	})
	return out, err
}

func (l *MockLedger) History(ctx context.Context, txID string) ([]models.LedgerEntry, error) {
	tx, err := l.GetStatus(ctx, txID)
	if err != nil {
		return nil, err
	}
	return tx.Log, nil
}

// mutate loads the transaction, applies fn and writes it back with a version
// check, retrying when another writer won.
func (l *MockLedger) mutate(ctx context.Context, txID string, fn func(tx *models.EscrowTransaction, now time.Time) (bool, error)) (*models.EscrowTransaction, error) {
	var out *models.EscrowTransaction
	err := l.call(ctx, func(ctx context.Context) error {
		for attempt := 0; attempt < maxCASAttempts; attempt++ {
			tx, err := l.Store.GetByID(ctx, txID)
			if err != nil {
				return err
			}
			now := l.Clock.Now()
			changed, err := fn(tx, now)
			if err != nil {
				return err
			}
			if !changed {
				out = tx
				return nil
			}
			tx.UpdatedAt = now
			err = l.Store.Update(ctx, tx)
			if errors.Is(err, repository.ErrVersionConflict) {
				continue
			}
			if err != nil {
				return err
			}
			last := tx.Log[len(tx.Log)-1]
			l.Logger.Info("escrow "+string(last.Op),
				zap.String("txId", tx.ID), zap.String("orderId", tx.OrderID),
				zap.Int64("amount", last.Amount), zap.String("status", string(tx.Status)))
			out = tx
			return nil
		}
		return utils.NewConflictError("escrow_contended", "transaction kept changing underneath the update")
	})
	return out, err
}

// call applies the simulated gateway latency and timeout and maps storage
// failures to DependencyFailure. Typed errors pass through unchanged.
func (l *MockLedger) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}
	if l.Latency > 0 {
		select {
		case <-ctx.Done():
			return utils.NewDependencyError("escrow_timeout", "escrow gateway timed out", ctx.Err())
		case <-time.After(l.Latency):
		}
	}

	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case utils.KindOf(err) != "":
		return err
	case errors.Is(err, repository.ErrNotFound):
		return utils.NewNotFoundError("escrow_not_found", "escrow transaction not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return utils.NewDependencyError("escrow_timeout", "escrow gateway timed out", err)
	default:
		return utils.NewDependencyError("escrow_unavailable", "escrow store failed", err)
	}
}
