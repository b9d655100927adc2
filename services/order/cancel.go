package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"washflow/models"
	"washflow/services/escrow"
	"washflow/services/tasks"
	"washflow/utils"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// stuckAfter is the number of failed settlement attempts before operators are told.
const stuckAfter = 5

// penaltyFor returns the amount retained when an order is cancelled from
// status. Once the provider has accepted or is en route a share is kept,
// whichever side cancels.
func (s *DefaultOrderService) penaltyFor(from models.OrderStatus, held int64) int64 {
	if from != models.StatusProviderAccepted && from != models.StatusEnRoute {
		return 0
	}
	return int64(math.Round(float64(held) * s.Policy.PenaltyRate))
}

// CancelOrder releases the slot synchronously, records the cancellation and
// then tries to settle the escrow inline.
func (s *DefaultOrderService) CancelOrder(ctx context.Context, by models.Caller, orderID, reason string) (*models.Order, error) {
	var target models.OrderStatus
	switch by.Role {
	case models.RoleDriver:
		target = models.StatusCancelledByDriver
	case models.RoleProvider:
		target = models.StatusCancelledByProvider
	default:
		return nil, utils.NewForbiddenError("role_not_allowed", "only the driver or provider can cancel")
	}

	var settleErr error
	o, err := s.withOrder(ctx, orderID, func(o *models.Order) error {
		if err := authorize(o, by, models.RoleDriver, models.RoleProvider); err != nil {
			return err
		}
		from := o.Status
		if !models.CanTransition(from, target) {
			return utils.NewPreconditionError("not_cancellable", fmt.Sprintf("order in %s can no longer be cancelled", from))
		}

		if o.Schedule.Mode == models.ModeShop {
			err := utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
				return s.Slots.ReleaseSlot(ctx, o.Schedule.LaneID, o.Schedule.Date, o.Schedule.StartMinute, o.ID)
			})
			if err != nil {
				return err
			}
		}

		c := &models.Cancellation{
			Actor:        by.Role,
			ActorID:      by.ID,
			Reason:       reason,
			FromStatus:   from,
			SlotReleased: o.Schedule.Mode == models.ModeShop,
			RefundStatus: models.RefundNotRequired,
			CancelledAt:  s.Clock.Now(),
		}
		if o.Escrow.Status == models.EscrowHeld {
			c.PenaltyAmount = s.penaltyFor(from, o.Escrow.Amount)
			c.RefundAmount = o.Escrow.Amount - c.PenaltyAmount
			c.RefundStatus = models.RefundPending
		}
		o.Cancellation = c
		if err := s.transition(o, target, by); err != nil {
			return err
		}
		if err := s.save(ctx, o); err != nil {
			return err
		}
		s.Logger.Info("order cancelled",
			zap.String("orderId", o.ID),
			zap.String("by", string(by.Role)),
			zap.String("from", string(from)),
			zap.Int64("refund", c.RefundAmount),
			zap.Int64("penalty", c.PenaltyAmount))

		if c.RefundStatus == models.RefundPending {
			settleErr = s.settle(ctx, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyTransition(ctx, o)

	if settleErr != nil {
		if s.Settlements != nil {
			if err := s.Settlements.EnqueueSettlement(ctx, o.ID); err != nil {
				s.Logger.Error("failed to enqueue settlement", zap.String("orderId", o.ID), zap.Error(err))
			}
		}
		return o, utils.NewDependencyError("refund_pending", "order cancelled, refund will be retried", settleErr)
	}
	return o, nil
}

// settle refunds the driver's share and captures the penalty. Both calls carry
// idempotency keys so a retry after a partial success does not repeat money
// movement. The caller holds the order lock.
func (s *DefaultOrderService) settle(ctx context.Context, o *models.Order) error {
	c := o.Cancellation
	txID := o.Escrow.TransactionID

	var tx *models.EscrowTransaction
	err := utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
		var err error
		if c.RefundAmount > 0 {
			tx, err = s.Ledger.Refund(ctx, txID, c.RefundAmount, "order_cancelled", escrow.WithIdempotencyKey("cancel-refund:"+o.ID))
			if err != nil {
				return err
			}
		}
		if c.PenaltyAmount > 0 {
			tx, err = s.Ledger.Capture(ctx, txID, c.PenaltyAmount, escrow.WithIdempotencyKey("cancel-penalty:"+o.ID))
			if err != nil {
				return err
			}
		}
		return nil
	})

	c.Attempts++
	if err != nil {
		c.LastError = err.Error()
		s.Logger.Warn("cancellation settlement failed", zap.String("orderId", o.ID), zap.Int("attempts", c.Attempts), zap.Error(err))
		if c.Attempts >= stuckAfter {
			s.raiseAlert(ctx, "refund_stuck", o, fmt.Sprintf("refund failing after %d attempts: %v", c.Attempts, err))
		}
		if saveErr := s.save(ctx, o); saveErr != nil {
			s.Logger.Error("failed to record settlement attempt", zap.String("orderId", o.ID), zap.Error(saveErr))
		}
		return err
	}

	if tx != nil {
		o.Escrow = tx.Snapshot()
	}
	now := s.Clock.Now()
	c.RefundStatus = models.RefundCompleted
	c.LastError = ""
	c.SettledAt = &now
	o.UpdatedAt = now
	return s.save(ctx, o)
}

// SettleCancellation is the settlement worker entry point. It is a no-op for
// orders that are not waiting on a refund.
func (s *DefaultOrderService) SettleCancellation(ctx context.Context, orderID string) (*models.Order, error) {
	var settleErr error
	o, err := s.withOrder(ctx, orderID, func(o *models.Order) error {
		if !models.IsCancelled(o.Status) || o.Cancellation == nil || o.Cancellation.RefundStatus != models.RefundPending {
			return nil
		}
		settleErr = s.settle(ctx, o)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, settleErr
}

// SettlePendingCancellations retries every cancellation still waiting on its refund.
func (s *DefaultOrderService) SettlePendingCancellations(ctx context.Context) (int, error) {
	settled := 0
	for _, status := range []models.OrderStatus{models.StatusCancelledByDriver, models.StatusCancelledByProvider} {
		orders, err := s.Orders.List(ctx, models.OrderFilter{Status: status})
		if err != nil {
			return settled, utils.NewDependencyError("order_store", "failed to list cancelled orders", err)
		}
		for _, o := range orders {
			if o.Cancellation == nil || o.Cancellation.RefundStatus != models.RefundPending {
				continue
			}
			if _, err := s.SettleCancellation(ctx, o.ID); err != nil {
				continue
			}
			settled++
		}
	}
	return settled, nil
}

// QueueSettlements hands settlement retries to asynq.
type QueueSettlements struct {
	Client *asynq.Client
}

func NewQueueSettlements(client *asynq.Client) *QueueSettlements {
	return &QueueSettlements{Client: client}
}

func (q *QueueSettlements) EnqueueSettlement(ctx context.Context, orderID string) error {
	task, opts, err := tasks.NewSettleCancellationTask(orderID)
	if err != nil {
		return err
	}
	_, err = q.Client.EnqueueContext(ctx, task, opts...)
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return err
	}
	return nil
}

// BackgroundSettler retries settlement in-process with backoff. It serves
// memory mode, where there is no queue.
type BackgroundSettler struct {
	Service  *DefaultOrderService
	Attempts int
	Delay    time.Duration
	Logger   *zap.Logger
}

func NewBackgroundSettler(svc *DefaultOrderService, logger *zap.Logger) *BackgroundSettler {
	return &BackgroundSettler{Service: svc, Attempts: 10, Delay: 2 * time.Second, Logger: utils.LoggerOrNop(logger)}
}

func (b *BackgroundSettler) EnqueueSettlement(_ context.Context, orderID string) error {
	go b.run(orderID)
	return nil
}

func (b *BackgroundSettler) run(orderID string) {
	delay := b.Delay
	for i := 0; i < b.Attempts; i++ {
		time.Sleep(delay)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, err := b.Service.SettleCancellation(ctx, orderID)
		cancel()
		if err == nil {
			return
		}
		delay *= 2
	}
	b.Logger.Error("giving up on in-process settlement, sweep will retry", zap.String("orderId", orderID))
}
