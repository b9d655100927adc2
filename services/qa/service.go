package qa

import (
	"context"
	"time"

	orderRepo "washflow/database/repository/order"
	"washflow/models"
	"washflow/services/order"
	"washflow/utils"

	"go.uber.org/zap"
)

// Service recovers QA deadlines from persisted orders and runs the
// auto-approval callback.
type Service struct {
	Orders    orderRepo.OrderRepository
	Engine    order.OrderService
	Scheduler order.ApprovalScheduler
	Clock     utils.Clock
	Logger    *zap.Logger
}

func NewService(orders orderRepo.OrderRepository, engine order.OrderService, scheduler order.ApprovalScheduler, clock utils.Clock, logger *zap.Logger) *Service {
	return &Service{Orders: orders, Engine: engine, Scheduler: scheduler, Clock: clock, Logger: utils.LoggerOrNop(logger)}
}

// HandleAutoApprove is the wake-up callback. An order that already left
// QA_PENDING lost the race to an explicit decision and needs nothing more.
func (s *Service) HandleAutoApprove(ctx context.Context, orderID string) error {
	_, err := s.Engine.AutoApprove(ctx, orderID)
	switch {
	case err == nil:
		return nil
	case utils.IsKind(err, utils.KindPrecondition), utils.IsKind(err, utils.KindNotFound):
		s.Logger.Debug("auto-approval skipped", zap.String("orderId", orderID), zap.String("reason", utils.CodeOf(err)))
		return nil
	default:
		return err
	}
}

// RecoveryReport counts what one recovery pass did.
type RecoveryReport struct {
	Approved  int
	Scheduled int
	Captured  int
	Settled   int
	Discarded int
	Failed    int
}

// Recover scans persisted state: overdue QA orders are approved now, the
// rest get a wake-up at their deadline, completed orders whose capture
// failed are captured again, pending cancellation refunds are retried and
// drafts abandoned mid-booking give back their slot and hold.
func (s *Service) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport
	now := s.Clock.Now()

	pending, err := s.Orders.List(ctx, models.OrderFilter{Status: models.StatusQAPending})
	if err != nil {
		return rep, utils.NewDependencyError("order_store", "failed to scan QA orders", err)
	}
	for _, o := range pending {
		if o.QA.AutoApproveAt == nil || !now.Before(*o.QA.AutoApproveAt) {
			if err := s.HandleAutoApprove(ctx, o.ID); err != nil {
				rep.Failed++
				s.Logger.Warn("recovery auto-approval failed", zap.String("orderId", o.ID), zap.Error(err))
				continue
			}
			rep.Approved++
			continue
		}
		if err := s.Scheduler.ScheduleAutoApproval(ctx, o.ID, *o.QA.AutoApproveAt); err != nil {
			rep.Failed++
			s.Logger.Warn("recovery scheduling failed", zap.String("orderId", o.ID), zap.Error(err))
			continue
		}
		rep.Scheduled++
	}

	completed, err := s.Orders.List(ctx, models.OrderFilter{Status: models.StatusCompleted})
	if err != nil {
		return rep, utils.NewDependencyError("order_store", "failed to scan completed orders", err)
	}
	for _, o := range completed {
		if o.Escrow.Status != models.EscrowHeld {
			continue
		}
		if _, err := s.Engine.CapturePayment(ctx, models.SystemCaller, o.ID); err != nil {
			rep.Failed++
			s.Logger.Warn("recovery capture failed", zap.String("orderId", o.ID), zap.Error(err))
			continue
		}
		rep.Captured++
	}

	settled, err := s.Engine.SettlePendingCancellations(ctx)
	rep.Settled = settled
	if err != nil {
		return rep, err
	}

	discarded, err := s.Engine.DiscardStaleDrafts(ctx)
	rep.Discarded = discarded
	if err != nil {
		return rep, err
	}
	return rep, nil
}

// RunSweeper repeats Recover every interval until ctx ends.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := s.Recover(ctx)
			if err != nil {
				s.Logger.Warn("QA sweep failed", zap.Error(err))
				continue
			}
			if rep != (RecoveryReport{}) {
				s.Logger.Info("QA sweep",
					zap.Int("approved", rep.Approved),
					zap.Int("scheduled", rep.Scheduled),
					zap.Int("captured", rep.Captured),
					zap.Int("settled", rep.Settled),
					zap.Int("discarded", rep.Discarded),
					zap.Int("failed", rep.Failed))
			}
		}
	}
}
