package order

import (
	"context"
	"fmt"

	"washflow/models"
	"washflow/services/escrow"
	"washflow/services/rewards"
	"washflow/utils"

	"go.uber.org/zap"
)

func (s *DefaultOrderService) ApproveQA(ctx context.Context, by models.Caller, orderID string) (*models.Order, error) {
	return s.approve(ctx, by, orderID, false)
}

// AutoApprove runs when the review window may have elapsed. A wake-up that
// arrives before the deadline reschedules itself instead of acting.
func (s *DefaultOrderService) AutoApprove(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := s.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != models.StatusQAPending {
		return nil, utils.NewPreconditionError("qa_not_pending", fmt.Sprintf("order is %s", o.Status))
	}
	if o.QA.AutoApproveAt != nil && s.Clock.Now().Before(*o.QA.AutoApproveAt) {
		if s.Scheduler != nil {
			if err := s.Scheduler.ScheduleAutoApproval(ctx, o.ID, *o.QA.AutoApproveAt); err != nil {
				return nil, utils.NewDependencyError("schedule_failed", "failed to reschedule auto-approval", err)
			}
		}
		return o, nil
	}
	return s.approve(ctx, models.SystemCaller, orderID, true)
}

// approve moves QA_PENDING to COMPLETED and then captures. Both happen inside
// one critical section, so whichever of the driver and the timer gets the
// lock first wins and the other sees PreconditionFailed.
func (s *DefaultOrderService) approve(ctx context.Context, by models.Caller, orderID string, auto bool) (*models.Order, error) {
	var captureErr error
	o, err := s.withOrder(ctx, orderID, func(o *models.Order) error {
		if err := authorize(o, by, models.RoleDriver, models.RoleSystem); err != nil {
			return err
		}
		if o.Status != models.StatusQAPending {
			return utils.NewPreconditionError("qa_not_pending", fmt.Sprintf("order is %s", o.Status))
		}
		if auto && o.QA.AutoApproveAt != nil && s.Clock.Now().Before(*o.QA.AutoApproveAt) {
			return utils.NewPreconditionError("qa_window_open", "review window has not elapsed")
		}
		now := s.Clock.Now()
		o.QA.Approval = models.QAApproved
		o.QA.ApprovedAt = &now
		o.QA.AutoApproved = auto
		if err := s.transition(o, models.StatusCompleted, by); err != nil {
			return err
		}
		if err := s.save(ctx, o); err != nil {
			return err
		}
		s.notifyTransition(ctx, o)
		captureErr = s.captureAndPay(ctx, o, by)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if auto {
		s.Logger.Info("QA auto-approved", zap.String("orderId", o.ID))
	}
	return o, captureErr
}

// captureAndPay captures the held amount and moves a COMPLETED order to PAID.
// On failure the order stays COMPLETED with escrow held.
func (s *DefaultOrderService) captureAndPay(ctx context.Context, o *models.Order, by models.Caller) error {
	var tx *models.EscrowTransaction
	err := utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
		var err error
		tx, err = s.Ledger.Capture(ctx, o.Escrow.TransactionID, 0, escrow.WithIdempotencyKey("capture:"+o.ID))
		return err
	})
	if err != nil {
		s.Logger.Warn("capture failed, order left completed", zap.String("orderId", o.ID), zap.Error(err))
		if utils.IsKind(err, utils.KindInconsistent) {
			s.raiseAlert(ctx, "inconsistency", o, err.Error())
			return err
		}
		if utils.IsKind(err, utils.KindDependency) {
			return utils.NewDependencyError("capture_failed", "payment capture failed, try again", err)
		}
		return err
	}

	o.Escrow = tx.Snapshot()
	if err := s.transition(o, models.StatusPaid, by); err != nil {
		s.raiseAlert(ctx, "inconsistency", o, err.Error())
		return err
	}
	if err := s.save(ctx, o); err != nil {
		return err
	}
	s.notifyTransition(ctx, o)
	s.awardPoints(ctx, o)
	return nil
}

func (s *DefaultOrderService) awardPoints(ctx context.Context, o *models.Order) {
	if s.Rewards == nil {
		return
	}
	points := rewards.PointsFor(o.Pricing.FinalPrice)
	if points <= 0 {
		return
	}
	if err := s.Rewards.AwardPoints(ctx, o.DriverID, points, "wash", o.ID); err != nil {
		s.Logger.Warn("reward grant failed", zap.String("orderId", o.ID), zap.Error(err))
	}
}

// CapturePayment retries the capture of a COMPLETED order whose first
// capture attempt failed. A PAID order is returned unchanged.
func (s *DefaultOrderService) CapturePayment(ctx context.Context, by models.Caller, orderID string) (*models.Order, error) {
	var captureErr error
	o, err := s.withOrder(ctx, orderID, func(o *models.Order) error {
		if err := authorize(o, by, models.RoleDriver, models.RoleOperator, models.RoleSystem); err != nil {
			return err
		}
		switch o.Status {
		case models.StatusPaid, models.StatusReviewed:
			return nil
		case models.StatusCompleted:
		default:
			return utils.NewPreconditionError("not_completed", fmt.Sprintf("cannot capture an order in %s", o.Status))
		}
		if o.Escrow.Status != models.EscrowHeld {
			return utils.NewPreconditionError("escrow_not_held", fmt.Sprintf("escrow is %s", o.Escrow.Status))
		}
		captureErr = s.captureAndPay(ctx, o, by)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, captureErr
}

// RejectQA sends the order back for rework. The listed steps reopen; with
// none listed the last step does.
func (s *DefaultOrderService) RejectQA(ctx context.Context, by models.Caller, orderID, feedback string, reworkSteps []int) (*models.Order, error) {
	if feedback == "" {
		return nil, utils.NewValidationError("feedback_required", "rejection needs feedback")
	}
	o, err := s.withOrder(ctx, orderID, func(o *models.Order) error {
		if err := authorize(o, by, models.RoleDriver); err != nil {
			return err
		}
		if len(reworkSteps) == 0 {
			reworkSteps = []int{len(o.Steps) - 1}
		}
		for _, idx := range reworkSteps {
			if idx < 0 || idx >= len(o.Steps) {
				return utils.NewValidationError("step_invalid", fmt.Sprintf("order has no step %d", idx))
			}
		}
		if err := s.transition(o, models.StatusInProgress, by); err != nil {
			return err
		}

		now := s.Clock.Now()
		first := len(o.Steps)
		for _, idx := range reworkSteps {
			o.Steps[idx].Status = models.StepPending
			o.Steps[idx].CompletedAt = nil
			if idx < first {
				first = idx
			}
		}
		o.Steps[first].Status = models.StepInProgress
		o.Steps[first].StartedAt = &now

		o.QA.Approval = models.QARejected
		o.QA.RejectionFeedback = feedback
		o.QA.RejectionCount++
		o.QA.AutoApproveAt = nil
		o.ActualEndTime = nil
		return s.save(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.markSlot(ctx, o, models.SlotInProgress)
	if s.Notifier != nil {
		if err := s.Notifier.Notify(ctx, o.ProviderID, models.NotifyQARejected, map[string]string{"orderId": o.ID, "feedback": feedback}); err != nil {
			s.Logger.Warn("notification failed", zap.String("orderId", o.ID), zap.Error(err))
		}
	}
	return o, nil
}

func (s *DefaultOrderService) SubmitReview(ctx context.Context, by models.Caller, orderID string, rating int, comment string) (*models.Order, error) {
	if rating < 1 || rating > 5 {
		return nil, utils.NewValidationError("rating_invalid", "rating must be between 1 and 5")
	}
	o, err := s.withOrder(ctx, orderID, func(o *models.Order) error {
		if err := authorize(o, by, models.RoleDriver); err != nil {
			return err
		}
		o.Review = &models.Review{Rating: rating, Comment: comment, CreatedAt: s.Clock.Now()}
		if err := s.transition(o, models.StatusReviewed, by); err != nil {
			return err
		}
		return s.save(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.notifyTransition(ctx, o)
	return o, nil
}
