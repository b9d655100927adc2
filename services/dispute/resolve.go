package dispute

import (
	"context"
	"fmt"

	"washflow/models"
	"washflow/services/escrow"
	"washflow/utils"

	"go.uber.org/zap"
)

// settlement is the single escrow call that ends a dispute.
type settlement struct {
	op             models.LedgerOp // capture, refund or "" for no money movement
	amount         int64           // 0 means everything left on the transaction
	driverAmount   int64
	providerAmount int64
}

func plan(d *models.Dispute, tx *models.EscrowTransaction, req ResolveRequest) (settlement, error) {
	held := tx.Amount
	switch tx.Status {
	case models.EscrowFrozen:
		switch req.Outcome {
		case models.OutcomeDriverFavor:
			return settlement{op: models.LedgerRefund, driverAmount: held}, nil
		case models.OutcomeProviderFavor, models.OutcomeDismissed:
			return settlement{op: models.LedgerCapture, providerAmount: held}, nil
		case models.OutcomePartial:
			if req.DriverAmount == held {
				return settlement{op: models.LedgerRefund, driverAmount: held}, nil
			}
			return settlement{
				op:             models.LedgerCapture,
				amount:         held - req.DriverAmount,
				driverAmount:   req.DriverAmount,
				providerAmount: held - req.DriverAmount,
			}, nil
		}
	case models.EscrowCaptured:
		switch req.Outcome {
		case models.OutcomeDriverFavor:
			return settlement{op: models.LedgerRefund, driverAmount: held}, nil
		case models.OutcomeProviderFavor, models.OutcomeDismissed:
			return settlement{providerAmount: held}, nil
		case models.OutcomePartial:
			if req.DriverAmount == 0 {
				return settlement{providerAmount: held}, nil
			}
			return settlement{
				op:             models.LedgerRefund,
				amount:         req.DriverAmount,
				driverAmount:   req.DriverAmount,
				providerAmount: held - req.DriverAmount,
			}, nil
		}
	default:
		// A retried resolution whose escrow call already landed.
		if tx.HasKey("dispute:" + d.ID) {
			return settlement{driverAmount: tx.RefundedAmount}, nil
		}
		return settlement{}, utils.NewInconsistentError("escrow_state", fmt.Sprintf("disputed transaction is %s", tx.Status))
	}
	return settlement{}, utils.NewValidationError("outcome_invalid", "unknown outcome")
}

// ResolveDispute claims the dispute, moves the money once and clears the
// overlay. A failure before the overlay clears hands the claim back so the
// resolution can be retried; the escrow call is keyed, so a retry does not
// move money twice.
func (s *DefaultDisputeService) ResolveDispute(ctx context.Context, by models.Caller, disputeID string, req ResolveRequest) (*models.Dispute, error) {
	if by.Role != models.RoleOperator {
		return nil, utils.NewForbiddenError("role_not_allowed", "only operators resolve disputes")
	}
	if !req.Outcome.Valid() {
		return nil, utils.NewValidationError("outcome_invalid", "outcome must be driver_favor, provider_favor, partial or dismissed")
	}

	d, err := s.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	switch d.Status {
	case models.DisputeResolved:
		return nil, utils.NewPreconditionError("dispute_resolved", "dispute is already resolved")
	case models.DisputeResolving:
		return nil, utils.NewConflictError("dispute_resolving", "dispute is being resolved")
	}
	if req.Outcome == models.OutcomePartial && (req.DriverAmount < 0 || req.DriverAmount > d.HeldAmount) {
		return nil, utils.NewValidationError("amount_out_of_range",
			fmt.Sprintf("driver share must be between 0 and %d", d.HeldAmount))
	}

	d.ClaimedFrom = d.Status
	d.Status = models.DisputeResolving
	if err := s.save(ctx, d); err != nil {
		return nil, err
	}

	if err := s.settle(ctx, by, d, req); err != nil {
		d.Status = d.ClaimedFrom
		d.ClaimedFrom = ""
		if relErr := s.save(ctx, d); relErr != nil {
			s.Logger.Error("failed to release dispute claim", zap.String("disputeId", d.ID), zap.Error(relErr))
		}
		return nil, err
	}

	s.Logger.Info("dispute resolved",
		zap.String("disputeId", d.ID),
		zap.String("outcome", string(req.Outcome)),
		zap.Int64("driverAmount", d.Resolution.DriverAmount),
		zap.Int64("providerAmount", d.Resolution.ProviderAmount))
	return d, nil
}

func (s *DefaultDisputeService) settle(ctx context.Context, by models.Caller, d *models.Dispute, req ResolveRequest) error {
	unlock, err := s.Orders.LockOrder(ctx, d.OrderID)
	if err != nil {
		return err
	}
	defer unlock()

	o, err := s.Orders.LoadOrder(ctx, d.OrderID)
	if err != nil {
		return err
	}
	tx, err := s.Ledger.GetStatus(ctx, d.TransactionID)
	if err != nil {
		return err
	}
	p, err := plan(d, tx, req)
	if err != nil {
		return err
	}

	key := escrow.WithIdempotencyKey("dispute:" + d.ID)
	err = utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
		var err error
		switch p.op {
		case models.LedgerCapture:
			tx, err = s.Ledger.Capture(ctx, tx.ID, p.amount, key, escrow.WithDisputeRelease())
		case models.LedgerRefund:
			tx, err = s.Ledger.Refund(ctx, tx.ID, p.amount, "dispute_"+string(req.Outcome), key, escrow.WithDisputeRelease())
		}
		return err
	})
	if err != nil {
		return err
	}

	if err := s.Orders.ExitDispute(ctx, o, tx, by); err != nil {
		return err
	}

	now := s.Clock.Now()
	d.Resolution = &models.DisputeResolution{
		Outcome:        req.Outcome,
		DriverAmount:   p.driverAmount,
		ProviderAmount: p.providerAmount,
		Notes:          req.Notes,
		ResolvedBy:     by.ID,
		ResolvedAt:     now,
	}
	d.Status = models.DisputeResolved
	d.ClaimedFrom = ""
	d.UpdatedAt = now
	if err := s.save(ctx, d); err != nil {
		// Money and order are settled; only the dispute record lags behind.
		s.raise(ctx, "inconsistency", d, 1, "dispute settled but its record could not be closed")
		return nil
	}
	s.notify(ctx, d.DriverID, models.NotifyDisputeResolved, d)
	s.notify(ctx, d.ProviderID, models.NotifyDisputeResolved, d)
	return nil
}

// CheckSLA escalates overdue disputes. Severity only grows and never moves money.
func (s *DefaultDisputeService) CheckSLA(ctx context.Context) (int, error) {
	active, err := s.Disputes.ListActive(ctx)
	if err != nil {
		return 0, utils.NewDependencyError("dispute_store", "failed to list disputes", err)
	}
	now := s.Clock.Now()
	escalated := 0
	for i := range active {
		d := &active[i]
		sev := d.SeverityAt(now)
		if sev <= d.Severity {
			continue
		}
		d.Severity = sev
		d.UpdatedAt = now
		if err := s.save(ctx, d); err != nil {
			s.Logger.Warn("failed to escalate dispute", zap.String("disputeId", d.ID), zap.Error(err))
			continue
		}
		escalated++
		s.raise(ctx, "dispute_sla", d, sev, fmt.Sprintf("dispute %s on order %s reached severity %d", d.ID, d.OrderID, sev))
	}
	return escalated, nil
}
