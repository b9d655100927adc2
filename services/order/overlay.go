package order

import (
	"context"
	"fmt"

	"washflow/models"
	"washflow/utils"
)

// EnterDispute overlays DISPUTED on a COMPLETED or PAID order, remembering
// the completion status underneath. The caller holds the order lock.
func (s *DefaultOrderService) EnterDispute(ctx context.Context, o *models.Order, disputeID string, tx *models.EscrowTransaction, by models.Caller) error {
	if o.Status != models.StatusCompleted && o.Status != models.StatusPaid {
		return utils.NewPreconditionError("not_disputable", fmt.Sprintf("orders in %s cannot be disputed", o.Status))
	}
	underlying := o.Status
	o.Escrow = tx.Snapshot()
	if err := s.transition(o, models.StatusDisputed, by); err != nil {
		return err
	}
	o.UnderlyingStatus = underlying
	o.DisputeID = disputeID
	if err := s.save(ctx, o); err != nil {
		return err
	}
	s.notifyTransition(ctx, o)
	return nil
}

// ExitDispute clears the overlay once the ledger is settled. The order lands
// on PAID when money reached the provider or it was already paid, otherwise
// back on COMPLETED. The caller holds the order lock; the dispute service
// tells both parties about the outcome.
func (s *DefaultOrderService) ExitDispute(ctx context.Context, o *models.Order, tx *models.EscrowTransaction, by models.Caller) error {
	if o.Status != models.StatusDisputed {
		return utils.NewPreconditionError("not_disputed", fmt.Sprintf("order is %s", o.Status))
	}
	target := models.StatusCompleted
	if tx.Status == models.EscrowCaptured || o.UnderlyingStatus == models.StatusPaid {
		target = models.StatusPaid
	}
	o.Escrow = tx.Snapshot()
	if err := s.transition(o, target, by); err != nil {
		return err
	}
	o.UnderlyingStatus = ""
	return s.save(ctx, o)
}
