package dispute

import (
	"context"
	"errors"
	"fmt"

	"washflow/database/repository"
	disputeRepo "washflow/database/repository/dispute"
	"washflow/models"
	"washflow/services/escrow"
	"washflow/services/notification"
	"washflow/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DefaultDisputeService struct {
	Disputes disputeRepo.DisputeRepository
	Orders   OrderOverlay
	Ledger   escrow.Ledger
	Notifier notification.Notifier
	Alerts   notification.OperatorAlerter
	Clock    utils.Clock
	Logger   *zap.Logger
	Windows  Windows
	Retry    utils.RetryPolicy
}

func NewDisputeService(disputes disputeRepo.DisputeRepository, orders OrderOverlay, ledger escrow.Ledger, clock utils.Clock, logger *zap.Logger) *DefaultDisputeService {
	logger = utils.LoggerOrNop(logger)
	return &DefaultDisputeService{
		Disputes: disputes,
		Orders:   orders,
		Ledger:   ledger,
		Notifier: notification.NewLogNotifier(logger),
		Alerts:   notification.NewLogAlerter(logger),
		Clock:    clock,
		Logger:   logger,
		Windows:  DefaultWindows(),
		Retry:    utils.DefaultRetryPolicy(),
	}
}

func (s *DefaultDisputeService) load(ctx context.Context, id string) (*models.Dispute, error) {
	d, err := s.Disputes.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, utils.NewNotFoundError("dispute_not_found", "dispute not found")
	}
	if err != nil {
		return nil, utils.NewDependencyError("dispute_store", "failed to load dispute", err)
	}
	return d, nil
}

func (s *DefaultDisputeService) save(ctx context.Context, d *models.Dispute) error {
	err := s.Disputes.Update(ctx, d)
	if errors.Is(err, repository.ErrVersionConflict) {
		return utils.NewConflictError("dispute_contended", "dispute was modified concurrently")
	}
	if err != nil {
		return utils.NewDependencyError("dispute_store", "failed to save dispute", err)
	}
	return nil
}

func party(d *models.Dispute, by models.Caller) error {
	switch by.Role {
	case models.RoleOperator, models.RoleSystem:
		return nil
	case models.RoleDriver:
		if d.DriverID == by.ID {
			return nil
		}
	case models.RoleProvider:
		if d.ProviderID == by.ID {
			return nil
		}
	}
	return utils.NewForbiddenError("not_dispute_party", "caller is not a party to this dispute")
}

// OpenDispute freezes a held transaction, or records a post-capture claim
// when the money already moved, and overlays DISPUTED on the order.
func (s *DefaultDisputeService) OpenDispute(ctx context.Context, by models.Caller, orderID string, req OpenRequest) (*models.Dispute, error) {
	if by.Role != models.RoleDriver {
		return nil, utils.NewForbiddenError("role_not_allowed", "only the driver can open a dispute")
	}
	if req.Reason == "" {
		return nil, utils.NewValidationError("reason_required", "a dispute needs a reason")
	}

	unlock, err := s.Orders.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.Orders.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.DriverID != by.ID {
		return nil, utils.NewForbiddenError("not_order_driver", "order belongs to another driver")
	}
	if o.Status != models.StatusCompleted && o.Status != models.StatusPaid {
		return nil, utils.NewPreconditionError("not_disputable", fmt.Sprintf("orders in %s cannot be disputed", o.Status))
	}

	now := s.Clock.Now()
	d := &models.Dispute{
		ID:              uuid.New().String(),
		OrderID:         o.ID,
		TransactionID:   o.Escrow.TransactionID,
		DriverID:        o.DriverID,
		ProviderID:      o.ProviderID,
		Reason:          req.Reason,
		Description:     req.Description,
		Evidence:        req.Evidence,
		Status:          models.DisputeOpen,
		ResponseDueAt:   now.Add(s.Windows.Response),
		ResolutionDueAt: now.Add(s.Windows.Resolution),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	switch o.Escrow.Status {
	case models.EscrowHeld:
		d.Mode = models.DisputeModeFreeze
	case models.EscrowCaptured:
		d.Mode = models.DisputeModePostCapture
	default:
		return nil, utils.NewPreconditionError("escrow_settled", fmt.Sprintf("escrow is %s, nothing left to dispute", o.Escrow.Status))
	}
	d.HeldAmount = o.Escrow.Amount

	if err := s.Disputes.Create(ctx, d); err != nil {
		return nil, utils.NewDependencyError("dispute_store", "failed to create dispute", err)
	}

	var tx *models.EscrowTransaction
	err = utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
		var err error
		if d.Mode == models.DisputeModeFreeze {
			tx, err = s.Ledger.Freeze(ctx, o.Escrow.TransactionID, "dispute:"+d.ID)
		} else {
			tx, err = s.Ledger.GetStatus(ctx, o.Escrow.TransactionID)
		}
		return err
	})
	if err != nil {
		s.discard(ctx, d)
		return nil, err
	}
	if err := s.Orders.EnterDispute(ctx, o, d.ID, tx, by); err != nil {
		s.discard(ctx, d)
		if d.Mode == models.DisputeModeFreeze {
			s.raise(ctx, "inconsistency", d, 1, fmt.Sprintf("transaction %s frozen but order %s could not be marked disputed", tx.ID, o.ID))
		}
		return nil, err
	}

	s.Logger.Info("dispute opened",
		zap.String("disputeId", d.ID),
		zap.String("orderId", o.ID),
		zap.String("mode", string(d.Mode)),
		zap.Int64("amount", d.HeldAmount))
	return d, nil
}

func (s *DefaultDisputeService) discard(ctx context.Context, d *models.Dispute) {
	if err := s.Disputes.Delete(ctx, d.ID); err != nil {
		s.Logger.Error("failed to delete discarded dispute", zap.String("disputeId", d.ID), zap.Error(err))
	}
}

func (s *DefaultDisputeService) GetDispute(ctx context.Context, by models.Caller, disputeID string) (*models.Dispute, error) {
	d, err := s.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if err := party(d, by); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DefaultDisputeService) RespondToDispute(ctx context.Context, by models.Caller, disputeID, response string) (*models.Dispute, error) {
	if response == "" {
		return nil, utils.NewValidationError("response_required", "response text is required")
	}
	d, err := s.load(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if by.Role != models.RoleProvider || d.ProviderID != by.ID {
		return nil, utils.NewForbiddenError("not_dispute_provider", "only the order's provider can respond")
	}
	if d.Status != models.DisputeOpen {
		return nil, utils.NewPreconditionError("dispute_not_open", fmt.Sprintf("dispute is %s", d.Status))
	}
	now := s.Clock.Now()
	d.ProviderResponse = response
	d.RespondedAt = &now
	d.Status = models.DisputeProviderResponded
	d.UpdatedAt = now
	if err := s.save(ctx, d); err != nil {
		return nil, err
	}
	s.notify(ctx, d.DriverID, models.NotifyDisputeResponded, d)
	return d, nil
}

func (s *DefaultDisputeService) notify(ctx context.Context, userID string, kind models.NotificationKind, d *models.Dispute) {
	if s.Notifier == nil {
		return
	}
	data := map[string]string{"disputeId": d.ID, "orderId": d.OrderID}
	if err := s.Notifier.Notify(ctx, userID, kind, data); err != nil {
		s.Logger.Warn("notification failed", zap.String("disputeId", d.ID), zap.Error(err))
	}
}

func (s *DefaultDisputeService) raise(ctx context.Context, kind string, d *models.Dispute, severity int, msg string) {
	if s.Alerts == nil {
		return
	}
	alert := models.OperatorAlert{
		Kind: kind, OrderID: d.OrderID, DisputeID: d.ID, Severity: severity, Message: msg, RaisedAt: s.Clock.Now(),
	}
	if err := s.Alerts.RaiseAlert(ctx, alert); err != nil {
		s.Logger.Error("failed to raise operator alert", zap.String("disputeId", d.ID), zap.Error(err))
	}
}
