package order

import (
	"context"
	"errors"
	"fmt"

	"washflow/database/repository"
	orderRepo "washflow/database/repository/order"
	"washflow/models"
	"washflow/services/directory"
	"washflow/services/escrow"
	"washflow/services/notification"
	"washflow/services/pricing"
	"washflow/services/rewards"
	"washflow/services/slots"
	"washflow/utils"

	"go.uber.org/zap"
)

// DefaultOrderService is the order state machine. It is the only component
// that decides on compensating actions across slots and escrow.
type DefaultOrderService struct {
	Orders      orderRepo.OrderRepository
	Slots       slots.SlotAllocator
	Ledger      escrow.Ledger
	Pricing     pricing.PricingService
	Directory   directory.Directory
	Notifier    notification.Notifier
	Alerts      notification.OperatorAlerter
	Rewards     rewards.Awarder
	Scheduler   ApprovalScheduler
	Settlements SettlementQueue
	Locker      utils.Locker
	Clock       utils.Clock
	Logger      *zap.Logger
	Policy      Policy
	Retry       utils.RetryPolicy
}

func NewOrderService(
	orders orderRepo.OrderRepository,
	slotAllocator slots.SlotAllocator,
	ledger escrow.Ledger,
	pricingSvc pricing.PricingService,
	dir directory.Directory,
	locker utils.Locker,
	clock utils.Clock,
	logger *zap.Logger,
) *DefaultOrderService {
	logger = utils.LoggerOrNop(logger)
	return &DefaultOrderService{
		Orders:    orders,
		Slots:     slotAllocator,
		Ledger:    ledger,
		Pricing:   pricingSvc,
		Directory: dir,
		Notifier:  notification.NewLogNotifier(logger),
		Alerts:    notification.NewLogAlerter(logger),
		Locker:    locker,
		Clock:     clock,
		Logger:    logger,
		Policy:    DefaultPolicy(),
		Retry:     utils.DefaultRetryPolicy(),
	}
}

// LockKey is the critical-section key shared by every writer of an order.
func LockKey(orderID string) string {
	return "order:" + orderID
}

// LockOrder enters the order's critical section.
func (s *DefaultOrderService) LockOrder(ctx context.Context, orderID string) (func(), error) {
	return s.Locker.Lock(ctx, LockKey(orderID))
}

// LoadOrder reads an order without authorization checks.
func (s *DefaultOrderService) LoadOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var o *models.Order
	err := utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
		var err error
		o, err = s.Orders.GetByID(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return utils.NewNotFoundError("order_not_found", "order not found")
		}
		if err != nil {
			return utils.NewDependencyError("order_store", "failed to load order", err)
		}
		return nil
	})
	return o, err
}

// save writes o with a version check. Callers hold the order lock, so a
// version conflict means a writer bypassed it.
func (s *DefaultOrderService) save(ctx context.Context, o *models.Order) error {
	return utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
		err := s.Orders.Update(ctx, o)
		if errors.Is(err, repository.ErrVersionConflict) {
			return utils.NewConflictError("order_contended", "order was modified concurrently")
		}
		if err != nil {
			return utils.NewDependencyError("order_store", "failed to save order", err)
		}
		return nil
	})
}

// withOrder runs fn on a freshly loaded order inside its critical section.
func (s *DefaultOrderService) withOrder(ctx context.Context, orderID string, fn func(o *models.Order) error) (*models.Order, error) {
	unlock, err := s.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	return o, nil
}

// transition applies one lifecycle edge in memory. The escrow snapshot must
// already reflect the ledger for the target status.
func (s *DefaultOrderService) transition(o *models.Order, to models.OrderStatus, by models.Caller) error {
	from := o.Status
	if !models.CanTransition(from, to) {
		return utils.NewPreconditionError("invalid_transition", fmt.Sprintf("cannot move order from %s to %s", from, to))
	}
	if !models.ValidCombination(to, o.Escrow.Status) {
		return utils.NewInconsistentError("escrow_mismatch",
			fmt.Sprintf("order cannot enter %s while escrow is %s", to, o.Escrow.Status))
	}
	now := s.Clock.Now()
	o.Status = to
	o.UpdatedAt = now
	o.History = append(o.History, models.StatusChange{From: from, To: to, Actor: by.Role, ActorID: by.ID, At: now})
	return nil
}

// advance is the common path for simple provider-driven transitions.
func (s *DefaultOrderService) advance(ctx context.Context, by models.Caller, orderID string, to models.OrderStatus, prepare func(o *models.Order) error) (*models.Order, error) {
	o, err := s.withOrder(ctx, orderID, func(o *models.Order) error {
		if err := authorize(o, by, models.RoleProvider); err != nil {
			return err
		}
		if prepare != nil {
			if err := prepare(o); err != nil {
				return err
			}
		}
		if err := s.transition(o, to, by); err != nil {
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

// authorize checks that by is a party to o in one of the allowed roles.
// System and operator callers pass whenever their role is allowed.
func authorize(o *models.Order, by models.Caller, roles ...models.Role) error {
	allowed := false
	for _, r := range roles {
		if r == by.Role {
			allowed = true
			break
		}
	}
	if !allowed {
		return utils.NewForbiddenError("role_not_allowed", fmt.Sprintf("%s cannot perform this action", by.Role))
	}
	switch by.Role {
	case models.RoleDriver:
		if o.DriverID != by.ID {
			return utils.NewForbiddenError("not_order_driver", "order belongs to another driver")
		}
	case models.RoleProvider:
		if o.ProviderID != by.ID {
			return utils.NewForbiddenError("not_order_provider", "order belongs to another provider")
		}
	}
	return nil
}

func (s *DefaultOrderService) notifyTransition(ctx context.Context, o *models.Order) {
	kind, ok := models.NotificationFor(o.Status)
	if !ok || s.Notifier == nil {
		return
	}
	data := map[string]string{"orderId": o.ID, "status": string(o.Status)}
	for _, userID := range []string{o.DriverID, o.ProviderID} {
		if err := s.Notifier.Notify(ctx, userID, kind, data); err != nil {
			s.Logger.Warn("notification failed", zap.String("orderId", o.ID), zap.String("kind", string(kind)), zap.Error(err))
		}
	}
}

func (s *DefaultOrderService) raiseAlert(ctx context.Context, kind string, o *models.Order, message string) {
	if s.Alerts == nil {
		return
	}
	alert := models.OperatorAlert{Kind: kind, OrderID: o.ID, Severity: 1, Message: message, RaisedAt: s.Clock.Now()}
	if err := s.Alerts.RaiseAlert(ctx, alert); err != nil {
		s.Logger.Error("failed to raise operator alert", zap.String("orderId", o.ID), zap.String("kind", kind), zap.Error(err))
	}
}

func (s *DefaultOrderService) GetOrder(ctx context.Context, by models.Caller, orderID string) (*models.Order, error) {
	o, err := s.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(o, by, models.RoleDriver, models.RoleProvider, models.RoleOperator, models.RoleSystem); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *DefaultOrderService) ListOrders(ctx context.Context, by models.Caller, filter models.OrderFilter) ([]models.Order, error) {
	switch by.Role {
	case models.RoleDriver:
		filter.DriverID = by.ID
	case models.RoleProvider:
		filter.ProviderID = by.ID
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	orders, err := s.Orders.List(ctx, filter)
	if err != nil {
		return nil, utils.NewDependencyError("order_store", "failed to list orders", err)
	}
	return orders, nil
}
