package order

import (
	"context"
	"time"

	"washflow/models"
	"washflow/services/escrow"
	"washflow/services/pricing"
	"washflow/services/slots"
	"washflow/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func validateCreate(req CreateOrderRequest) error {
	if req.Mode != models.ModeShop && req.Mode != models.ModeMobile {
		return utils.NewValidationError("mode_invalid", "mode must be shop or mobile")
	}
	if req.Mode == models.ModeShop && req.LaneID == "" {
		return utils.NewValidationError("lane_required", "shop orders need a lane")
	}
	if req.Mode == models.ModeMobile && req.Location == nil {
		return utils.NewValidationError("location_required", "mobile orders need a service location")
	}
	if req.StartMinute < 0 || req.StartMinute >= 24*60 {
		return utils.NewValidationError("start_invalid", "start must be a minute of the day")
	}
	if _, err := models.ParseDate(req.Date); err != nil {
		return utils.NewValidationError("date_invalid", "date must be YYYY-MM-DD")
	}
	if req.PaymentRef == "" {
		return utils.NewValidationError("payment_ref_required", "a payment reference is required")
	}
	return nil
}

// CreateOrder prices the order, reserves its lane slot and holds the quoted
// amount. Whatever succeeded is undone when a later step fails, so no order
// survives with a slot and no hold or the reverse.
func (s *DefaultOrderService) CreateOrder(ctx context.Context, by models.Caller, req CreateOrderRequest) (*models.Order, error) {
	if by.Role != models.RoleDriver {
		return nil, utils.NewForbiddenError("role_not_allowed", "only drivers create orders")
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	driver, err := s.Directory.ActiveDriver(ctx, by.ID)
	if err != nil {
		return nil, err
	}
	vehicle, err := s.Directory.OwnedVehicle(ctx, driver.ID, req.VehicleID)
	if err != nil {
		return nil, err
	}
	provider, err := s.Directory.ActiveProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, err
	}
	if !provider.Supports(req.Mode) {
		return nil, utils.NewValidationError("mode_unsupported", "provider does not offer "+string(req.Mode)+" service")
	}
	pkg, err := s.Directory.ProviderPackage(ctx, provider.ID, req.PackageID)
	if err != nil {
		return nil, err
	}

	day, _ := models.ParseDate(req.Date)
	sched := models.Schedule{
		Mode:        req.Mode,
		Date:        req.Date,
		StartMinute: req.StartMinute,
		EndMinute:   req.StartMinute + pkg.DurationMinutes,
		Location:    req.Location,
	}
	if req.Mode == models.ModeShop {
		lane, err := s.Slots.GetLane(ctx, req.LaneID)
		if err != nil {
			return nil, err
		}
		if lane.ProviderID != provider.ID {
			return nil, utils.NewValidationError("lane_not_provider", "lane belongs to another provider")
		}
		sched.LaneID = lane.ID
		sched.EndMinute += lane.Capacity.BufferMinutes
	}
	sched.Start = models.MinuteToTime(day, sched.StartMinute)
	sched.End = models.MinuteToTime(day, sched.EndMinute)
	if !sched.Start.After(s.Clock.Now()) {
		return nil, utils.NewValidationError("start_in_past", "the requested window has already started")
	}

	var quote *models.PricingBreakdown
	err = utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
		var err error
		quote, err = s.Pricing.Quote(ctx, pricing.QuoteRequest{
			ProviderID:       provider.ID,
			Package:          *pkg,
			Segment:          vehicle.Segment,
			Mode:             req.Mode,
			Date:             req.Date,
			ProviderLocation: provider.Location,
			DriverLocation:   req.Location,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	o := &models.Order{
		ID:         uuid.New().String(),
		DriverID:   driver.ID,
		ProviderID: provider.ID,
		Vehicle:    *vehicle,
		Package:    *pkg,
		Schedule:   sched,
		Status:     models.StatusCreated,
		Steps:      seedSteps(pkg),
		QA:         models.QARecord{RequiredPhotos: pkg.RequiredQAPhotos, Approval: models.QANotSubmitted},
		Escrow:     models.EscrowSnapshot{Status: models.EscrowPending},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	o.Pricing = *quote
	if err := s.transition(o, models.StatusPriced, by); err != nil {
		return nil, err
	}

	err = utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
		if err := s.Orders.Create(ctx, o); err != nil {
			return utils.NewDependencyError("order_store", "failed to create order", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	unlock, err := s.LockOrder(ctx, o.ID)
	if err != nil {
		s.discardDraft(ctx, o)
		return nil, err
	}
	defer unlock()

	if req.Mode == models.ModeShop {
		_, err := s.Slots.ReserveSlot(ctx, slots.ReserveRequest{
			LaneID: sched.LaneID, Date: sched.Date, Start: sched.StartMinute, End: sched.EndMinute, OrderID: o.ID,
		})
		if err != nil {
			s.discardDraft(ctx, o)
			return nil, err
		}
	}

	var tx *models.EscrowTransaction
	err = utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
		var err error
		tx, err = s.Ledger.Hold(ctx, escrow.HoldRequest{
			OrderID: o.ID, Amount: o.Pricing.FinalPrice, Currency: o.Pricing.Currency, PaymentRef: req.PaymentRef,
		})
		return err
	})
	if err != nil {
		s.releaseSlot(ctx, o)
		s.discardDraft(ctx, o)
		return nil, err
	}

	o.Escrow = tx.Snapshot()
	if err := s.transition(o, models.StatusDriverConfirmed, by); err != nil {
		s.abortHold(ctx, o, tx)
		return nil, err
	}
	if err := s.save(ctx, o); err != nil {
		s.abortHold(ctx, o, tx)
		return nil, err
	}

	s.Logger.Info("order confirmed",
		zap.String("orderId", o.ID),
		zap.String("driverId", o.DriverID),
		zap.String("providerId", o.ProviderID),
		zap.Int64("amount", o.Pricing.FinalPrice))
	s.notifyTransition(ctx, o)
	return o, nil
}

func seedSteps(pkg *models.PackageSnapshot) []models.WorkStep {
	steps := make([]models.WorkStep, 0, len(pkg.Steps))
	for i, st := range pkg.Steps {
		steps = append(steps, models.WorkStep{
			Index:         i,
			Name:          st.Name,
			Status:        models.StepPending,
			RequiresPhoto: st.RequiresPhoto,
			RequiresNotes: st.RequiresNotes,
			Optional:      st.Optional,
		})
	}
	if len(steps) == 0 {
		steps = append(steps, models.WorkStep{Name: "wash", Status: models.StepPending})
	}
	return steps
}

// compensation runs on a context detached from the caller so a cancelled
// request still undoes its partial work.
func (s *DefaultOrderService) compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

func (s *DefaultOrderService) releaseSlot(ctx context.Context, o *models.Order) {
	if o.Schedule.Mode != models.ModeShop {
		return
	}
	cctx, cancel := s.compensationContext(ctx)
	defer cancel()
	err := utils.Retry(cctx, s.Retry, func(ctx context.Context) error {
		return s.Slots.ReleaseSlot(ctx, o.Schedule.LaneID, o.Schedule.Date, o.Schedule.StartMinute, o.ID)
	})
	if err != nil {
		s.Logger.Error("failed to release slot during compensation", zap.String("orderId", o.ID), zap.Error(err))
		s.raiseAlert(cctx, "slot_leak", o, "slot could not be released after a failed booking")
	}
}

func (s *DefaultOrderService) discardDraft(ctx context.Context, o *models.Order) {
	cctx, cancel := s.compensationContext(ctx)
	defer cancel()
	if err := s.Orders.Delete(cctx, o.ID); err != nil {
		s.Logger.Warn("failed to delete draft order", zap.String("orderId", o.ID), zap.Error(err))
	}
}

// abortHold refunds a hold whose order could not be confirmed, then removes
// the slot and the draft.
func (s *DefaultOrderService) abortHold(ctx context.Context, o *models.Order, tx *models.EscrowTransaction) {
	cctx, cancel := s.compensationContext(ctx)
	defer cancel()
	err := utils.Retry(cctx, s.Retry, func(ctx context.Context) error {
		_, err := s.Ledger.Refund(ctx, tx.ID, 0, "order_not_confirmed", escrow.WithIdempotencyKey("create-abort:"+o.ID))
		return err
	})
	if err != nil {
		s.Logger.Error("failed to refund aborted hold", zap.String("orderId", o.ID), zap.String("transactionId", tx.ID), zap.Error(err))
		s.raiseAlert(cctx, "refund_stuck", o, "hold of an unconfirmed order could not be refunded")
	}
	s.releaseSlot(ctx, o)
	s.discardDraft(ctx, o)
}

// DiscardStaleDrafts compensates orders a crash left in CREATED or PRICED
// after their slot or hold was taken: the hold is refunded, the slot released
// and the draft deleted. Drafts younger than Policy.DraftTTL may still belong
// to a request in flight and are left alone.
func (s *DefaultOrderService) DiscardStaleDrafts(ctx context.Context) (int, error) {
	ttl := s.Policy.DraftTTL
	if ttl <= 0 {
		ttl = DefaultPolicy().DraftTTL
	}
	cutoff := s.Clock.Now().Add(-ttl)

	discarded := 0
	for _, status := range []models.OrderStatus{models.StatusCreated, models.StatusPriced} {
		drafts, err := s.Orders.List(ctx, models.OrderFilter{Status: status})
		if err != nil {
			return discarded, utils.NewDependencyError("order_store", "failed to list draft orders", err)
		}
		for _, d := range drafts {
			if d.CreatedAt.After(cutoff) {
				continue
			}
			ok, err := s.discardStale(ctx, d.ID)
			if err != nil {
				s.Logger.Warn("stale draft not discarded", zap.String("orderId", d.ID), zap.Error(err))
				continue
			}
			if ok {
				discarded++
			}
		}
	}
	return discarded, nil
}

func (s *DefaultOrderService) discardStale(ctx context.Context, orderID string) (bool, error) {
	unlock, err := s.LockOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	defer unlock()

	o, err := s.LoadOrder(ctx, orderID)
	if err != nil {
		if utils.IsKind(err, utils.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	if o.Status != models.StatusCreated && o.Status != models.StatusPriced {
		return false, nil
	}

	tx, err := s.Ledger.GetByOrder(ctx, o.ID)
	switch {
	case err == nil && tx.Status == models.EscrowHeld:
		err = utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
			_, err := s.Ledger.Refund(ctx, tx.ID, 0, "order_not_confirmed", escrow.WithIdempotencyKey("create-abort:"+o.ID))
			return err
		})
		if err != nil {
			// Keep the draft so the next pass retries the refund.
			return false, err
		}
	case err != nil && !utils.IsKind(err, utils.KindNotFound):
		return false, err
	}

	if o.Schedule.Mode == models.ModeShop {
		err := utils.Retry(ctx, s.Retry, func(ctx context.Context) error {
			return s.Slots.ReleaseSlot(ctx, o.Schedule.LaneID, o.Schedule.Date, o.Schedule.StartMinute, o.ID)
		})
		if err != nil {
			return false, err
		}
	}
	if err := s.Orders.Delete(ctx, o.ID); err != nil {
		return false, utils.NewDependencyError("order_store", "failed to delete draft order", err)
	}
	s.Logger.Info("stale draft discarded", zap.String("orderId", o.ID), zap.String("status", string(o.Status)))
	return true, nil
}
