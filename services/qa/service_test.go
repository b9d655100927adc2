package qa_test

import (
	"context"
	"testing"
	"time"

	"washflow/models"
	"washflow/services/escrow"
	"washflow/services/order/ordertest"
	"washflow/services/slots"
	"washflow/services/qa"
	"washflow/utils"
)

func newService(h *ordertest.Harness, sched *ordertest.RecordingScheduler) *qa.Service {
	return qa.NewService(h.Orders, h.Service, sched, h.Clock, nil)
}

func TestRecoverApprovesOverdueAndReschedulesTheRest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)

	overdue := h.Create(t, 600)
	waiting := h.Create(t, 700)
	h.ToQAPending(t, overdue.ID)
	h.Clock.Advance(10 * time.Minute)
	h.ToQAPending(t, waiting.ID)
	h.Clock.Advance(6 * time.Minute)

	// A restarted process has no timers; recovery rebuilds them from storage.
	restarted := &ordertest.RecordingScheduler{}
	rep, err := newService(h, restarted).Recover(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rep.Approved != 1 || rep.Scheduled != 1 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}

	paid, _ := h.Service.GetOrder(ctx, ordertest.Operator, overdue.ID)
	if paid.Status != models.StatusPaid || paid.Escrow.Status != models.EscrowCaptured || !paid.QA.AutoApproved {
		t.Fatalf("overdue order: %s escrow %s auto=%v", paid.Status, paid.Escrow.Status, paid.QA.AutoApproved)
	}
	still, _ := h.Service.GetOrder(ctx, ordertest.Operator, waiting.ID)
	if still.Status != models.StatusQAPending {
		t.Fatalf("waiting order acted on early: %s", still.Status)
	}
	wake, ok := restarted.Last()
	if !ok || wake.OrderID != waiting.ID || !wake.At.Equal(*still.QA.AutoApproveAt) {
		t.Fatalf("wake-up = %+v", wake)
	}
}

func TestRecoverRetriesFailedCapture(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)
	h.ToQAPending(t, o.ID)

	h.Ledger.FailCapture.Store(true)
	if _, err := h.Service.ApproveQA(ctx, ordertest.Driver, o.ID); err == nil {
		t.Fatal("expected capture failure")
	}
	h.Ledger.FailCapture.Store(false)

	rep, err := newService(h, h.Scheduler).Recover(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rep.Captured != 1 {
		t.Fatalf("report = %+v", rep)
	}
	got, _ := h.Service.GetOrder(ctx, ordertest.Driver, o.ID)
	if got.Status != models.StatusPaid {
		t.Fatalf("status = %s, want PAID", got.Status)
	}
}

func TestHandleAutoApproveAfterExplicitDecision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	svc := newService(h, h.Scheduler)

	approved := h.Create(t, 600)
	h.ToQAPending(t, approved.ID)
	if _, err := h.Service.ApproveQA(ctx, ordertest.Driver, approved.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	rejected := h.Create(t, 700)
	h.ToQAPending(t, rejected.ID)
	if _, err := h.Service.RejectQA(ctx, ordertest.Driver, rejected.ID, "missed a spot", nil); err != nil {
		t.Fatalf("reject: %v", err)
	}

	h.Clock.Advance(20 * time.Minute)
	for _, id := range []string{approved.ID, rejected.ID, "unknown"} {
		if err := svc.HandleAutoApprove(ctx, id); err != nil {
			t.Fatalf("timer for %s: %v", id, err)
		}
	}
	got, _ := h.Service.GetOrder(ctx, ordertest.Driver, rejected.ID)
	if got.Status != models.StatusInProgress {
		t.Fatalf("timer overrode a rejection: %s", got.Status)
	}
}

func TestLocalSchedulerFiresAndReplaces(t *testing.T) {
	t.Parallel()
	clock := utils.NewManualClock(ordertest.Start)
	fired := make(chan string, 4)
	s := qa.NewLocalScheduler(clock, func(_ context.Context, orderID string) error {
		fired <- orderID
		return nil
	}, nil)
	defer s.Stop()

	ctx := context.Background()
	s.ScheduleAutoApproval(ctx, "later", clock.Now().Add(time.Hour))
	s.ScheduleAutoApproval(ctx, "later", clock.Now().Add(2*time.Hour))
	if s.Pending() != 1 {
		t.Fatalf("pending = %d, want one timer per order", s.Pending())
	}

	s.ScheduleAutoApproval(ctx, "overdue", clock.Now().Add(-time.Minute))
	select {
	case id := <-fired:
		if id != "overdue" {
			t.Fatalf("fired %s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("overdue wake-up never fired")
	}

	s.Stop()
	if s.Pending() != 0 {
		t.Fatalf("pending after stop = %d", s.Pending())
	}
}

// draft stores an order the way CreateOrder does before confirming it, then
// takes its slot and, when hold is set, its escrow hold.
func draft(t *testing.T, h *ordertest.Harness, id string, start int, hold bool) *models.Order {
	t.Helper()
	ctx := context.Background()
	o := &models.Order{
		ID:         id,
		DriverID:   ordertest.DriverID,
		ProviderID: ordertest.ProviderID,
		Status:     models.StatusPriced,
		Schedule: models.Schedule{
			Mode: models.ModeShop, LaneID: ordertest.LaneID, Date: ordertest.Date,
			StartMinute: start, EndMinute: start + 35,
		},
		Escrow:    models.EscrowSnapshot{Status: models.EscrowPending},
		CreatedAt: h.Clock.Now(),
		UpdatedAt: h.Clock.Now(),
	}
	if err := h.Orders.Create(ctx, o); err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := h.Slots.ReserveSlot(ctx, slots.ReserveRequest{LaneID: ordertest.LaneID, Date: ordertest.Date, Start: start, End: start + 35, OrderID: id}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if hold {
		if _, err := h.Ledger.Hold(ctx, escrow.HoldRequest{OrderID: id, Amount: ordertest.Price, Currency: "KES"}); err != nil {
			t.Fatalf("hold: %v", err)
		}
	}
	return o
}

func TestRecoverDiscardsInterruptedBookings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)

	draft(t, h, "crashed-after-hold", 600, true)
	draft(t, h, "crashed-after-reserve", 700, false)
	h.Clock.Advance(11 * time.Minute)
	draft(t, h, "in-flight", 800, true)

	rep, err := newService(h, h.Scheduler).Recover(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if rep.Discarded != 2 || rep.Failed != 0 {
		t.Fatalf("report = %+v", rep)
	}

	for _, id := range []string{"crashed-after-hold", "crashed-after-reserve"} {
		if _, err := h.Orders.GetByID(ctx, id); err == nil {
			t.Errorf("draft %s still stored", id)
		}
	}
	tx, err := h.Ledger.GetByOrder(ctx, "crashed-after-hold")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if tx.Status != models.EscrowRefunded || tx.RefundedAmount != ordertest.Price {
		t.Fatalf("hold not returned: %s refunded %d", tx.Status, tx.RefundedAmount)
	}

	day, _ := h.Lanes.GetDay(ctx, ordertest.LaneID, ordertest.Date)
	if len(day.Slots) != 1 || day.Slots[0].OrderID != "in-flight" {
		t.Fatalf("slots = %+v, want only the in-flight booking", day.Slots)
	}
	if _, err := h.Orders.GetByID(ctx, "in-flight"); err != nil {
		t.Fatalf("young draft removed: %v", err)
	}

	// The freed windows can be booked again.
	if o := h.Create(t, 600); o.Status != models.StatusDriverConfirmed {
		t.Fatalf("rebooking = %s", o.Status)
	}
}
