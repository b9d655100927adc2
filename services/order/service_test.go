package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"washflow/models"
	"washflow/services/order"
	"washflow/services/order/ordertest"
	"washflow/utils"

	"golang.org/x/sync/errgroup"
)

func mustKind(t *testing.T, err error, kind utils.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if !utils.IsKind(err, kind) {
		t.Fatalf("expected %s error, got %v", kind, err)
	}
}

func laneSlots(t *testing.T, h *ordertest.Harness) []models.Slot {
	t.Helper()
	day, err := h.Lanes.GetDay(context.Background(), ordertest.LaneID, ordertest.Date)
	if err != nil {
		t.Fatalf("get day: %v", err)
	}
	return day.Slots
}

type recordingQueue struct {
	mu  sync.Mutex
	ids []string
}

func (q *recordingQueue) EnqueueSettlement(_ context.Context, orderID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, orderID)
	return nil
}

func TestCreateOrderReservesAndHolds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)

	o := h.Create(t, 600)
	if o.Status != models.StatusDriverConfirmed {
		t.Fatalf("status = %s, want DRIVER_CONFIRMED", o.Status)
	}
	if o.Escrow.Status != models.EscrowHeld || o.Escrow.Amount != ordertest.Price {
		t.Fatalf("escrow = %+v", o.Escrow)
	}
	if o.Schedule.EndMinute != 635 {
		t.Fatalf("window end = %d, want 635 (30 min wash + 5 min buffer)", o.Schedule.EndMinute)
	}
	if len(o.History) != 2 || o.History[0].To != models.StatusPriced {
		t.Fatalf("history = %+v", o.History)
	}

	_, err := h.Service.CreateOrder(ctx, ordertest.Driver, ordertest.Request(600))
	mustKind(t, err, utils.KindConflict)
	_, err = h.Service.CreateOrder(ctx, ordertest.Driver, ordertest.Request(620))
	mustKind(t, err, utils.KindConflict)

	// Touching the end of the first window is fine.
	h.Create(t, 635)

	orders, err := h.Service.ListOrders(ctx, ordertest.Driver, models.OrderFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("orders = %d, want 2; losing drafts must be discarded", len(orders))
	}
	if got := h.Notifier.Count(models.NotifyOrderConfirmed); got != 4 {
		t.Fatalf("confirmation notifications = %d, want 4", got)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)

	cases := []struct {
		name   string
		caller models.Caller
		mutate func(r *order.CreateOrderRequest)
		kind   utils.ErrorKind
	}{
		{"provider cannot book", ordertest.Provider, func(*order.CreateOrderRequest) {}, utils.KindForbidden},
		{"foreign vehicle", ordertest.Driver, func(r *order.CreateOrderRequest) { r.VehicleID = "missing" }, utils.KindNotFound},
		{"unknown package", ordertest.Driver, func(r *order.CreateOrderRequest) { r.PackageID = "gold" }, utils.KindNotFound},
		{"outside hours", ordertest.Driver, func(r *order.CreateOrderRequest) { r.StartMinute = 1000 }, utils.KindValidation},
		{"bad date", ordertest.Driver, func(r *order.CreateOrderRequest) { r.Date = "02/03/2026" }, utils.KindValidation},
		{"past window", ordertest.Driver, func(r *order.CreateOrderRequest) { r.Date = "2026-02-23" }, utils.KindValidation},
		{"mobile without location", ordertest.Driver, func(r *order.CreateOrderRequest) { r.Mode = models.ModeMobile }, utils.KindValidation},
	}
	for _, tc := range cases {
		req := ordertest.Request(600)
		tc.mutate(&req)
		_, err := h.Service.CreateOrder(ctx, tc.caller, req)
		if !utils.IsKind(err, tc.kind) {
			t.Errorf("%s: got %v, want %s", tc.name, err, tc.kind)
		}
	}
	if slots := laneSlots(t, h); len(slots) != 0 {
		t.Fatalf("rejected bookings left slots behind: %+v", slots)
	}
}

func TestHoldFailureReleasesSlot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)

	h.Ledger.FailHold.Store(true)
	_, err := h.Service.CreateOrder(ctx, ordertest.Driver, ordertest.Request(600))
	mustKind(t, err, utils.KindDependency)

	if slots := laneSlots(t, h); len(slots) != 0 {
		t.Fatalf("slot kept after failed hold: %+v", slots)
	}
	orders, _ := h.Orders.List(ctx, models.OrderFilter{})
	if len(orders) != 0 {
		t.Fatalf("draft order kept after failed hold")
	}

	h.Ledger.FailHold.Store(false)
	h.Create(t, 600)
}

func TestInvalidTransitionIsRejectedWithoutWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)

	_, err := h.Service.CheckIn(ctx, ordertest.Provider, o.ID)
	mustKind(t, err, utils.KindPrecondition)
	_, err = h.Service.SubmitQA(ctx, ordertest.Provider, o.ID, order.QASubmission{})
	mustKind(t, err, utils.KindPrecondition)
	_, err = h.Service.AcceptOrder(ctx, ordertest.Driver, o.ID)
	mustKind(t, err, utils.KindForbidden)

	after, err := h.Service.GetOrder(ctx, ordertest.Driver, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Version != o.Version || after.Status != models.StatusDriverConfirmed {
		t.Fatalf("rejected transitions changed the order: %+v", after)
	}
}

func TestWorkStepsEnforceEvidence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	svc := h.Service
	o := h.Create(t, 600)

	for _, step := range []func() (*models.Order, error){
		func() (*models.Order, error) { return svc.AcceptOrder(ctx, ordertest.Provider, o.ID) },
		func() (*models.Order, error) { return svc.CheckIn(ctx, ordertest.Provider, o.ID) },
		func() (*models.Order, error) { return svc.StartWork(ctx, ordertest.Provider, o.ID) },
	} {
		if _, err := step(); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}
	if got := laneSlots(t, h); len(got) != 1 || got[0].Status != models.SlotInProgress {
		t.Fatalf("slot after check-in = %+v", got)
	}

	_, err := svc.UpdateWorkStep(ctx, ordertest.Provider, o.ID, 1, order.StepUpdate{Action: order.StepComplete, Photos: []string{"x.jpg"}})
	mustKind(t, err, utils.KindPrecondition)

	cur, err := svc.UpdateWorkStep(ctx, ordertest.Provider, o.ID, 0, order.StepUpdate{Action: order.StepComplete})
	if err != nil {
		t.Fatalf("complete rinse: %v", err)
	}
	if cur.Steps[1].Status != models.StepInProgress {
		t.Fatalf("next step not started: %+v", cur.Steps[1])
	}

	_, err = svc.UpdateWorkStep(ctx, ordertest.Provider, o.ID, 1, order.StepUpdate{Action: order.StepComplete})
	mustKind(t, err, utils.KindValidation)
	_, err = svc.UpdateWorkStep(ctx, ordertest.Provider, o.ID, 1, order.StepUpdate{Action: order.StepSkip})
	mustKind(t, err, utils.KindValidation)

	if _, err := svc.UpdateWorkStep(ctx, ordertest.Provider, o.ID, 1, order.StepUpdate{Action: order.StepAttach, Photos: []string{"foam.jpg"}}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := svc.UpdateWorkStep(ctx, ordertest.Provider, o.ID, 1, order.StepUpdate{Action: order.StepComplete}); err != nil {
		t.Fatalf("complete foam after attaching a photo: %v", err)
	}

	_, err = svc.SubmitQA(ctx, ordertest.Provider, o.ID, order.QASubmission{Photos: []string{"a.jpg"}, Checklist: []models.ChecklistItem{{Item: "exterior", Passed: true}}})
	mustKind(t, err, utils.KindPrecondition)

	if _, err := svc.UpdateWorkStep(ctx, ordertest.Provider, o.ID, 2, order.StepUpdate{Action: order.StepSkip}); err != nil {
		t.Fatalf("skip wax: %v", err)
	}
	_, err = svc.SubmitQA(ctx, ordertest.Provider, o.ID, order.QASubmission{Checklist: []models.ChecklistItem{{Item: "exterior", Passed: true}}})
	mustKind(t, err, utils.KindValidation)
	_, err = svc.SubmitQA(ctx, ordertest.Provider, o.ID, order.QASubmission{Photos: []string{"a.jpg"}})
	mustKind(t, err, utils.KindValidation)
}

func TestApproveCapturesAndPays(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)
	o = h.ToQAPending(t, o.ID)

	if o.Status != models.StatusQAPending || o.QA.AutoApproveAt == nil {
		t.Fatalf("order not waiting on QA: %+v", o)
	}
	wake, ok := h.Scheduler.Last()
	if !ok || wake.OrderID != o.ID || !wake.At.Equal(ordertest.Start.Add(15*time.Minute)) {
		t.Fatalf("wake-up = %+v, want %s at +15m", wake, o.ID)
	}

	paid, err := h.Service.ApproveQA(ctx, ordertest.Driver, o.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if paid.Status != models.StatusPaid || paid.Escrow.Status != models.EscrowCaptured {
		t.Fatalf("after approval: status %s escrow %s", paid.Status, paid.Escrow.Status)
	}
	if paid.QA.AutoApproved {
		t.Fatal("manual approval recorded as automatic")
	}
	if pts, _ := h.Points.Balance(ctx, ordertest.DriverID); pts != 150 {
		t.Fatalf("points = %d, want 150", pts)
	}

	_, err = h.Service.ApproveQA(ctx, ordertest.Driver, o.ID)
	mustKind(t, err, utils.KindPrecondition)

	_, err = h.Service.SubmitReview(ctx, ordertest.Driver, o.ID, 6, "")
	mustKind(t, err, utils.KindValidation)
	reviewed, err := h.Service.SubmitReview(ctx, ordertest.Driver, o.ID, 5, "spotless")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if reviewed.Status != models.StatusReviewed {
		t.Fatalf("status = %s, want REVIEWED", reviewed.Status)
	}
	_, err = h.Service.CancelOrder(ctx, ordertest.Driver, o.ID, "changed mind")
	mustKind(t, err, utils.KindPrecondition)
}

func TestCaptureFailureLeavesOrderCompleted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)
	h.ToQAPending(t, o.ID)

	h.Ledger.FailCapture.Store(true)
	_, err := h.Service.ApproveQA(ctx, ordertest.Driver, o.ID)
	mustKind(t, err, utils.KindDependency)
	if utils.CodeOf(err) != "capture_failed" {
		t.Fatalf("code = %s, want capture_failed", utils.CodeOf(err))
	}

	stuck, _ := h.Service.GetOrder(ctx, ordertest.Driver, o.ID)
	if stuck.Status != models.StatusCompleted || stuck.Escrow.Status != models.EscrowHeld {
		t.Fatalf("after failed capture: status %s escrow %s", stuck.Status, stuck.Escrow.Status)
	}

	h.Ledger.FailCapture.Store(false)
	paid, err := h.Service.CapturePayment(ctx, ordertest.Driver, o.ID)
	if err != nil {
		t.Fatalf("capture retry: %v", err)
	}
	if paid.Status != models.StatusPaid {
		t.Fatalf("status = %s, want PAID", paid.Status)
	}
	again, err := h.Service.CapturePayment(ctx, ordertest.Operator, o.ID)
	if err != nil || again.Status != models.StatusPaid {
		t.Fatalf("repeat capture on paid order: %v %+v", err, again)
	}
}

func TestCancelAfterAcceptRetainsPenalty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)
	if _, err := h.Service.AcceptOrder(ctx, ordertest.Provider, o.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	c, err := h.Service.CancelOrder(ctx, ordertest.Driver, o.ID, "running late")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if c.Status != models.StatusCancelledByDriver {
		t.Fatalf("status = %s", c.Status)
	}
	if c.Cancellation.RefundAmount != 10500 || c.Cancellation.PenaltyAmount != 4500 {
		t.Fatalf("cancellation = %+v, want refund 10500 penalty 4500", c.Cancellation)
	}
	if c.Cancellation.RefundStatus != models.RefundCompleted || !c.Cancellation.SlotReleased {
		t.Fatalf("cancellation = %+v", c.Cancellation)
	}

	tx, err := h.Ledger.GetStatus(ctx, c.Escrow.TransactionID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if tx.Status != models.EscrowCaptured || tx.CapturedAmount != 4500 || tx.RefundedAmount != 10500 {
		t.Fatalf("ledger = status %s captured %d refunded %d", tx.Status, tx.CapturedAmount, tx.RefundedAmount)
	}
	if slots := laneSlots(t, h); len(slots) != 0 {
		t.Fatalf("slot not released: %+v", slots)
	}
	h.Create(t, 600)
}

func TestCancellationRefunds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		accept      bool
		by          models.Caller
		want        models.OrderStatus
		wantRefund  int64
		wantPenalty int64
		wantEscrow  models.EscrowStatus
	}{
		{"driver before acceptance", false, ordertest.Driver, models.StatusCancelledByDriver, ordertest.Price, 0, models.EscrowRefunded},
		{"provider before acceptance", false, ordertest.Provider, models.StatusCancelledByProvider, ordertest.Price, 0, models.EscrowRefunded},
		{"driver after acceptance", true, ordertest.Driver, models.StatusCancelledByDriver, 10500, 4500, models.EscrowCaptured},
		{"provider after acceptance", true, ordertest.Provider, models.StatusCancelledByProvider, 10500, 4500, models.EscrowCaptured},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			h := ordertest.New(t)
			o := h.Create(t, 600)
			if tc.accept {
				if _, err := h.Service.AcceptOrder(ctx, ordertest.Provider, o.ID); err != nil {
					t.Fatalf("accept: %v", err)
				}
			}
			c, err := h.Service.CancelOrder(ctx, tc.by, o.ID, "")
			if err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if c.Status != tc.want || c.Cancellation.PenaltyAmount != tc.wantPenalty || c.Cancellation.RefundAmount != tc.wantRefund {
				t.Fatalf("cancelled order = %s %+v", c.Status, c.Cancellation)
			}
			if c.Escrow.Status != tc.wantEscrow {
				t.Fatalf("escrow = %s, want %s", c.Escrow.Status, tc.wantEscrow)
			}
			if !c.Cancellation.SlotReleased {
				t.Fatal("slot not released")
			}
		})
	}
}

func TestCancelIsOnlyAllowedBeforeCheckIn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)
	h.Service.AcceptOrder(ctx, ordertest.Provider, o.ID)
	h.Service.CheckIn(ctx, ordertest.Provider, o.ID)

	_, err := h.Service.CancelOrder(ctx, ordertest.Driver, o.ID, "")
	mustKind(t, err, utils.KindPrecondition)
	if slots := laneSlots(t, h); len(slots) != 1 {
		t.Fatalf("rejected cancellation touched the slot: %+v", slots)
	}
}

func TestRefundFailureStillCancels(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	queue := &recordingQueue{}
	h.Service.Settlements = queue
	o := h.Create(t, 600)

	h.Ledger.FailRefund.Store(true)
	c, err := h.Service.CancelOrder(ctx, ordertest.Driver, o.ID, "")
	mustKind(t, err, utils.KindDependency)
	if utils.CodeOf(err) != "refund_pending" {
		t.Fatalf("code = %s, want refund_pending", utils.CodeOf(err))
	}
	if c == nil || c.Status != models.StatusCancelledByDriver || c.Cancellation.RefundStatus != models.RefundPending {
		t.Fatalf("cancellation not recorded: %+v", c)
	}
	if len(queue.ids) != 1 || queue.ids[0] != o.ID {
		t.Fatalf("settlement queue = %v", queue.ids)
	}
	if slots := laneSlots(t, h); len(slots) != 0 {
		t.Fatalf("slot not released: %+v", slots)
	}

	h.Ledger.FailRefund.Store(false)
	n, err := h.Service.SettlePendingCancellations(ctx)
	if err != nil || n != 1 {
		t.Fatalf("settle pending = %d, %v", n, err)
	}
	settled, _ := h.Service.GetOrder(ctx, ordertest.Driver, o.ID)
	if settled.Cancellation.RefundStatus != models.RefundCompleted || settled.Escrow.Status != models.EscrowRefunded {
		t.Fatalf("after settlement: %+v escrow %s", settled.Cancellation, settled.Escrow.Status)
	}
	if settled.Cancellation.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", settled.Cancellation.Attempts)
	}

	again, err := h.Service.SettleCancellation(ctx, o.ID)
	if err != nil || again.Cancellation.Attempts != 2 {
		t.Fatalf("settling a settled order must be a no-op: %v", err)
	}
}

func TestRejectQAReopensWork(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)
	h.ToQAPending(t, o.ID)

	_, err := h.Service.RejectQA(ctx, ordertest.Driver, o.ID, "", nil)
	mustKind(t, err, utils.KindValidation)

	r, err := h.Service.RejectQA(ctx, ordertest.Driver, o.ID, "streaks on the bonnet", []int{1})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if r.Status != models.StatusInProgress || r.QA.RejectionCount != 1 || r.QA.AutoApproveAt != nil {
		t.Fatalf("after reject: %s %+v", r.Status, r.QA)
	}
	if r.Steps[1].Status != models.StepInProgress || r.Steps[0].Status != models.StepCompleted {
		t.Fatalf("steps = %+v", r.Steps)
	}
	if r.Escrow.Status != models.EscrowHeld {
		t.Fatalf("rework moved money: %s", r.Escrow.Status)
	}
	if h.Notifier.Count(models.NotifyQARejected) != 1 {
		t.Fatal("provider not told about the rejection")
	}
}

func TestAutoApproveRacesDriverApproval(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)
	h.ToQAPending(t, o.ID)
	h.Clock.Advance(16 * time.Minute)

	var (
		g      errgroup.Group
		errs   [2]error
		result [2]*models.Order
	)
	g.Go(func() error {
		result[0], errs[0] = h.Service.ApproveQA(ctx, ordertest.Driver, o.ID)
		return nil
	})
	g.Go(func() error {
		result[1], errs[1] = h.Service.AutoApprove(ctx, o.ID)
		return nil
	})
	g.Wait()

	wins := 0
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
			if result[i].Status != models.StatusPaid {
				t.Fatalf("winner status = %s", result[i].Status)
			}
		case !utils.IsKind(err, utils.KindPrecondition):
			t.Fatalf("loser error = %v, want PreconditionFailed", err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}

	tx, _ := h.Ledger.GetByOrder(ctx, o.ID)
	captures := 0
	for _, e := range tx.Log {
		if e.Op == models.LedgerCapture {
			captures++
		}
	}
	if captures != 1 {
		t.Fatalf("captures = %d, want 1", captures)
	}
}

func TestEarlyAutoApproveReschedules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)
	h.ToQAPending(t, o.ID)
	h.Clock.Advance(5 * time.Minute)

	got, err := h.Service.AutoApprove(ctx, o.ID)
	if err != nil {
		t.Fatalf("early wake-up: %v", err)
	}
	if got.Status != models.StatusQAPending {
		t.Fatalf("early wake-up acted: %s", got.Status)
	}
	if len(h.Scheduler.Wakeups) != 2 {
		t.Fatalf("wake-ups = %d, want the original plus a reschedule", len(h.Scheduler.Wakeups))
	}

	h.Clock.Advance(11 * time.Minute)
	paid, err := h.Service.AutoApprove(ctx, o.ID)
	if err != nil {
		t.Fatalf("auto-approve: %v", err)
	}
	if paid.Status != models.StatusPaid || !paid.QA.AutoApproved {
		t.Fatalf("after deadline: %s auto=%v", paid.Status, paid.QA.AutoApproved)
	}
}

func TestMobileOrderGoesEnRoute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)

	req := ordertest.Request(600)
	req.Mode = models.ModeMobile
	req.LaneID = ""
	req.Location = &models.GeoPoint{Lat: -1.30, Lng: 36.80}
	o, err := h.Service.CreateOrder(ctx, ordertest.Driver, req)
	if err != nil {
		t.Fatalf("create mobile: %v", err)
	}
	if len(laneSlots(t, h)) != 0 {
		t.Fatal("mobile order reserved a lane slot")
	}

	h.Service.AcceptOrder(ctx, ordertest.Provider, o.ID)
	_, err = h.Service.CheckIn(ctx, ordertest.Provider, o.ID)
	mustKind(t, err, utils.KindPrecondition)
	if _, err := h.Service.MarkEnRoute(ctx, ordertest.Provider, o.ID); err != nil {
		t.Fatalf("en route: %v", err)
	}
	in, err := h.Service.CheckIn(ctx, ordertest.Provider, o.ID)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if in.ActualStartTime == nil {
		t.Fatal("check-in did not stamp the start time")
	}

	shop := h.Create(t, 700)
	h.Service.AcceptOrder(ctx, ordertest.Provider, shop.ID)
	_, err = h.Service.MarkEnRoute(ctx, ordertest.Provider, shop.ID)
	mustKind(t, err, utils.KindValidation)
}

func TestVerifyConsistency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)

	_, err := h.Service.VerifyConsistency(ctx, ordertest.Driver, o.ID)
	mustKind(t, err, utils.KindForbidden)

	report, err := h.Service.VerifyConsistency(ctx, ordertest.Operator, o.ID)
	if err != nil || !report.Consistent {
		t.Fatalf("fresh order inconsistent: %v %+v", err, report)
	}

	tx, _ := h.LedgerStore.GetByOrderID(ctx, o.ID)
	tx.Status = models.EscrowCaptured
	if err := h.LedgerStore.Update(ctx, tx); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	report, err = h.Service.VerifyConsistency(ctx, ordertest.Operator, o.ID)
	mustKind(t, err, utils.KindInconsistent)
	if report == nil || report.Consistent || len(report.Problems) == 0 {
		t.Fatalf("report = %+v", report)
	}
	kinds := h.Alerts.Kinds()
	if len(kinds) != 1 || kinds[0] != "inconsistency" {
		t.Fatalf("alerts = %v", kinds)
	}

	again, _ := h.Service.GetOrder(ctx, ordertest.Operator, o.ID)
	if again.Escrow.Status != models.EscrowHeld {
		t.Fatal("verification must not correct the order")
	}
}

func TestOrdersAreVisibleToPartiesOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := ordertest.New(t)
	o := h.Create(t, 600)

	stranger := models.Caller{ID: "drv-9", Role: models.RoleDriver}
	_, err := h.Service.GetOrder(ctx, stranger, o.ID)
	mustKind(t, err, utils.KindForbidden)

	list, err := h.Service.ListOrders(ctx, stranger, models.OrderFilter{DriverID: ordertest.DriverID})
	if err != nil || len(list) != 0 {
		t.Fatalf("stranger listed %d orders (%v)", len(list), err)
	}
	list, _ = h.Service.ListOrders(ctx, ordertest.Provider, models.OrderFilter{})
	if len(list) != 1 {
		t.Fatalf("provider sees %d orders, want 1", len(list))
	}

	_, err = h.Service.GetOrder(ctx, ordertest.Driver, "nope")
	mustKind(t, err, utils.KindNotFound)
}
