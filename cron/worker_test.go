package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"washflow/database/repository/memstore"
	"washflow/models"
	"washflow/services/dispute"
	"washflow/services/order/ordertest"
	"washflow/services/qa"
	"washflow/services/rewards"
	"washflow/services/tasks"

	"github.com/hibiken/asynq"
)

func newWorker(t *testing.T) (*Worker, *ordertest.Harness, *rewards.MemoryPointsStore) {
	t.Helper()
	h := ordertest.New(t)
	points := rewards.NewMemoryPointsStore()
	w := &Worker{
		QA:       qa.NewService(h.Orders, h.Service, h.Scheduler, h.Clock, nil),
		Orders:   h.Service,
		Disputes: dispute.NewDisputeService(memstore.NewDisputeStore(), h.Service, h.Ledger, h.Clock, nil),
		Delivery: h.Notifier,
		Alerts:   h.Alerts,
		Points:   points,
	}
	return w, h, points
}

func TestAutoApproveTaskCapturesPayment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, h, _ := newWorker(t)
	o := h.Create(t, 600)
	h.ToQAPending(t, o.ID)

	due, _ := h.Scheduler.Last()
	h.Clock.Set(due.At)
	task, _, err := tasks.NewQAAutoApproveTask(o.ID, due.At)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.handleAutoApprove(ctx, task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, _ := h.Service.GetOrder(ctx, ordertest.Driver, o.ID)
	if got.Status != models.StatusPaid {
		t.Fatalf("status = %s", got.Status)
	}

	// A redelivered task after the order moved on is acknowledged.
	if err := w.handleAutoApprove(ctx, task); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	t.Parallel()
	w, _, _ := newWorker(t)
	err := w.handleAutoApprove(context.Background(), asynq.NewTask(tasks.TypeQAAutoApprove, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
}

func TestSettlementTaskCompletesRefund(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, h, _ := newWorker(t)
	o := h.Create(t, 600)

	h.Ledger.FailRefund.Store(true)
	if _, err := h.Service.CancelOrder(ctx, ordertest.Driver, o.ID, "plans changed"); err == nil {
		t.Fatal("expected refund_pending")
	}
	h.Ledger.FailRefund.Store(false)

	task, _, err := tasks.NewSettleCancellationTask(o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.handleSettlement(ctx, task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got, _ := h.Service.GetOrder(ctx, ordertest.Driver, o.ID)
	if got.Cancellation.RefundStatus != models.RefundCompleted {
		t.Fatalf("refund status = %s", got.Cancellation.RefundStatus)
	}
}

func TestRewardTaskIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, _, points := newWorker(t)

	task, _, err := tasks.NewRewardTask(models.RewardPayload{UserID: "drv-1", OrderID: "ord-1", Points: 150, Category: "wash"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := w.handleReward(ctx, task); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if bal, _ := points.Balance(ctx, "drv-1"); bal != 150 {
		t.Fatalf("balance = %d, want 150", bal)
	}
}

func TestNotificationAndAlertTasksReachSinks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, h, _ := newWorker(t)

	nt, _, _ := tasks.NewNotificationTask(models.NotificationPayload{UserID: "drv-1", Kind: models.NotifyOrderAccepted})
	if err := w.handleNotification(ctx, nt); err != nil {
		t.Fatal(err)
	}
	if h.Notifier.Count(models.NotifyOrderAccepted) != 1 {
		t.Fatal("notification not delivered")
	}

	at, _, _ := tasks.NewOperatorAlertTask(models.OperatorAlert{Kind: "refund_stuck", OrderID: "ord-1", RaisedAt: time.Now()})
	if err := w.handleAlert(ctx, at); err != nil {
		t.Fatal(err)
	}
	if kinds := h.Alerts.Kinds(); len(kinds) != 1 || kinds[0] != "refund_stuck" {
		t.Fatalf("alerts = %v", kinds)
	}
}

func TestPeriodicTasksRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w, h, _ := newWorker(t)
	o := h.Create(t, 600)
	h.ToQAPending(t, o.ID)
	h.Clock.Advance(time.Hour)

	if err := w.handleSweep(ctx, tasks.NewSweepTask()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	got, _ := h.Service.GetOrder(ctx, ordertest.Driver, o.ID)
	if got.Status != models.StatusPaid {
		t.Fatalf("sweep left order in %s", got.Status)
	}
	if err := w.handleSLACheck(ctx, tasks.NewDisputeSLACheckTask()); err != nil {
		t.Fatalf("sla check: %v", err)
	}
}
