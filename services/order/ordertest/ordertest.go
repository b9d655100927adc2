// Package ordertest wires an order service over in-memory stores for tests
// of the order engine and the components built on it.
package ordertest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"washflow/database/repository/memstore"
	"washflow/models"
	"washflow/services/directory"
	"washflow/services/escrow"
	"washflow/services/order"
	"washflow/services/pricing"
	"washflow/services/rewards"
	"washflow/services/slots"
	"washflow/utils"
)

const (
	DriverID   = "drv-1"
	VehicleID  = "veh-1"
	ProviderID = "prov-1"
	LaneID     = "lane-1"
	PackageID  = "basic"
	Date       = "2026-03-02" // a Monday
	Price      = int64(15000)
)

var (
	Driver   = models.Caller{ID: DriverID, Role: models.RoleDriver}
	Provider = models.Caller{ID: ProviderID, Role: models.RoleProvider}
	Operator = models.Caller{ID: "ops-1", Role: models.RoleOperator}
	// Start is the harness clock: the Sunday before Date.
	Start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

type Harness struct {
	Service     *order.DefaultOrderService
	Clock       *utils.ManualClock
	Orders      *memstore.OrderStore
	Lanes       *memstore.LaneStore
	LedgerStore *memstore.LedgerStore
	Ledger      *FaultyLedger
	Slots       *slots.DefaultSlotAllocator
	Directory   *memstore.Directory
	Notifier    *RecordingNotifier
	Alerts      *RecordingAlerter
	Scheduler   *RecordingScheduler
	Points      *rewards.MemoryPointsStore
}

// New builds a harness with one driver, one provider offering a three-step
// package priced at Price, and one lane open 08:00-17:00 on Mondays.
func New(t testing.TB) *Harness {
	t.Helper()
	h := &Harness{
		Clock:       utils.NewManualClock(Start),
		Orders:      memstore.NewOrderStore(),
		Lanes:       memstore.NewLaneStore(),
		LedgerStore: memstore.NewLedgerStore(),
		Directory:   memstore.NewDirectory(),
		Notifier:    &RecordingNotifier{},
		Alerts:      &RecordingAlerter{},
		Scheduler:   &RecordingScheduler{},
		Points:      rewards.NewMemoryPointsStore(),
	}
	locker := utils.NewLocalLocker()

	h.Directory.PutDriver(models.DriverProfile{ID: DriverID, Name: "Wanjiru", Active: true})
	h.Directory.PutVehicle(models.VehicleRecord{ID: VehicleID, DriverID: DriverID, Make: "Toyota", Model: "Axio", Plate: "KDA 123A", Segment: "sedan"})
	h.Directory.PutProvider(models.ProviderProfile{
		ID:       ProviderID,
		Name:     "Sparkle Bay",
		Active:   true,
		Modes:    []models.ServiceMode{models.ModeShop, models.ModeMobile},
		Location: models.GeoPoint{Lat: -1.2921, Lng: 36.8219},
		Packages: []models.PackageSnapshot{{
			ID:              PackageID,
			Name:            "Basic wash",
			Tier:            "basic",
			BasePrice:       Price,
			Currency:        "KES",
			DurationMinutes: 30,
			Steps: []models.PackageStep{
				{Name: "rinse"},
				{Name: "foam", RequiresPhoto: true},
				{Name: "wax", Optional: true},
			},
			QAChecklist:      []string{"exterior"},
			RequiredQAPhotos: 1,
		}},
	})

	h.Slots = slots.NewSlotAllocator(h.Lanes, locker, h.Clock, nil)
	_, err := h.Slots.RegisterLane(context.Background(), Provider, models.Lane{
		ID:       LaneID,
		Name:     "Bay 1",
		Capacity: models.LaneCapacity{ParallelJobs: 1, AverageDurationMinutes: 30, BufferMinutes: 5},
		WorkingHours: map[string]models.WorkingDay{
			"monday": {Open: 480, Close: 1020},
		},
	})
	if err != nil {
		t.Fatalf("register lane: %v", err)
	}

	h.Ledger = &FaultyLedger{Ledger: escrow.NewMockLedger(h.LedgerStore, h.Clock, nil)}
	h.Service = order.NewOrderService(h.Orders, h.Slots, h.Ledger, FixedPricing{}, directory.NewDirectory(h.Directory), locker, h.Clock, nil)
	h.Service.Notifier = h.Notifier
	h.Service.Alerts = h.Alerts
	h.Service.Scheduler = h.Scheduler
	h.Service.Rewards = rewards.NewDirectAwarder(h.Points, nil)
	h.Service.Retry = utils.RetryPolicy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return h
}

// Request is a shop booking at start minutes past midnight on Date.
func Request(start int) order.CreateOrderRequest {
	return order.CreateOrderRequest{
		VehicleID:   VehicleID,
		ProviderID:  ProviderID,
		PackageID:   PackageID,
		Mode:        models.ModeShop,
		LaneID:      LaneID,
		Date:        Date,
		StartMinute: start,
		PaymentRef:  "tok_visa",
	}
}

func (h *Harness) Create(t testing.TB, start int) *models.Order {
	t.Helper()
	o, err := h.Service.CreateOrder(context.Background(), Driver, Request(start))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

// ToQAPending walks a confirmed shop order through accept, check-in, work and
// QA submission.
func (h *Harness) ToQAPending(t testing.TB, orderID string) *models.Order {
	t.Helper()
	ctx := context.Background()
	svc := h.Service
	steps := []func() (*models.Order, error){
		func() (*models.Order, error) { return svc.AcceptOrder(ctx, Provider, orderID) },
		func() (*models.Order, error) { return svc.CheckIn(ctx, Provider, orderID) },
		func() (*models.Order, error) { return svc.StartWork(ctx, Provider, orderID) },
		func() (*models.Order, error) {
			return svc.UpdateWorkStep(ctx, Provider, orderID, 0, order.StepUpdate{Action: order.StepComplete})
		},
		func() (*models.Order, error) {
			return svc.UpdateWorkStep(ctx, Provider, orderID, 1, order.StepUpdate{Action: order.StepComplete, Photos: []string{"foam.jpg"}})
		},
		func() (*models.Order, error) {
			return svc.UpdateWorkStep(ctx, Provider, orderID, 2, order.StepUpdate{Action: order.StepSkip})
		},
		func() (*models.Order, error) {
			return svc.SubmitQA(ctx, Provider, orderID, order.QASubmission{
				Photos:    []string{"after.jpg"},
				Checklist: []models.ChecklistItem{{Item: "exterior", Passed: true}},
			})
		},
	}
	var o *models.Order
	for i, step := range steps {
		var err error
		if o, err = step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return o
}

// FixedPricing quotes every order at the package base price.
type FixedPricing struct{}

func (FixedPricing) Quote(_ context.Context, req pricing.QuoteRequest) (*models.PricingBreakdown, error) {
	return &models.PricingBreakdown{
		BasePrice:          req.Package.BasePrice,
		SegmentMultiplier:  1,
		DensityCoefficient: 1,
		FinalPrice:         req.Package.BasePrice,
		Currency:           req.Package.Currency,
	}, nil
}

// FaultyLedger fails selected operations with a dependency error.
type FaultyLedger struct {
	escrow.Ledger
	FailHold    atomic.Bool
	FailCapture atomic.Bool
	FailRefund  atomic.Bool
	FailFreeze  atomic.Bool
}

func unavailable() error {
	return utils.NewDependencyError("escrow_unavailable", "escrow provider unavailable", nil)
}

func (f *FaultyLedger) Hold(ctx context.Context, req escrow.HoldRequest) (*models.EscrowTransaction, error) {
	if f.FailHold.Load() {
		return nil, unavailable()
	}
	return f.Ledger.Hold(ctx, req)
}

func (f *FaultyLedger) Capture(ctx context.Context, txID string, amount int64, opts ...escrow.CallOption) (*models.EscrowTransaction, error) {
	if f.FailCapture.Load() {
		return nil, unavailable()
	}
	return f.Ledger.Capture(ctx, txID, amount, opts...)
}

func (f *FaultyLedger) Refund(ctx context.Context, txID string, amount int64, reason string, opts ...escrow.CallOption) (*models.EscrowTransaction, error) {
	if f.FailRefund.Load() {
		return nil, unavailable()
	}
	return f.Ledger.Refund(ctx, txID, amount, reason, opts...)
}

func (f *FaultyLedger) Freeze(ctx context.Context, txID, reason string) (*models.EscrowTransaction, error) {
	if f.FailFreeze.Load() {
		return nil, unavailable()
	}
	return f.Ledger.Freeze(ctx, txID, reason)
}

type Notification struct {
	UserID string
	Kind   models.NotificationKind
}

type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []Notification
}

func (n *RecordingNotifier) Notify(_ context.Context, userID string, kind models.NotificationKind, _ map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, Notification{UserID: userID, Kind: kind})
	return nil
}

func (n *RecordingNotifier) Count(kind models.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.Sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}

type RecordingAlerter struct {
	mu     sync.Mutex
	Alerts []models.OperatorAlert
}

func (a *RecordingAlerter) RaiseAlert(_ context.Context, alert models.OperatorAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Alerts = append(a.Alerts, alert)
	return nil
}

func (a *RecordingAlerter) Kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Alerts))
	for _, al := range a.Alerts {
		out = append(out, al.Kind)
	}
	return out
}

type Wakeup struct {
	OrderID string
	At      time.Time
}

type RecordingScheduler struct {
	mu      sync.Mutex
	Wakeups []Wakeup
}

func (s *RecordingScheduler) ScheduleAutoApproval(_ context.Context, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Wakeups = append(s.Wakeups, Wakeup{OrderID: orderID, At: at})
	return nil
}

func (s *RecordingScheduler) Last() (Wakeup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Wakeups) == 0 {
		return Wakeup{}, false
	}
	return s.Wakeups[len(s.Wakeups)-1], true
}
