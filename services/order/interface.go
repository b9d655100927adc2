package order

import (
	"context"
	"time"

	"washflow/models"
)

// CreateOrderRequest is what a driver submits to book a wash.
type CreateOrderRequest struct {
	VehicleID   string             `json:"vehicleId" binding:"required"`
	ProviderID  string             `json:"providerId" binding:"required"`
	PackageID   string             `json:"packageId" binding:"required"`
	Mode        models.ServiceMode `json:"mode" binding:"required"`
	LaneID      string             `json:"laneId"`
	Date        string             `json:"date" binding:"required"`
	StartMinute int                `json:"startMinute"`
	Location    *models.GeoPoint   `json:"location"`
	PaymentRef  string             `json:"paymentRef" binding:"required"`
}

type StepAction string

const (
	StepAttach   StepAction = "attach"
	StepComplete StepAction = "complete"
	StepSkip     StepAction = "skip"
)

// StepUpdate attaches evidence to a work step and optionally closes it.
type StepUpdate struct {
	Action StepAction `json:"action" binding:"required"`
	Photos []string   `json:"photos"`
	Notes  string     `json:"notes"`
}

type QASubmission struct {
	Photos    []string               `json:"photos"`
	Checklist []models.ChecklistItem `json:"checklist"`
}

// ConsistencyReport is the outcome of cross-checking an order against its ledger entry.
type ConsistencyReport struct {
	OrderID      string              `json:"orderId"`
	OrderStatus  models.OrderStatus  `json:"orderStatus"`
	EscrowStatus models.EscrowStatus `json:"escrowStatus"`
	Consistent   bool                `json:"consistent"`
	Problems     []string            `json:"problems,omitempty"`
}

// OrderService drives an order from booking to a terminal status.
type OrderService interface {
	CreateOrder(ctx context.Context, by models.Caller, req CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, by models.Caller, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, by models.Caller, filter models.OrderFilter) ([]models.Order, error)

	AcceptOrder(ctx context.Context, by models.Caller, orderID string) (*models.Order, error)
	MarkEnRoute(ctx context.Context, by models.Caller, orderID string) (*models.Order, error)
	CheckIn(ctx context.Context, by models.Caller, orderID string) (*models.Order, error)
	StartWork(ctx context.Context, by models.Caller, orderID string) (*models.Order, error)
	UpdateWorkStep(ctx context.Context, by models.Caller, orderID string, index int, update StepUpdate) (*models.Order, error)
	SubmitQA(ctx context.Context, by models.Caller, orderID string, sub QASubmission) (*models.Order, error)

	ApproveQA(ctx context.Context, by models.Caller, orderID string) (*models.Order, error)
	RejectQA(ctx context.Context, by models.Caller, orderID, feedback string, reworkSteps []int) (*models.Order, error)
	// AutoApprove is the timer callback. It returns a PreconditionFailed error
	// when the order has already left QA_PENDING.
	AutoApprove(ctx context.Context, orderID string) (*models.Order, error)
	CapturePayment(ctx context.Context, by models.Caller, orderID string) (*models.Order, error)
	SubmitReview(ctx context.Context, by models.Caller, orderID string, rating int, comment string) (*models.Order, error)

	// CancelOrder records the cancellation and releases the slot. When the
	// refund cannot be settled inline, the cancelled order is returned together
	// with a DependencyFailure coded refund_pending and settlement is retried
	// in the background.
	CancelOrder(ctx context.Context, by models.Caller, orderID, reason string) (*models.Order, error)
	SettleCancellation(ctx context.Context, orderID string) (*models.Order, error)
	SettlePendingCancellations(ctx context.Context) (int, error)
	// DiscardStaleDrafts compensates bookings interrupted before confirmation.
	DiscardStaleDrafts(ctx context.Context) (int, error)

	VerifyConsistency(ctx context.Context, by models.Caller, orderID string) (*ConsistencyReport, error)
}

// ApprovalScheduler arranges a wake-up for the QA auto-approval deadline.
type ApprovalScheduler interface {
	ScheduleAutoApproval(ctx context.Context, orderID string, at time.Time) error
}

// SettlementQueue retries cancellation refunds until they land.
type SettlementQueue interface {
	EnqueueSettlement(ctx context.Context, orderID string) error
}

// Policy holds the business constants of the lifecycle.
type Policy struct {
	QAWindow    time.Duration
	PenaltyRate float64
	DraftTTL    time.Duration // age after which an unconfirmed draft is abandoned
}

func DefaultPolicy() Policy {
	return Policy{QAWindow: 15 * time.Minute, PenaltyRate: 0.30, DraftTTL: 10 * time.Minute}
}
