package dispute

import (
	"context"
	"time"

	"washflow/models"
)

type OpenRequest struct {
	Reason      string   `json:"reason" binding:"required"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence"`
}

type ResolveRequest struct {
	Outcome models.DisputeOutcome `json:"outcome" binding:"required"`
	// DriverAmount is the driver's share for a partial outcome, in minor units.
	DriverAmount int64  `json:"driverAmount"`
	Notes        string `json:"notes"`
}

// DisputeService overlays claims on completed or paid orders.
type DisputeService interface {
	OpenDispute(ctx context.Context, by models.Caller, orderID string, req OpenRequest) (*models.Dispute, error)
	GetDispute(ctx context.Context, by models.Caller, disputeID string) (*models.Dispute, error)
	RespondToDispute(ctx context.Context, by models.Caller, disputeID, response string) (*models.Dispute, error)
	// ResolveDispute issues exactly one terminal escrow call and clears the overlay.
	ResolveDispute(ctx context.Context, by models.Caller, disputeID string, req ResolveRequest) (*models.Dispute, error)
	// CheckSLA raises severities of overdue disputes and alerts operators.
	CheckSLA(ctx context.Context) (int, error)
}

// OrderOverlay is the part of the order engine the overlay drives. The
// Enter/Exit calls assume the caller holds the order lock.
type OrderOverlay interface {
	LockOrder(ctx context.Context, orderID string) (func(), error)
	LoadOrder(ctx context.Context, orderID string) (*models.Order, error)
	EnterDispute(ctx context.Context, o *models.Order, disputeID string, tx *models.EscrowTransaction, by models.Caller) error
	ExitDispute(ctx context.Context, o *models.Order, tx *models.EscrowTransaction, by models.Caller) error
}

type Windows struct {
	Response   time.Duration
	Resolution time.Duration
}

func DefaultWindows() Windows {
	return Windows{Response: 24 * time.Hour, Resolution: 72 * time.Hour}
}
