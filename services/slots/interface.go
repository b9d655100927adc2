package slots

import (
	"context"

	"washflow/models"
)

// ReserveRequest asks for a lane window on behalf of an order.
type ReserveRequest struct {
	LaneID  string
	Date    string // YYYY-MM-DD
	Start   int    // minutes from midnight
	End     int
	OrderID string
}

// BlockRequest is a provider taking a window out of service.
type BlockRequest struct {
	LaneID string
	Date   string
	Start  int
	End    int
	Reason string
}

// SlotAllocator hands out lane time without double-booking.
type SlotAllocator interface {
	RegisterLane(ctx context.Context, by models.Caller, lane models.Lane) (*models.Lane, error)
	GetLane(ctx context.Context, laneID string) (*models.Lane, error)
	ListAvailableSlots(ctx context.Context, laneIDs []string, date string, durationMinutes int) ([]models.AvailableSlot, error)
	ReserveSlot(ctx context.Context, req ReserveRequest) (*models.Slot, error)
	ReleaseSlot(ctx context.Context, laneID, date string, start int, orderID string) error
	MarkSlot(ctx context.Context, laneID, date string, start int, orderID string, status models.SlotStatus) error
	BlockWindow(ctx context.Context, by models.Caller, req BlockRequest) error
	UnblockWindow(ctx context.Context, by models.Caller, laneID, date string, start int) error
	OccupancyRate(ctx context.Context, providerID, date string) (*models.Occupancy, error)
}
