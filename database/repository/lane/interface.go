package laneRepo

import (
	"context"

	"washflow/models"
)

// LaneRepository stores lanes and their per-day slot lists.
type LaneRepository interface {
	Create(ctx context.Context, lane *models.Lane) error
	GetByID(ctx context.Context, laneID string) (*models.Lane, error)
	ListByProvider(ctx context.Context, providerID string) ([]models.Lane, error)

	// GetDay returns the slot list for a lane on date; a day with no
	// occupied slots is returned empty rather than as ErrNotFound.
	GetDay(ctx context.Context, laneID, date string) (*models.LaneDay, error)

	// InsertSlotIfFree appends slot in a single conditional write that only
	// succeeds when no occupied slot on that lane/day overlaps it.
	// Returns repository.ErrSlotTaken otherwise.
	InsertSlotIfFree(ctx context.Context, laneID, providerID, date string, slot models.Slot) error

	// RemoveSlot removes the slot starting at start owned by orderID (empty for
	// provider blocks). Reports whether anything was removed.
	RemoveSlot(ctx context.Context, laneID, date string, start int, orderID string) (bool, error)

	// SetSlotStatus moves an order's slot to a new status.
	SetSlotStatus(ctx context.Context, laneID, date string, start int, orderID string, status models.SlotStatus) error
}
