package orderRepo

import (
	"context"

	"washflow/models"
)

// OrderRepository persists orders with optimistic concurrency on Version.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)

	// Update replaces the stored order only if its version still equals
	// order.Version, then bumps order.Version. Returns repository.ErrVersionConflict
	// when another writer got there first.
	Update(ctx context.Context, order *models.Order) error

	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, error)
}
