package disputeRepo

import (
	"context"

	"washflow/models"
)

// DisputeRepository persists disputes with optimistic concurrency on Version.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id string) (*models.Dispute, error)
	// GetActiveByOrderID returns the unresolved dispute of an order, or repository.ErrNotFound.
	GetActiveByOrderID(ctx context.Context, orderID string) (*models.Dispute, error)
	Update(ctx context.Context, d *models.Dispute) error
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]models.Dispute, error)
}
