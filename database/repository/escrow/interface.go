package escrowRepo

import (
	"context"

	"washflow/models"
)

// LedgerStore persists escrow transactions. Implementations must reject a
// second transaction for the same order with repository.ErrDuplicate and
// apply Update only when the stored version matches.
type LedgerStore interface {
	Insert(ctx context.Context, tx *models.EscrowTransaction) error
	GetByID(ctx context.Context, id string) (*models.EscrowTransaction, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.EscrowTransaction, error)
	Update(ctx context.Context, tx *models.EscrowTransaction) error
}
