package memstore

import (
	"context"
	"sync"

	"washflow/database/repository"
	escrowRepo "washflow/database/repository/escrow"
	"washflow/models"
)

type LedgerStore struct {
	mu      sync.Mutex
	byID    map[string]*models.EscrowTransaction
	byOrder map[string]string
}

var _ escrowRepo.LedgerStore = (*LedgerStore)(nil)

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{byID: map[string]*models.EscrowTransaction{}, byOrder: map[string]string{}}
}

func (s *LedgerStore) Insert(_ context.Context, tx *models.EscrowTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byOrder[tx.OrderID]; ok {
		return repository.ErrDuplicate
	}
	if _, ok := s.byID[tx.ID]; ok {
		return repository.ErrDuplicate
	}
	s.byID[tx.ID] = clone(tx)
	s.byOrder[tx.OrderID] = tx.ID
	return nil
}

func (s *LedgerStore) GetByID(_ context.Context, id string) (*models.EscrowTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(tx), nil
}

func (s *LedgerStore) GetByOrderID(_ context.Context, orderID string) (*models.EscrowTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byOrder[orderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *LedgerStore) Update(_ context.Context, tx *models.EscrowTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[tx.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != tx.Version {
		return repository.ErrVersionConflict
	}
	tx.Version++
	s.byID[tx.ID] = clone(tx)
	return nil
}
