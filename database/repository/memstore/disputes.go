package memstore

import (
	"context"
	"sort"
	"sync"

	"washflow/database/repository"
	disputeRepo "washflow/database/repository/dispute"
	"washflow/models"
)

type DisputeStore struct {
	mu       sync.Mutex
	disputes map[string]*models.Dispute
}

var _ disputeRepo.DisputeRepository = (*DisputeStore)(nil)

func NewDisputeStore() *DisputeStore {
	return &DisputeStore{disputes: map[string]*models.Dispute{}}
}

func (s *DisputeStore) Create(_ context.Context, d *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.disputes[d.ID]; ok {
		return repository.ErrDuplicate
	}
	s.disputes[d.ID] = clone(d)
	return nil
}

func (s *DisputeStore) GetByID(_ context.Context, id string) (*models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(d), nil
}

func (s *DisputeStore) GetActiveByOrderID(_ context.Context, orderID string) (*models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.disputes {
		if d.OrderID == orderID && d.Active() {
			return clone(d), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *DisputeStore) Update(_ context.Context, d *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.disputes[d.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != d.Version {
		return repository.ErrVersionConflict
	}
	d.Version++
	s.disputes[d.ID] = clone(d)
	return nil
}

func (s *DisputeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.disputes, id)
	return nil
}

func (s *DisputeStore) ListActive(_ context.Context) ([]models.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Dispute
	for _, d := range s.disputes {
		if d.Active() {
			out = append(out, *clone(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
