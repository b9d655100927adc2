package memstore

import (
	"context"
	"sort"
	"sync"

	"washflow/database/repository"
	orderRepo "washflow/database/repository/order"
	"washflow/models"
)

type OrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

var _ orderRepo.OrderRepository = (*OrderStore)(nil)

func NewOrderStore() *OrderStore {
	return &OrderStore{orders: map[string]*models.Order{}}
}

func (s *OrderStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return repository.ErrDuplicate
	}
	s.orders[order.ID] = clone(order)
	return nil
}

func (s *OrderStore) GetByID(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(o), nil
}

func (s *OrderStore) Update(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.orders[order.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != order.Version {
		return repository.ErrVersionConflict
	}
	order.Version++
	s.orders[order.ID] = clone(order)
	return nil
}

func (s *OrderStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *OrderStore) List(_ context.Context, f models.OrderFilter) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if f.DriverID != "" && o.DriverID != f.DriverID {
			continue
		}
		if f.ProviderID != "" && o.ProviderID != f.ProviderID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, *clone(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
