package memstore

import (
	"context"
	"sort"
	"sync"

	"washflow/database/repository"
	laneRepo "washflow/database/repository/lane"
	"washflow/models"
)

type LaneStore struct {
	mu    sync.Mutex
	lanes map[string]*models.Lane
	days  map[string]*models.LaneDay // laneID|date
}

var _ laneRepo.LaneRepository = (*LaneStore)(nil)

func NewLaneStore() *LaneStore {
	return &LaneStore{lanes: map[string]*models.Lane{}, days: map[string]*models.LaneDay{}}
}

func dayKey(laneID, date string) string { return laneID + "|" + date }

func (s *LaneStore) Create(_ context.Context, lane *models.Lane) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lanes[lane.ID]; ok {
		return repository.ErrDuplicate
	}
	s.lanes[lane.ID] = clone(lane)
	return nil
}

func (s *LaneStore) GetByID(_ context.Context, laneID string) (*models.Lane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lane, ok := s.lanes[laneID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(lane), nil
}

func (s *LaneStore) ListByProvider(_ context.Context, providerID string) ([]models.Lane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lane
	for _, lane := range s.lanes {
		if lane.ProviderID == providerID {
			out = append(out, *clone(lane))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *LaneStore) GetDay(_ context.Context, laneID, date string) (*models.LaneDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[dayKey(laneID, date)]
	if !ok {
		return &models.LaneDay{LaneID: laneID, Date: date}, nil
	}
	return clone(day), nil
}

func (s *LaneStore) InsertSlotIfFree(_ context.Context, laneID, providerID, date string, slot models.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey(laneID, date)
	day, ok := s.days[key]
	if !ok {
		day = &models.LaneDay{LaneID: laneID, ProviderID: providerID, Date: date}
		s.days[key] = day
	}
	for _, existing := range day.Slots {
		if existing.Occupies() && existing.Overlaps(slot.Start, slot.End) {
			return repository.ErrSlotTaken
		}
	}
	day.Slots = append(day.Slots, slot)
	day.Version++
	return nil
}

func (s *LaneStore) RemoveSlot(_ context.Context, laneID, date string, start int, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[dayKey(laneID, date)]
	if !ok {
		return false, nil
	}
	for i, slot := range day.Slots {
		if slot.Start != start || slot.OrderID != orderID {
			continue
		}
		if orderID == "" && slot.Status != models.SlotBlocked {
			continue
		}
		day.Slots = append(day.Slots[:i], day.Slots[i+1:]...)
		day.Version++
		return true, nil
	}
	return false, nil
}

func (s *LaneStore) SetSlotStatus(_ context.Context, laneID, date string, start int, orderID string, status models.SlotStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[dayKey(laneID, date)]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range day.Slots {
		if day.Slots[i].Start == start && day.Slots[i].OrderID == orderID {
			day.Slots[i].Status = status
			day.Version++
			return nil
		}
	}
	return repository.ErrNotFound
}
