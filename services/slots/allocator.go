package slots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"washflow/database/repository"
	laneRepo "washflow/database/repository/lane"
	"washflow/models"
	"washflow/services/directory"
	"washflow/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

// DefaultSlotAllocator is backed by a LaneRepository whose InsertSlotIfFree is
// the single conditional write that decides who gets a window.
type DefaultSlotAllocator struct {
	Lanes     laneRepo.LaneRepository
	Directory directory.Directory // optional; checks provider status on lane registration
	Locker    utils.Locker        // optional per lane/day critical section
	Clock     utils.Clock
	Logger    *zap.Logger
}

func NewSlotAllocator(lanes laneRepo.LaneRepository, locker utils.Locker, clock utils.Clock, logger *zap.Logger) *DefaultSlotAllocator {
	if clock == nil {
		clock = utils.NewSystemClock()
	}
	return &DefaultSlotAllocator{Lanes: lanes, Locker: locker, Clock: clock, Logger: utils.LoggerOrNop(logger)}
}

func (a *DefaultSlotAllocator) RegisterLane(ctx context.Context, by models.Caller, lane models.Lane) (*models.Lane, error) {
	if by.Role == models.RoleProvider {
		lane.ProviderID = by.ID
	} else if by.Role != models.RoleOperator {
		return nil, utils.NewForbiddenError("lane_forbidden", "only providers and operators register lanes")
	}
	if err := validateLane(&lane); err != nil {
		return nil, err
	}
	if a.Directory != nil {
		if _, err := a.Directory.ActiveProvider(ctx, lane.ProviderID); err != nil {
			return nil, err
		}
	}

	now := a.Clock.Now()
	if lane.ID == "" {
		lane.ID = uuid.New().String()
	}
	lane.Active = true
	lane.CreatedAt, lane.UpdatedAt = now, now

	if err := a.Lanes.Create(ctx, &lane); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, utils.NewConflictError("lane_exists", "lane id already registered")
		}
		return nil, utils.NewDependencyError("lane_store", "failed to store lane", err)
	}
	a.Logger.Info("lane registered", zap.String("laneId", lane.ID), zap.String("providerId", lane.ProviderID))
	return &lane, nil
}

func validateLane(lane *models.Lane) error {
	if lane.ProviderID == "" || strings.TrimSpace(lane.Name) == "" {
		return utils.NewValidationError("lane_invalid", "lane needs a provider and a name")
	}
	if lane.Capacity.AverageDurationMinutes <= 0 || lane.Capacity.BufferMinutes < 0 {
		return utils.NewValidationError("lane_capacity_invalid", "average duration must be positive and buffer non-negative")
	}
	if lane.Capacity.ParallelJobs <= 0 {
		lane.Capacity.ParallelJobs = 1
	}
	if len(lane.WorkingHours) == 0 {
		return utils.NewValidationError("lane_hours_missing", "lane needs working hours")
	}
	normalized := make(map[string]models.WorkingDay, len(lane.WorkingHours))
	for name, day := range lane.WorkingHours {
		key := strings.ToLower(name)
		if !weekdays[key] {
			return utils.NewValidationError("lane_hours_invalid", "unknown weekday "+name)
		}
		if !day.Closed {
			if day.Open < 0 || day.Close > 24*60 || day.Open >= day.Close {
				return utils.NewValidationError("lane_hours_invalid", "invalid hours on "+name)
			}
			for _, b := range day.Breaks {
				if b.Start >= b.End || b.Start < day.Open || b.End > day.Close {
					return utils.NewValidationError("lane_hours_invalid", "break outside hours on "+name)
				}
			}
		}
		normalized[key] = day
	}
	lane.WorkingHours = normalized
	return nil
}

func (a *DefaultSlotAllocator) GetLane(ctx context.Context, laneID string) (*models.Lane, error) {
	lane, err := a.Lanes.GetByID(ctx, laneID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, utils.NewNotFoundError("lane_not_found", "lane "+laneID+" not found")
		}
		return nil, utils.NewDependencyError("lane_store", "failed to load lane", err)
	}
	return lane, nil
}

func (a *DefaultSlotAllocator) ListAvailableSlots(ctx context.Context, laneIDs []string, date string, durationMinutes int) ([]models.AvailableSlot, error) {
	if len(laneIDs) == 0 {
		return nil, utils.NewValidationError("lanes_required", "at least one lane is required")
	}
	if durationMinutes <= 0 {
		return nil, utils.NewValidationError("duration_invalid", "duration must be positive")
	}
	day, err := models.ParseDate(date)
	if err != nil {
		return nil, utils.NewValidationError("date_invalid", "date must be YYYY-MM-DD")
	}

	// Dates and minute offsets are UTC whatever zone the clock reports in.
	now := a.Clock.Now().UTC()
	notBefore := -1
	if now.Format(models.DateLayout) == date {
		notBefore = now.Hour()*60 + now.Minute()
	} else if day.Before(now.Truncate(24 * time.Hour)) {
		return []models.AvailableSlot{}, nil
	}

	out := []models.AvailableSlot{}
	for _, laneID := range laneIDs {
		lane, err := a.GetLane(ctx, laneID)
		if err != nil {
			return nil, err
		}
		if !lane.Active {
			continue
		}
		hours, open := lane.HoursOn(day)
		if !open {
			continue
		}
		taken, err := a.Lanes.GetDay(ctx, laneID, date)
		if err != nil {
			return nil, utils.NewDependencyError("lane_store", "failed to load lane day", err)
		}
		for _, w := range candidateWindows(hours, durationMinutes, lane.Capacity.BufferMinutes) {
			if w.start < notBefore || overlapsOccupied(taken.Slots, w) {
				continue
			}
			out = append(out, models.AvailableSlot{
				LaneID:    laneID,
				Date:      date,
				Start:     w.start,
				End:       w.end,
				StartTime: models.MinuteToTime(day, w.start),
				EndTime:   models.MinuteToTime(day, w.end),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].LaneID < out[j].LaneID
	})
	return out, nil
}

func (a *DefaultSlotAllocator) ReserveSlot(ctx context.Context, req ReserveRequest) (*models.Slot, error) {
	if req.OrderID == "" {
		return nil, utils.NewValidationError("order_required", "reservation needs an order id")
	}
	if req.Start < 0 || req.End <= req.Start {
		return nil, utils.NewValidationError("window_invalid", "slot end must be after start")
	}
	day, err := models.ParseDate(req.Date)
	if err != nil {
		return nil, utils.NewValidationError("date_invalid", "date must be YYYY-MM-DD")
	}
	lane, err := a.GetLane(ctx, req.LaneID)
	if err != nil {
		return nil, err
	}
	if !lane.Active {
		return nil, utils.NewPreconditionError("lane_inactive", "lane is not accepting reservations")
	}
	hours, open := lane.HoursOn(day)
	if !open || !hours.Fits(req.Start, req.End, lane.Capacity.BufferMinutes) {
		return nil, utils.NewValidationError("outside_working_hours", "window is outside the lane's working hours")
	}

	unlock, err := a.lock(ctx, req.LaneID, req.Date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// A retried reservation for the same order and window is already ours.
	current, err := a.Lanes.GetDay(ctx, req.LaneID, req.Date)
	if err != nil {
		return nil, utils.NewDependencyError("lane_store", "failed to load lane day", err)
	}
	for _, s := range current.Slots {
		if s.OrderID == req.OrderID && s.Start == req.Start && s.End == req.End {
			return &s, nil
		}
	}

	slot := models.Slot{
		Start:     req.Start,
		End:       req.End,
		Status:    models.SlotReserved,
		OrderID:   req.OrderID,
		CreatedAt: a.Clock.Now(),
	}
	if err := a.Lanes.InsertSlotIfFree(ctx, req.LaneID, lane.ProviderID, req.Date, slot); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			if !a.hasFreeWindow(ctx, req.LaneID, req.Date, hours, req.End-req.Start-lane.Capacity.BufferMinutes, lane.Capacity.BufferMinutes) {
				return nil, utils.NewResourceExhaustedError("lane_fully_booked", "the lane has no free window left on this day")
			}
			return nil, utils.NewConflictError("slot_taken", "the requested window is no longer available")
		}
		return nil, utils.NewDependencyError("lane_store", "failed to reserve slot", err)
	}
	a.Logger.Debug("slot reserved",
		zap.String("laneId", req.LaneID), zap.String("date", req.Date),
		zap.Int("start", req.Start), zap.String("orderId", req.OrderID))
	return &slot, nil
}

func (a *DefaultSlotAllocator) ReleaseSlot(ctx context.Context, laneID, date string, start int, orderID string) error {
	if orderID == "" {
		return utils.NewValidationError("order_required", "release needs an order id")
	}
	removed, err := a.Lanes.RemoveSlot(ctx, laneID, date, start, orderID)
	if err != nil {
		return utils.NewDependencyError("lane_store", "failed to release slot", err)
	}
	if removed {
		a.Logger.Debug("slot released", zap.String("laneId", laneID), zap.String("date", date), zap.String("orderId", orderID))
	}
	return nil
}

func (a *DefaultSlotAllocator) MarkSlot(ctx context.Context, laneID, date string, start int, orderID string, status models.SlotStatus) error {
	if status != models.SlotInProgress && status != models.SlotCompleted {
		return utils.NewValidationError("slot_status_invalid", fmt.Sprintf("cannot mark slot %s", status))
	}
	if err := a.Lanes.SetSlotStatus(ctx, laneID, date, start, orderID, status); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return utils.NewNotFoundError("slot_not_found", "no slot for order on that lane")
		}
		return utils.NewDependencyError("lane_store", "failed to update slot", err)
	}
	return nil
}

func (a *DefaultSlotAllocator) BlockWindow(ctx context.Context, by models.Caller, req BlockRequest) error {
	lane, err := a.ownedLane(ctx, by, req.LaneID)
	if err != nil {
		return err
	}
	if req.End <= req.Start || req.Start < 0 || req.End > 24*60 {
		return utils.NewValidationError("window_invalid", "block end must be after start")
	}
	if _, err := models.ParseDate(req.Date); err != nil {
		return utils.NewValidationError("date_invalid", "date must be YYYY-MM-DD")
	}

	unlock, err := a.lock(ctx, req.LaneID, req.Date)
	if err != nil {
		return err
	}
	defer unlock()

	slot := models.Slot{Start: req.Start, End: req.End, Status: models.SlotBlocked, Reason: req.Reason, CreatedAt: a.Clock.Now()}
	if err := a.Lanes.InsertSlotIfFree(ctx, lane.ID, lane.ProviderID, req.Date, slot); err != nil {
		if errors.Is(err, repository.ErrSlotTaken) {
			return utils.NewConflictError("slot_taken", "window overlaps an existing reservation or block")
		}
		return utils.NewDependencyError("lane_store", "failed to block window", err)
	}
	return nil
}

func (a *DefaultSlotAllocator) UnblockWindow(ctx context.Context, by models.Caller, laneID, date string, start int) error {
	if _, err := a.ownedLane(ctx, by, laneID); err != nil {
		return err
	}
	if _, err := a.Lanes.RemoveSlot(ctx, laneID, date, start, ""); err != nil {
		return utils.NewDependencyError("lane_store", "failed to unblock window", err)
	}
	return nil
}

func (a *DefaultSlotAllocator) OccupancyRate(ctx context.Context, providerID, date string) (*models.Occupancy, error) {
	day, err := models.ParseDate(date)
	if err != nil {
		return nil, utils.NewValidationError("date_invalid", "date must be YYYY-MM-DD")
	}
	lanes, err := a.Lanes.ListByProvider(ctx, providerID)
	if err != nil {
		return nil, utils.NewDependencyError("lane_store", "failed to list lanes", err)
	}

	occ := &models.Occupancy{ProviderID: providerID, Date: date}
	for _, lane := range lanes {
		if !lane.Active {
			continue
		}
		hours, open := lane.HoursOn(day)
		if !open {
			continue
		}
		occ.Capacity += len(candidateWindows(hours, lane.Capacity.AverageDurationMinutes, lane.Capacity.BufferMinutes))

		taken, err := a.Lanes.GetDay(ctx, lane.ID, date)
		if err != nil {
			return nil, utils.NewDependencyError("lane_store", "failed to load lane day", err)
		}
		for _, s := range taken.Slots {
			if s.Status != models.SlotBlocked && s.Occupies() {
				occ.Booked++
			}
		}
	}
	if occ.Capacity > 0 {
		occ.Rate = float64(occ.Booked) / float64(occ.Capacity)
		if occ.Rate > 1 {
			occ.Rate = 1
		}
	}
	return occ, nil
}

func (a *DefaultSlotAllocator) ownedLane(ctx context.Context, by models.Caller, laneID string) (*models.Lane, error) {
	lane, err := a.GetLane(ctx, laneID)
	if err != nil {
		return nil, err
	}
	if by.Role != models.RoleOperator && !(by.Role == models.RoleProvider && by.ID == lane.ProviderID) {
		return nil, utils.NewForbiddenError("lane_not_owned", "lane belongs to another provider")
	}
	return lane, nil
}

func (a *DefaultSlotAllocator) lock(ctx context.Context, laneID, date string) (func(), error) {
	if a.Locker == nil {
		return func() {}, nil
	}
	return a.Locker.Lock(ctx, "lane:"+laneID+":"+date)
}

// hasFreeWindow reports whether any window of the given length is still
// open on the lane day. Lookup failures count as free so the caller keeps
// the retryable conflict.
func (a *DefaultSlotAllocator) hasFreeWindow(ctx context.Context, laneID, date string, hours models.WorkingDay, duration, buffer int) bool {
	if duration <= 0 {
		return true
	}
	taken, err := a.Lanes.GetDay(ctx, laneID, date)
	if err != nil {
		return true
	}
	for _, w := range candidateWindows(hours, duration, buffer) {
		if !overlapsOccupied(taken.Slots, w) {
			return true
		}
	}
	return false
}
