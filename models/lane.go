package models

import (
	"strings"
	"time"
)

type SlotStatus string

const (
	SlotAvailable  SlotStatus = "available"
	SlotReserved   SlotStatus = "reserved"
	SlotInProgress SlotStatus = "in_progress"
	SlotCompleted  SlotStatus = "completed"
	SlotBlocked    SlotStatus = "blocked"
)

// Slot is a half-open [Start, End) window on a lane, in minutes from midnight.
type Slot struct {
	Start     int        `bson:"start" json:"start"`
	End       int        `bson:"end" json:"end"`
	Status    SlotStatus `bson:"status" json:"status"`
	OrderID   string     `bson:"orderId" json:"orderId"`                   // empty for provider blocks
	Reason    string     `bson:"reason,omitempty" json:"reason,omitempty"` // block reason
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
}

// Overlaps reports whether [start, end) intersects the slot. Touching endpoints do not.
func (s Slot) Overlaps(start, end int) bool {
	return start < s.End && end > s.Start
}

// Occupies reports whether the slot takes capacity away from the lane.
func (s Slot) Occupies() bool {
	return s.Status != SlotAvailable
}

type LaneCapacity struct {
	ParallelJobs           int `bson:"parallelJobs" json:"parallelJobs"`
	AverageDurationMinutes int `bson:"averageDurationMinutes" json:"averageDurationMinutes"`
	BufferMinutes          int `bson:"bufferMinutes" json:"bufferMinutes"`
}

type LaneEquipment struct {
	PressureWasher bool `bson:"pressureWasher" json:"pressureWasher"`
	FoamCannon     bool `bson:"foamCannon" json:"foamCannon"`
	Vacuum         bool `bson:"vacuum" json:"vacuum"`
	Dryer          bool `bson:"dryer" json:"dryer"`
	WaterRecycling bool `bson:"waterRecycling" json:"waterRecycling"`
}

type Break struct {
	Start int `bson:"start" json:"start"`
	End   int `bson:"end" json:"end"`
}

// WorkingDay holds opening hours for one weekday, in minutes from midnight.
type WorkingDay struct {
	Open   int     `bson:"open" json:"open"`
	Close  int     `bson:"close" json:"close"`
	Breaks []Break `bson:"breaks,omitempty" json:"breaks,omitempty"`
	Closed bool    `bson:"closed" json:"closed"`
}

// Contains reports whether [start, end) fits inside opening hours and avoids every break.
func (d WorkingDay) Contains(start, end int) bool {
	if d.Closed || start < d.Open || end > d.Close || start >= end {
		return false
	}
	for _, b := range d.Breaks {
		if start < b.End && end > b.Start {
			return false
		}
	}
	return true
}

// Fits reports whether a booking [start, end) whose last tail minutes are
// turnaround buffer can be taken. The service part must finish by closing,
// the buffer may run past it, and no part may touch a break.
func (d WorkingDay) Fits(start, end, tail int) bool {
	if tail < 0 || tail >= end-start {
		tail = 0
	}
	if !d.Contains(start, end-tail) {
		return false
	}
	for _, b := range d.Breaks {
		if start < b.End && end > b.Start {
			return false
		}
	}
	return true
}

// Lane is a provider-owned wash bay.
type Lane struct {
	ID           string                `bson:"id" json:"id"`
	ProviderID   string                `bson:"providerId" json:"providerId"`
	Name         string                `bson:"name" json:"name"`
	Capacity     LaneCapacity          `bson:"capacity" json:"capacity"`
	Equipment    LaneEquipment         `bson:"equipment" json:"equipment"`
	WorkingHours map[string]WorkingDay `bson:"workingHours" json:"workingHours"` // keyed by lowercase weekday
	Active       bool                  `bson:"active" json:"active"`
	CreatedAt    time.Time             `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time             `bson:"updatedAt" json:"updatedAt"`
}

// HoursOn returns the working hours for the weekday of date.
func (l *Lane) HoursOn(date time.Time) (WorkingDay, bool) {
	day, ok := l.WorkingHours[strings.ToLower(date.Weekday().String())]
	if !ok || day.Closed {
		return WorkingDay{}, false
	}
	return day, true
}

// LaneDay is the per-date slot list of a lane. Only non-available slots are stored.
type LaneDay struct {
	LaneID     string    `bson:"laneId" json:"laneId"`
	ProviderID string    `bson:"providerId" json:"providerId"`
	Date       string    `bson:"date" json:"date"` // YYYY-MM-DD
	Slots      []Slot    `bson:"slots" json:"slots"`
	Version    int       `bson:"version" json:"version"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updatedAt"`
}

// AvailableSlot is an offered window returned to callers.
type AvailableSlot struct {
	LaneID    string    `json:"laneId"`
	Date      string    `json:"date"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Occupancy is an informational load figure for a provider on one day.
type Occupancy struct {
	ProviderID string  `json:"providerId"`
	Date       string  `json:"date"`
	Capacity   int     `json:"capacity"`
	Booked     int     `json:"booked"`
	Rate       float64 `json:"rate"`
}

const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD as a UTC day.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// MinuteToTime combines a date and minutes-from-midnight.
func MinuteToTime(date time.Time, minute int) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(time.Duration(minute) * time.Minute)
}
