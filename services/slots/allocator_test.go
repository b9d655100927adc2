package slots

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"washflow/database/repository/memstore"
	"washflow/models"
	"washflow/utils"

	"golang.org/x/sync/errgroup"
)

const monday = "2026-03-02"

var provider = models.Caller{ID: "prov-1", Role: models.RoleProvider}

func makeAllocator(t *testing.T, now time.Time) (*DefaultSlotAllocator, *models.Lane) {
	t.Helper()
	a := NewSlotAllocator(memstore.NewLaneStore(), utils.NewLocalLocker(), utils.NewManualClock(now), nil)
	lane, err := a.RegisterLane(context.Background(), provider, models.Lane{
		ID:       "lane-1",
		Name:     "Bay 1",
		Capacity: models.LaneCapacity{ParallelJobs: 1, AverageDurationMinutes: 30, BufferMinutes: 10},
		WorkingHours: map[string]models.WorkingDay{
			"Monday": {Open: 480, Close: 720, Breaks: []models.Break{{Start: 600, End: 630}}},
		},
	})
	if err != nil {
		t.Fatalf("register lane: %v", err)
	}
	return a, lane
}

func starts(slots []models.AvailableSlot) []int {
	out := make([]int, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start)
	}
	return out
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListAvailableSlotsSkipsBreaksAndTrailingWindow(t *testing.T) {
	t.Parallel()
	a, _ := makeAllocator(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	got, err := a.ListAvailableSlots(context.Background(), []string{"lane-1"}, monday, 30)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []int{480, 520, 560, 630, 670}
	if !sameInts(starts(got), want) {
		t.Fatalf("starts = %v, want %v", starts(got), want)
	}
	for _, s := range got {
		if s.End-s.Start != 40 {
			t.Fatalf("window width = %d, want duration plus buffer", s.End-s.Start)
		}
	}
}

func TestLastWindowBufferMayRunPastClosing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := NewSlotAllocator(memstore.NewLaneStore(), utils.NewLocalLocker(), utils.NewManualClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)), nil)
	if _, err := a.RegisterLane(ctx, provider, models.Lane{
		ID:           "lane-short",
		Name:         "Short bay",
		Capacity:     models.LaneCapacity{ParallelJobs: 1, AverageDurationMinutes: 30, BufferMinutes: 10},
		WorkingHours: map[string]models.WorkingDay{"Monday": {Open: 480, Close: 710}},
	}); err != nil {
		t.Fatalf("register lane: %v", err)
	}

	got, err := a.ListAvailableSlots(ctx, []string{"lane-short"}, monday, 30)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if want := []int{480, 520, 560, 600, 640, 680}; !sameInts(starts(got), want) {
		t.Fatalf("starts = %v, want %v", starts(got), want)
	}

	if _, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-short", Date: monday, Start: 680, End: 720, OrderID: "o-last"}); err != nil {
		t.Fatalf("reserve last window: %v", err)
	}
	_, err = a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-short", Date: monday, Start: 690, End: 730, OrderID: "o-late"})
	if !utils.IsKind(err, utils.KindValidation) {
		t.Fatalf("service past closing err = %v, want validation", err)
	}

	occ, err := a.OccupancyRate(ctx, "prov-1", monday)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	if occ.Capacity != 6 || occ.Booked != 1 {
		t.Fatalf("occupancy = %+v, want capacity 6 booked 1", occ)
	}
}

func TestListAvailableSlotsClosedDay(t *testing.T) {
	t.Parallel()
	a, _ := makeAllocator(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	got, err := a.ListAvailableSlots(context.Background(), []string{"lane-1"}, "2026-03-03", 30)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no windows on a day without hours, got %d", len(got))
	}
}

func TestListAvailableSlotsHidesStartedWindowsToday(t *testing.T) {
	t.Parallel()
	a, _ := makeAllocator(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	got, err := a.ListAvailableSlots(context.Background(), []string{"lane-1"}, monday, 30)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if want := []int{560, 630, 670}; !sameInts(starts(got), want) {
		t.Fatalf("starts = %v, want %v", starts(got), want)
	}
}

func TestListAvailableSlotsReadsClockInUTC(t *testing.T) {
	t.Parallel()
	eat := time.FixedZone("EAT", 3*60*60)
	cases := []struct {
		name string
		now  time.Time
		want []int
	}{
		// 10:00 EAT is 07:00 UTC: nothing has started yet.
		{"morning east of UTC", time.Date(2026, 3, 2, 10, 0, 0, 0, eat), []int{480, 520, 560, 630, 670}},
		// 01:00 on Tuesday EAT is still Monday 22:00 UTC.
		{"after local midnight", time.Date(2026, 3, 3, 1, 0, 0, 0, eat), []int{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a, _ := makeAllocator(t, tc.now)
			got, err := a.ListAvailableSlots(context.Background(), []string{"lane-1"}, monday, 30)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if !sameInts(starts(got), tc.want) {
				t.Fatalf("starts = %v, want %v", starts(got), tc.want)
			}
		})
	}
}

func TestReserveSlot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := makeAllocator(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	if _, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 520, End: 560, OrderID: "o-1"}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	t.Run("overlap conflicts", func(t *testing.T) {
		_, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 540, End: 580, OrderID: "o-2"})
		if !utils.IsKind(err, utils.KindConflict) {
			t.Fatalf("err = %v, want conflict", err)
		}
	})

	t.Run("touching endpoint is free", func(t *testing.T) {
		if _, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 560, End: 600, OrderID: "o-3"}); err != nil {
			t.Fatalf("reserve touching window: %v", err)
		}
	})

	t.Run("same order retry is idempotent", func(t *testing.T) {
		if _, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 520, End: 560, OrderID: "o-1"}); err != nil {
			t.Fatalf("retry: %v", err)
		}
	})

	t.Run("outside hours is rejected", func(t *testing.T) {
		_, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 700, End: 740, OrderID: "o-4"})
		if !utils.IsKind(err, utils.KindValidation) {
			t.Fatalf("err = %v, want validation", err)
		}
	})

	t.Run("unknown lane", func(t *testing.T) {
		_, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "nope", Date: monday, Start: 480, End: 520, OrderID: "o-5"})
		if !utils.IsKind(err, utils.KindNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})
}

func TestReserveOnFullyBookedDayIsExhausted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := makeAllocator(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	for i, start := range []int{480, 520, 560, 630} {
		req := ReserveRequest{LaneID: "lane-1", Date: monday, Start: start, End: start + 40, OrderID: fmt.Sprintf("o-%d", i)}
		if _, err := a.ReserveSlot(ctx, req); err != nil {
			t.Fatalf("reserve %d: %v", start, err)
		}
	}
	// 670 is still free, so losing 540 is an ordinary conflict.
	_, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 540, End: 580, OrderID: "late"})
	if !utils.IsKind(err, utils.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}

	if _, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 670, End: 710, OrderID: "last"}); err != nil {
		t.Fatalf("reserve last window: %v", err)
	}
	_, err = a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 540, End: 580, OrderID: "late"})
	if !utils.IsKind(err, utils.KindResourceExhausted) || utils.CodeOf(err) != "lane_fully_booked" {
		t.Fatalf("err = %v, want resource exhausted", err)
	}
	if got, _ := a.ListAvailableSlots(ctx, []string{"lane-1"}, monday, 30); len(got) != 0 {
		t.Fatalf("fully booked day still offers %v", starts(got))
	}
}

func TestReleaseSlotIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := makeAllocator(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	if _, err := a.ReserveSlot(ctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 480, End: 520, OrderID: "o-1"}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := a.ReleaseSlot(ctx, "lane-1", monday, 480, "o-1"); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	got, err := a.ListAvailableSlots(ctx, []string{"lane-1"}, monday, 30)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got[0].Start != 480 {
		t.Fatalf("released window not offered again: %v", starts(got))
	}
}

func TestConcurrentReservationsHaveOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := makeAllocator(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	var wins, conflicts int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 25; i++ {
		orderID := fmt.Sprintf("order-%d", i)
		g.Go(func() error {
			_, err := a.ReserveSlot(gctx, ReserveRequest{LaneID: "lane-1", Date: monday, Start: 630, End: 670, OrderID: orderID})
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case utils.IsKind(err, utils.KindConflict):
				atomic.AddInt32(&conflicts, 1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wins != 1 || conflicts != 24 {
		t.Fatalf("wins=%d conflicts=%d, want 1 and 24", wins, conflicts)
	}
}

func TestBlockWindowAndOccupancy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, _ := makeAllocator(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	if err := a.BlockWindow(ctx, provider, BlockRequest{LaneID: "lane-1", Date: monday, Start: 670, End: 710, Reason: "maintenance"}); err != nil {
		t.Fatalf("block: %v", err)
	}
	other := models.Caller{ID: "prov-2", Role: models.RoleProvider}
	if err := a.BlockWindow(ctx, other, BlockRequest{LaneID: "lane-1", Date: monday, Start: 480, End: 520}); !utils.IsKind(err, utils.KindForbidden) {
		t.Fatalf("foreign block err = %v, want forbidden", err)
	}
	for i, start := range []int{480, 520} {
		req := ReserveRequest{LaneID: "lane-1", Date: monday, Start: start, End: start + 40, OrderID: fmt.Sprintf("o-%d", i)}
		if _, err := a.ReserveSlot(ctx, req); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	occ, err := a.OccupancyRate(ctx, "prov-1", monday)
	if err != nil {
		t.Fatalf("occupancy: %v", err)
	}
	if occ.Capacity != 5 || occ.Booked != 2 {
		t.Fatalf("occupancy = %+v, want capacity 5 booked 2", occ)
	}
	if occ.Rate != 0.4 {
		t.Fatalf("rate = %v, want 0.4", occ.Rate)
	}

	got, _ := a.ListAvailableSlots(ctx, []string{"lane-1"}, monday, 30)
	if want := []int{560, 630}; !sameInts(starts(got), want) {
		t.Fatalf("starts = %v, want %v", starts(got), want)
	}

	if err := a.UnblockWindow(ctx, provider, "lane-1", monday, 670); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	got, _ = a.ListAvailableSlots(ctx, []string{"lane-1"}, monday, 30)
	if want := []int{560, 630, 670}; !sameInts(starts(got), want) {
		t.Fatalf("starts after unblock = %v, want %v", starts(got), want)
	}
}
