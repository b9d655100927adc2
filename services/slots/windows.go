package slots

import (
	"sort"

	"washflow/models"
)

type window struct {
	start, end int
}

// candidateWindows cuts opening hours into back-to-back windows of
// duration+buffer minutes. A window that would cross a break restarts at the
// break's end. Windows are generated while the service part ends by closing;
// the buffer of the last one may run past it.
func candidateWindows(day models.WorkingDay, duration, buffer int) []window {
	if duration <= 0 || buffer < 0 || day.Closed {
		return nil
	}
	breaks := append([]models.Break(nil), day.Breaks...)
	sort.Slice(breaks, func(i, j int) bool { return breaks[i].Start < breaks[j].Start })

	var out []window
	cur := day.Open
	for cur+duration <= day.Close {
		end := cur + duration + buffer
		if b, hit := firstBreakHit(breaks, cur, end); hit {
			cur = b.End
			continue
		}
		out = append(out, window{start: cur, end: end})
		cur = end
	}
	return out
}

func firstBreakHit(breaks []models.Break, start, end int) (models.Break, bool) {
	for _, b := range breaks {
		if start < b.End && end > b.Start {
			return b, true
		}
	}
	return models.Break{}, false
}

func overlapsOccupied(taken []models.Slot, w window) bool {
	for _, s := range taken {
		if s.Occupies() && s.Overlaps(w.start, w.end) {
			return true
		}
	}
	return false
}
