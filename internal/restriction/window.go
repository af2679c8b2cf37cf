package restriction

import (
	"math"
	"slices"

	"gpu-booking-backend/internal/slot"
)

// WouldViolate reports whether booking candidate would put more than
// limit.MaxBookings of the user's slots into some run of limit.WindowSize
// consecutive slots that contains candidate. userSlots are the user's active
// bookings on the machine; order and duplicates do not matter.
func WouldViolate(candidate slot.Slot, userSlots []slot.Slot, limit UsageLimit) bool {
	return newPositions(userSlots).violates(candidate.Index(), limit)
}

// CooldownSlots returns, in order, the slots in [from, to] the user has not
// booked and could not book right now because of limit.
func CooldownSlots(userSlots []slot.Slot, limit UsageLimit, from, to slot.Slot) []slot.Slot {
	pos := newPositions(userSlots)
	out := []slot.Slot{}
	for _, s := range slot.Range(from, to) {
		if pos.contains(s.Index()) {
			continue
		}
		if pos.violates(s.Index(), limit) {
			out = append(out, s)
		}
	}
	return out
}

// Usage summarizes how much of a rolling-window allowance the user has taken
// in the window that starts at a given slot.
type Usage struct {
	WindowSize   int       `json:"window_size"`
	MaxBookings  int       `json:"max_bookings"`
	WindowStart  slot.Slot `json:"window_start"`
	WindowEnd    slot.Slot `json:"window_end"`
	CurrentUsage int       `json:"current_usage"`
	Remaining    int       `json:"remaining_bookings"`
	Percentage   float64   `json:"usage_percentage"`
	Description  string    `json:"description"`
}

// WindowUsage counts the user's bookings in the WindowSize slots starting at from.
func WindowUsage(userSlots []slot.Slot, limit UsageLimit, from slot.Slot) Usage {
	end := from.Add(limit.WindowSize - 1)
	pos := newPositions(userSlots)

	used := 0
	for _, p := range pos {
		if p >= from.Index() && p <= end.Index() {
			used++
		}
	}

	u := Usage{
		WindowSize:   limit.WindowSize,
		MaxBookings:  limit.MaxBookings,
		WindowStart:  from,
		WindowEnd:    end,
		CurrentUsage: used,
		Remaining:    max(0, limit.MaxBookings-used),
		Description:  limit.Describe(),
	}
	if limit.MaxBookings > 0 {
		u.Percentage = math.Round(float64(used)/float64(limit.MaxBookings)*1000) / 10
	}
	return u
}

// positions is a sorted, duplicate-free list of slot indexes.
type positions []int64

func newPositions(slots []slot.Slot) positions {
	p := make(positions, 0, len(slots))
	for _, s := range slots {
		p = append(p, s.Index())
	}
	slices.Sort(p)
	return slices.Compact(p)
}

func (p positions) contains(i int64) bool {
	_, found := slices.BinarySearch(p, i)
	return found
}

// violates looks at every run of k+1 sorted-consecutive positions that
// includes the candidate; a run spanning fewer than WindowSize slots fits
// inside one window and therefore exceeds the allowance.
func (p positions) violates(candidate int64, limit UsageLimit) bool {
	k := max(limit.MaxBookings, 0)
	w := int64(limit.WindowSize)

	c, dup := slices.BinarySearch(p, candidate)
	n := len(p)
	if !dup {
		n++
	}
	at := func(i int) int64 {
		switch {
		case dup || i < c:
			return p[i]
		case i == c:
			return candidate
		default:
			return p[i-1]
		}
	}

	for i := max(0, c-k); i <= c && i+k < n; i++ {
		if at(i+k)-at(i) < w {
			return true
		}
	}
	return false
}
