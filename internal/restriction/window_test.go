package restriction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gpu-booking-backend/internal/slot"
)

var base = slot.MustNew(2025, time.June, 1, 0)

// at returns the slot n positions after base.
func at(n ...int) []slot.Slot {
	out := make([]slot.Slot, 0, len(n))
	for _, i := range n {
		out = append(out, base.Add(i))
	}
	return out
}

func span(from, to int) []slot.Slot {
	return slot.Range(base.Add(from), base.Add(to))
}

// bruteViolates counts bookings in every window that contains the candidate.
func bruteViolates(candidate slot.Slot, userSlots []slot.Slot, limit UsageLimit) bool {
	set := map[int64]bool{candidate.Index(): true}
	for _, s := range userSlots {
		set[s.Index()] = true
	}
	for start := candidate.Index() - int64(limit.WindowSize) + 1; start <= candidate.Index(); start++ {
		n := 0
		for p := start; p < start+int64(limit.WindowSize); p++ {
			if set[p] {
				n++
			}
		}
		if n > limit.MaxBookings {
			return true
		}
	}
	return false
}

func TestWouldViolate(t *testing.T) {
	limit := UsageLimit{WindowSize: 13, MaxBookings: 12}
	existing := span(0, 11)

	testCases := []struct {
		name      string
		candidate slot.Slot
		userSlots []slot.Slot
		limit     UsageLimit
		expected  bool
	}{
		{name: "13th in a row", candidate: base.Add(12), userSlots: existing, limit: limit, expected: true},
		{name: "Far after", candidate: base.Add(20), userSlots: existing, limit: limit, expected: false},
		{name: "Position 25", candidate: base.Add(25), userSlots: existing, limit: limit, expected: false},
		{name: "One slot gap", candidate: base.Add(13), userSlots: existing, limit: limit, expected: false},
		{name: "Window slides past first", candidate: base.Add(24), userSlots: existing, limit: limit, expected: false},
		{name: "Before the run", candidate: base.Add(-1), userSlots: existing, limit: limit, expected: true},
		{name: "Well before the run", candidate: base.Add(-13), userSlots: existing, limit: limit, expected: false},
		{name: "No history", candidate: base, userSlots: nil, limit: limit, expected: false},
		{name: "Max one in two", candidate: base.Add(1), userSlots: at(0), limit: UsageLimit{WindowSize: 2, MaxBookings: 1}, expected: true},
		{name: "Max one in two spaced", candidate: base.Add(2), userSlots: at(0), limit: UsageLimit{WindowSize: 2, MaxBookings: 1}, expected: false},
		{name: "Gap fits", candidate: base.Add(5), userSlots: at(0, 10), limit: UsageLimit{WindowSize: 6, MaxBookings: 2}, expected: false},
		{name: "Gap closes", candidate: base.Add(5), userSlots: at(0, 3, 10), limit: UsageLimit{WindowSize: 6, MaxBookings: 2}, expected: true},
		{name: "Duplicates ignored", candidate: base.Add(2), userSlots: at(0, 0, 0), limit: UsageLimit{WindowSize: 3, MaxBookings: 2}, expected: false},
		{name: "Candidate already held", candidate: base.Add(1), userSlots: at(0, 1), limit: UsageLimit{WindowSize: 3, MaxBookings: 2}, expected: false},
		{name: "Unsorted input", candidate: base.Add(3), userSlots: at(5, 1, 4), limit: UsageLimit{WindowSize: 5, MaxBookings: 3}, expected: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, WouldViolate(tc.candidate, tc.userSlots, tc.limit))
			assert.Equal(t, bruteViolates(tc.candidate, tc.userSlots, tc.limit), WouldViolate(tc.candidate, tc.userSlots, tc.limit))
		})
	}
}

func TestWouldViolateMatchesBruteForce(t *testing.T) {
	userSlots := at(0, 1, 2, 7, 8, 15, 16, 17, 18, 30)
	limits := []UsageLimit{
		{WindowSize: 2, MaxBookings: 1},
		{WindowSize: 4, MaxBookings: 2},
		{WindowSize: 6, MaxBookings: 3},
		{WindowSize: 10, MaxBookings: 4},
		{WindowSize: 30, MaxBookings: 9},
	}
	for _, limit := range limits {
		for i := -10; i <= 45; i++ {
			c := base.Add(i)
			assert.Equal(t, bruteViolates(c, userSlots, limit), WouldViolate(c, userSlots, limit),
				"window=%d max=%d candidate=%d", limit.WindowSize, limit.MaxBookings, i)
		}
	}
}

func TestCooldownSlots(t *testing.T) {
	limit := UsageLimit{WindowSize: 4, MaxBookings: 2}
	userSlots := at(10, 11)

	got := CooldownSlots(userSlots, limit, base, base.Add(20))
	assert.Equal(t, at(8, 9, 12, 13), got)

	for _, s := range got {
		assert.True(t, WouldViolate(s, userSlots, limit))
	}
}

func TestCooldownSlotsExcludesOwnBookings(t *testing.T) {
	limit := UsageLimit{WindowSize: 3, MaxBookings: 1}
	got := CooldownSlots(at(5), limit, base, base.Add(10))
	assert.Equal(t, at(3, 4, 6, 7), got)
	assert.NotContains(t, got, base.Add(5))
}

func TestCooldownSlotsEmpty(t *testing.T) {
	got := CooldownSlots(nil, UsageLimit{WindowSize: 3, MaxBookings: 1}, base, base.Add(5))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestWindowUsage(t *testing.T) {
	limit := UsageLimit{WindowSize: 6, MaxBookings: 4}
	u := WindowUsage(at(-1, 0, 2, 5, 6), limit, base)

	assert.Equal(t, base, u.WindowStart)
	assert.Equal(t, base.Add(5), u.WindowEnd)
	assert.Equal(t, 3, u.CurrentUsage)
	assert.Equal(t, 1, u.Remaining)
	assert.Equal(t, 75.0, u.Percentage)
	assert.Equal(t, "任意連續6個時段內，最多只能預約4次", u.Description)

	full := WindowUsage(span(0, 5), UsageLimit{WindowSize: 6, MaxBookings: 3}, base)
	assert.Equal(t, 0, full.Remaining)
	assert.Equal(t, 200.0, full.Percentage)
}
