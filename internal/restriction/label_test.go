package restriction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLabelPrecedence(t *testing.T) {
	testCases := []struct {
		name     string
		facts    SlotFacts
		expected SlotLabel
	}{
		{name: "Nothing", facts: SlotFacts{}, expected: LabelBookable},
		{name: "Own", facts: SlotFacts{OwnBooking: true}, expected: LabelOwn},
		{name: "Other", facts: SlotFacts{BookedByOther: true}, expected: LabelBooked},
		{name: "Cooldown over other", facts: SlotFacts{Cooldown: true, BookedByOther: true}, expected: LabelCooldown},
		{name: "Horizon over cooldown", facts: SlotFacts{OutsideHorizon: true, Cooldown: true}, expected: LabelNotOpened},
		{name: "Past over everything", facts: SlotFacts{Past: true, OutsideHorizon: true, Cooldown: true, BookedByOther: true, OwnBooking: true}, expected: LabelPast},
		{name: "Past own booking", facts: SlotFacts{Past: true, OwnBooking: true}, expected: LabelPast},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Label(tc.facts))
		})
	}
}

func TestStateOf(t *testing.T) {
	loc := time.FixedZone("CST", 8*3600)
	s := base
	start := s.Start(loc)

	assert.Equal(t, StateActive, StateOf("active", s, start.Add(-time.Minute), loc))
	assert.Equal(t, StateActive, StateOf("active", s, start.Add(time.Hour), loc))
	assert.Equal(t, StateCompleted, StateOf("active", s, s.End(loc), loc))
	assert.Equal(t, StateCancelled, StateOf("cancelled", s, s.End(loc).Add(time.Hour), loc))
}
