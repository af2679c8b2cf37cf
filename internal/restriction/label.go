package restriction

import (
	"time"

	"gpu-booking-backend/internal/slot"
)

// SlotLabel is what one viewer sees for one slot on the schedule.
type SlotLabel string

const (
	LabelBookable  SlotLabel = "可預約"
	LabelBooked    SlotLabel = "已預約"
	LabelOwn       SlotLabel = "已預約(可取消)"
	LabelCooldown  SlotLabel = "冷卻"
	LabelPast      SlotLabel = "已過期"
	LabelNotOpened SlotLabel = "未開放"
)

// SlotFacts are the independent conditions that can hold for a slot.
type SlotFacts struct {
	Past           bool
	OutsideHorizon bool
	Cooldown       bool
	BookedByOther  bool
	OwnBooking     bool
}

// Label picks exactly one label. When several facts hold the order is
// past, outside horizon, cooldown, booked by other, own booking.
func Label(f SlotFacts) SlotLabel {
	switch {
	case f.Past:
		return LabelPast
	case f.OutsideHorizon:
		return LabelNotOpened
	case f.Cooldown:
		return LabelCooldown
	case f.BookedByOther:
		return LabelBooked
	case f.OwnBooking:
		return LabelOwn
	}
	return LabelBookable
}

// State is the displayed lifecycle state of a booking.
type State string

const (
	StateActive    State = "active"
	StateCancelled State = "cancelled"
	StateCompleted State = "completed"
)

// StateOf derives the display state from the stored status. Completed is
// never stored: an active booking is completed once its slot has ended.
func StateOf(status string, s slot.Slot, now time.Time, loc *time.Location) State {
	if State(status) == StateCancelled {
		return StateCancelled
	}
	if !now.Before(s.End(loc)) {
		return StateCompleted
	}
	return StateActive
}
