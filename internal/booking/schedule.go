package booking

import (
	"context"
	"fmt"
	"time"

	"gpu-booking-backend/internal/restriction"
	"gpu-booking-backend/internal/slot"
)

const (
	DefaultScheduleDays = 7
	MaxScheduleDays     = 31
)

// BlockedUsageReason is reported by UsageStatus for blocked machines.
const BlockedUsageReason = "此機器目前被管理員完全封鎖"

// ScheduleSlot is one cell of a machine's calendar as seen by one user.
type ScheduleSlot struct {
	Slot      slot.Slot             `json:"time_slot"`
	Label     restriction.SlotLabel `json:"label"`
	BookingID int64                 `json:"booking_id,omitempty"`
	BookedBy  string                `json:"booked_by,omitempty"`
}

// Schedule is a machine's calendar for a range of days.
type Schedule struct {
	MachineID     int64                `json:"machine_id"`
	MachineName   string               `json:"machine_name"`
	From          string               `json:"from"`
	Days          int                  `json:"days"`
	Slots         []ScheduleSlot       `json:"slots"`
	CooldownSlots []slot.Slot          `json:"cooldown_slots"`
	Decision      restriction.Decision `json:"decision"`
	Usage         *restriction.Usage   `json:"usage,omitempty"`
}

// Schedule labels every slot of days calendar days starting at from for email.
// Other bookers are shown by masked name only.
func (s *Service) Schedule(ctx context.Context, email string, machineID int64, from time.Time, days int) (*Schedule, error) {
	email = NormalizeEmail(email)
	if days <= 0 {
		days = DefaultScheduleDays
	}
	days = min(days, MaxScheduleDays)

	m, em, err := s.loadMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}

	first := slot.FirstOfDay(from)
	last := slot.LastOfDay(from.AddDate(0, 0, days-1))
	bookings, err := s.store.MachineBookings(ctx, machineID, first.String(), last.String())
	if err != nil {
		return nil, err
	}
	userSlots, err := s.userSlots(ctx, email, machineID)
	if err != nil {
		return nil, err
	}

	others := make([]string, 0, len(bookings))
	for _, b := range bookings {
		if b.UserEmail != email {
			others = append(others, b.UserEmail)
		}
	}
	users, err := s.store.UsersByEmail(ctx, others)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := &Schedule{
		MachineID:     m.ID,
		MachineName:   m.Name,
		From:          first.DateString(),
		Days:          days,
		CooldownSlots: []slot.Slot{},
	}
	if m.Status.Bookable() {
		out.Decision = restriction.CheckAccess(email, em, nil, userSlots, now)
	} else {
		out.Decision = restriction.Decision{BlockingReasons: []string{UnavailableReason}, Warnings: []string{}}
	}

	cooldown := map[slot.Slot]bool{}
	if em.RestrictionStatus == restriction.StatusLimited {
		if limit, ok := restriction.ActiveUsageLimit(em, now); ok {
			// 只列出尚未開始且在開放預約範圍內的時段
			from, to := first, last
			if open := slot.Containing(now, s.loc).Next(); from.Before(open) {
				from = open
			}
			if horizon := s.lastBookable(now); to.After(horizon) {
				to = horizon
			}
			if !from.After(to) {
				out.CooldownSlots = restriction.CooldownSlots(userSlots, limit, from, to)
			}
			for _, c := range out.CooldownSlots {
				cooldown[c] = true
			}
			u := restriction.WindowUsage(userSlots, limit, s.currentWindowStart(now))
			out.Usage = &u
		}
	}

	type holder struct {
		id    int64
		email string
	}
	held := make(map[string]holder, len(bookings))
	for _, b := range bookings {
		held[b.Slot] = holder{id: b.ID, email: b.UserEmail}
	}

	horizon := s.lastBookable(now)
	for _, sl := range slot.Range(first, last) {
		cell := ScheduleSlot{Slot: sl}
		h, booked := held[sl.String()]
		own := booked && h.email == email
		cell.Label = restriction.Label(restriction.SlotFacts{
			Past:           !sl.Start(s.loc).After(now),
			OutsideHorizon: sl.After(horizon),
			Cooldown:       cooldown[sl],
			BookedByOther:  booked && !own,
			OwnBooking:     own,
		})
		switch {
		case own:
			cell.BookingID = h.id
		case booked:
			cell.BookedBy = MaskName(users[h.email].Name)
		}
		out.Slots = append(out.Slots, cell)
	}
	return out, nil
}

// currentWindowStart is the slot in progress at now, or the next one when
// now is past the first hour of the slot. The legacy backend rounded any
// non-slot hour up to the next slot the same way.
func (s *Service) currentWindowStart(now time.Time) slot.Slot {
	cur := slot.Containing(now, s.loc)
	if now.In(s.loc).Hour() != cur.Hour() {
		return cur.Next()
	}
	return cur
}

// UsageStatus reports the user's standing against the machine's usage limit.
type UsageStatus struct {
	HasUsageLimit     bool               `json:"has_usage_limit"`
	MachineName       string             `json:"machine_name"`
	Blocked           bool               `json:"blocked,omitempty"`
	BlockedReason     string             `json:"blocked_reason,omitempty"`
	RollingWindow     *restriction.Usage `json:"rolling_window,omitempty"`
	MaxUsages         int                `json:"max_usages,omitempty"`
	CanBook           bool               `json:"can_book"`
	RestrictionReason string             `json:"restriction_reason,omitempty"`
}

// UsageStatus summarizes the rolling window starting at the current slot.
func (s *Service) UsageStatus(ctx context.Context, email string, machineID int64) (*UsageStatus, error) {
	email = NormalizeEmail(email)
	m, em, err := s.loadMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}

	out := &UsageStatus{MachineName: m.Name, CanBook: true}
	switch em.RestrictionStatus {
	case restriction.StatusBlocked:
		out.Blocked = true
		out.BlockedReason = BlockedUsageReason
		out.CanBook = false
		return out, nil
	case restriction.StatusLimited:
	default:
		return out, nil
	}

	now := s.now()
	limit, ok := restriction.ActiveUsageLimit(em, now)
	if !ok {
		return out, nil
	}
	userSlots, err := s.userSlots(ctx, email, machineID)
	if err != nil {
		return nil, err
	}

	u := restriction.WindowUsage(userSlots, limit, s.currentWindowStart(now))
	out.HasUsageLimit = true
	out.RollingWindow = &u
	out.MaxUsages = limit.MaxBookings
	out.CanBook = u.Remaining > 0
	if !out.CanBook {
		out.RestrictionReason = fmt.Sprintf("滾動窗口限制：%d個時段內最多%d次", limit.WindowSize, limit.MaxBookings)
	}
	return out, nil
}
