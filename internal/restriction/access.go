package restriction

import (
	"time"

	"gpu-booking-backend/internal/parse"
	"gpu-booking-backend/internal/slot"
)

// Status is the machine-level switch deciding whether rules are consulted.
type Status string

const (
	StatusNone    Status = "none"
	StatusLimited Status = "limited"
	StatusBlocked Status = "blocked"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s == StatusNone || s == StatusLimited || s == StatusBlocked
}

// BlockedReason is the only reason given for a blocked machine.
const BlockedReason = "此機器目前暫停使用"

const (
	usageWarningPrefix = "此機器有使用次數限制："
	usageBlockPrefix   = "超過滾動窗口使用限制："
)

// Machine is the part of a machine the access check needs.
type Machine struct {
	ID                int64
	RestrictionStatus Status
	Rules             []Rule
}

// Decision is the outcome of an access check. Both slices are always non-nil.
type Decision struct {
	Allowed         bool     `json:"allowed"`
	BlockingReasons []string `json:"blocking_reasons"`
	Warnings        []string `json:"warnings"`
}

// Reason returns the first blocking reason, or "" when access is allowed.
func (d Decision) Reason() string {
	if len(d.BlockingReasons) == 0 {
		return ""
	}
	return d.BlockingReasons[0]
}

// CheckAccess decides whether email may use machine at now. When candidate is
// nil the check is page-level: usage limits produce warnings instead of blocks.
// userSlots are the user's active bookings on this machine.
func CheckAccess(email string, m Machine, candidate *slot.Slot, userSlots []slot.Slot, now time.Time) Decision {
	d := Decision{BlockingReasons: []string{}, Warnings: []string{}}

	switch m.RestrictionStatus {
	case StatusBlocked:
		d.BlockingReasons = append(d.BlockingReasons, BlockedReason)
		return d
	case StatusLimited:
	default:
		d.Allowed = true
		return d
	}

	year, hasYear := parse.ExtractYear(email)
	for _, r := range m.Rules {
		if !IsActiveNow(r, now) {
			continue
		}
		switch p := r.Payload.(type) {
		case YearLimit:
			if EvaluateYearLimit(p, year, hasYear) == Matched {
				d.BlockingReasons = append(d.BlockingReasons, p.Describe())
			}
		case UsageLimit:
			if candidate == nil {
				d.Warnings = append(d.Warnings, usageWarningPrefix+p.Describe())
				continue
			}
			if WouldViolate(*candidate, userSlots, p) {
				d.BlockingReasons = append(d.BlockingReasons, usageBlockPrefix+p.Describe())
			}
		}
	}

	d.Allowed = len(d.BlockingReasons) == 0
	return d
}

// ActiveUsageLimit returns the first currently active usage limit of m, if any.
func ActiveUsageLimit(m Machine, now time.Time) (UsageLimit, bool) {
	for _, r := range m.Rules {
		if !IsActiveNow(r, now) {
			continue
		}
		if u, ok := r.Payload.(UsageLimit); ok {
			return u, true
		}
	}
	return UsageLimit{}, false
}
