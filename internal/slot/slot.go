package slot

import (
	"errors"
	"fmt"
	"time"
)

const (
	// Duration is the length of every reservable slot.
	Duration = 4 * time.Hour
	// PerDay is the number of slots each calendar day contributes.
	PerDay = 6
	// Layout is the canonical textual form, e.g. "2025-06-01-08:00".
	Layout = "2006-01-02-15:04"
	// LegacyLayout is the form older clients send, e.g. "2025/06/01/08".
	LegacyLayout = "2006/01/02/15"
	// DateLayout formats the calendar day of a slot.
	DateLayout = "2006-01-02"

	hoursPerSlot  = 4
	secondsPerDay = 24 * 60 * 60
)

// ErrInvalidSlot is returned for malformed identifiers and non-canonical start hours.
var ErrInvalidSlot = errors.New("slot: invalid slot")

// Hours lists the canonical start hours in day order.
var Hours = [PerDay]int{0, 4, 8, 12, 16, 20}

// Slot identifies one 4-hour interval on one calendar day. Slots are kept as
// their position on the global grid (days since 1970-01-01 times six plus the
// slot of the day), so ordering and arithmetic are plain integer operations.
// The zero value is 1970-01-01-00:00.
type Slot struct {
	idx int64
}

// IsCanonicalHour reports whether hour is one of the six slot start hours.
func IsCanonicalHour(hour int) bool {
	return hour >= 0 && hour < 24 && hour%hoursPerSlot == 0
}

// New returns the slot starting at hour on the given civil date.
func New(year int, month time.Month, day int, hour int) (Slot, error) {
	if !IsCanonicalHour(hour) {
		return Slot{}, fmt.Errorf("%w: hour %d is not one of 00,04,08,12,16,20", ErrInvalidSlot, hour)
	}
	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Year() != year || date.Month() != month || date.Day() != day {
		return Slot{}, fmt.Errorf("%w: %04d-%02d-%02d is not a calendar date", ErrInvalidSlot, year, month, day)
	}
	return Slot{idx: dayNumber(date)*PerDay + int64(hour/hoursPerSlot)}, nil
}

// Encode returns the slot starting at hour on the calendar day of date.
// Only the year, month and day of date are used.
func Encode(date time.Time, hour int) (Slot, error) {
	y, m, d := date.Date()
	return New(y, m, d, hour)
}

// MustNew is like New but panics on error. Intended for tests and constants.
func MustNew(year int, month time.Month, day int, hour int) Slot {
	s, err := New(year, month, day, hour)
	if err != nil {
		panic(err)
	}
	return s
}

// Parse decodes the canonical textual form.
func Parse(text string) (Slot, error) {
	return parseLayout(text, Layout)
}

// ParseLegacy accepts the canonical form as well as the legacy "YYYY/MM/DD/HH" form.
func ParseLegacy(text string) (Slot, error) {
	if s, err := parseLayout(text, Layout); err == nil {
		return s, nil
	}
	return parseLayout(text, LegacyLayout)
}

func parseLayout(text, layout string) (Slot, error) {
	t, err := time.Parse(layout, text)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, text)
	}
	if t.Minute() != 0 {
		return Slot{}, fmt.Errorf("%w: %q does not start on the hour", ErrInvalidSlot, text)
	}
	return Encode(t, t.Hour())
}

// FromIndex returns the slot at position i on the global grid.
func FromIndex(i int64) Slot {
	return Slot{idx: i}
}

// Containing returns the slot whose interval contains t, evaluated in loc.
func Containing(t time.Time, loc *time.Location) Slot {
	local := t.In(loc)
	y, m, d := local.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Slot{idx: dayNumber(date)*PerDay + int64(local.Hour()/hoursPerSlot)}
}

// FirstOfDay returns the 00:00 slot of the calendar day of date.
func FirstOfDay(date time.Time) Slot {
	s, _ := Encode(date, Hours[0])
	return s
}

// LastOfDay returns the 20:00 slot of the calendar day of date.
func LastOfDay(date time.Time) Slot {
	s, _ := Encode(date, Hours[PerDay-1])
	return s
}

// Index is the position of the slot on the global grid.
func (s Slot) Index() int64 { return s.idx }

// Date returns the civil date of the slot.
func (s Slot) Date() (year int, month time.Month, day int) {
	return s.day().Date()
}

// Hour returns the canonical start hour.
func (s Slot) Hour() int {
	return int(mod(s.idx, PerDay)) * hoursPerSlot
}

// Start is the instant the slot begins in loc.
func (s Slot) Start(loc *time.Location) time.Time {
	y, m, d := s.Date()
	return time.Date(y, m, d, s.Hour(), 0, 0, 0, loc)
}

// End is the instant the slot ends in loc.
func (s Slot) End(loc *time.Location) time.Time {
	return s.Start(loc).Add(Duration)
}

// Next returns the following slot, crossing into the next day after 20:00.
func (s Slot) Next() Slot { return Slot{idx: s.idx + 1} }

// Prev returns the preceding slot, crossing into the previous day before 00:00.
func (s Slot) Prev() Slot { return Slot{idx: s.idx - 1} }

// Add moves the slot by n positions.
func (s Slot) Add(n int) Slot { return Slot{idx: s.idx + int64(n)} }

// Sub returns the number of slots between o and s (s - o).
func (s Slot) Sub(o Slot) int64 { return s.idx - o.idx }

// Compare returns -1, 0 or +1 depending on whether s starts before, with or after o.
func (s Slot) Compare(o Slot) int {
	switch {
	case s.idx < o.idx:
		return -1
	case s.idx > o.idx:
		return 1
	}
	return 0
}

// Before reports whether s starts before o.
func (s Slot) Before(o Slot) bool { return s.idx < o.idx }

// After reports whether s starts after o.
func (s Slot) After(o Slot) bool { return s.idx > o.idx }

// String returns the canonical textual form.
func (s Slot) String() string {
	y, m, d := s.Date()
	return fmt.Sprintf("%04d-%02d-%02d-%02d:00", y, m, d, s.Hour())
}

// DateString returns the calendar day in DateLayout.
func (s Slot) DateString() string {
	return s.day().Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (s Slot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Slot) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Range returns every slot from first to last inclusive.
func Range(first, last Slot) []Slot {
	if last.Before(first) {
		return nil
	}
	out := make([]Slot, 0, last.idx-first.idx+1)
	for s := first; !s.After(last); s = s.Next() {
		out = append(out, s)
	}
	return out
}

func (s Slot) day() time.Time {
	days := floorDiv(s.idx, PerDay)
	return time.Unix(days*secondsPerDay, 0).UTC()
}

func dayNumber(date time.Time) int64 {
	return floorDiv(date.Unix(), secondsPerDay)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}
