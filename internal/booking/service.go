// Package booking wraps the restriction engine with storage: it commits and
// cancels bookings and builds the per-user views of a machine.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gpu-booking-backend/config"
	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/notification"
	"gpu-booking-backend/internal/restriction"
	"gpu-booking-backend/internal/slot"
	"gpu-booking-backend/internal/store"
)

// UnavailableReason is the access reason for machines that do not accept bookings.
const UnavailableReason = "機器目前限制使用"

// Notifier receives events for the push workers.
type Notifier interface {
	Dispatch(e notification.Event)
}

type nopNotifier struct{}

func (nopNotifier) Dispatch(notification.Event) {}

// Service implements the booking operations on top of a store.
type Service struct {
	store    store.Store
	notifier Notifier
	loc      *time.Location
	horizon  int
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier sets where slot-freed events go. Without it events are discarded.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// NewService creates a booking service for the calendar described by cfg.
func NewService(st store.Store, cfg config.BookingConfig, opts ...Option) *Service {
	s := &Service{
		store:    st,
		notifier: nopNotifier{},
		loc:      cfg.Location,
		horizon:  cfg.HorizonDays,
		now:      time.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.horizon <= 0 {
		s.horizon = 60
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the calendar timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Now returns the service clock.
func (s *Service) Now() time.Time { return s.now() }

// lastBookable is the final slot of the last day open for booking.
func (s *Service) lastBookable(now time.Time) slot.Slot {
	today := now.In(s.loc)
	return slot.LastOfDay(today.AddDate(0, 0, s.horizon-1))
}

// loadMachine fetches a machine and converts its stored rules. Rules whose
// payload cannot be read are skipped and logged.
func (s *Service) loadMachine(ctx context.Context, id int64) (*model.Machine, restriction.Machine, error) {
	m, err := s.store.GetMachine(ctx, id)
	if err != nil {
		return nil, restriction.Machine{}, notFoundAs(err, ErrMachineNotFound)
	}
	return m, engineMachine(m), nil
}

func engineMachine(m *model.Machine) restriction.Machine {
	em := restriction.Machine{ID: m.ID, RestrictionStatus: m.RestrictionStatus}
	for _, r := range m.Restrictions {
		rule, err := r.ToRule()
		if err != nil {
			log.Printf("Ignoring restriction %d on machine %d: %v", r.ID, m.ID, err)
			continue
		}
		em.Rules = append(em.Rules, rule)
	}
	return em
}

// userSlots returns the slots of the user's active bookings on the machine.
func (s *Service) userSlots(ctx context.Context, email string, machineID int64) ([]slot.Slot, error) {
	bookings, err := s.store.UserMachineBookings(ctx, email, machineID)
	if err != nil {
		return nil, err
	}
	return bookingSlots(bookings), nil
}

func bookingSlots(bookings []model.Booking) []slot.Slot {
	out := make([]slot.Slot, 0, len(bookings))
	for _, b := range bookings {
		sl, err := slot.Parse(b.Slot)
		if err != nil {
			log.Printf("Booking %d has unreadable slot %q: %v", b.ID, b.Slot, err)
			continue
		}
		out = append(out, sl)
	}
	return out
}

// ParseSlot accepts the canonical form and the legacy YYYY/MM/DD/HH form.
func ParseSlot(text string) (slot.Slot, error) {
	sl, err := slot.Parse(text)
	if err == nil {
		return sl, nil
	}
	if legacy, lerr := slot.ParseLegacy(text); lerr == nil {
		return legacy, nil
	}
	return slot.Slot{}, err
}

// checkOpen rejects slots that have started or are beyond the booking horizon.
func (s *Service) checkOpen(sl slot.Slot, now time.Time) error {
	if !sl.Start(s.loc).After(now) {
		return ErrPastSlot
	}
	if sl.After(s.lastBookable(now)) {
		return ErrOutsideHorizon
	}
	return nil
}

// AccessResult is a decision about one machine for one user.
type AccessResult struct {
	restriction.Decision
	Reason      string `json:"reason,omitempty"`
	MachineName string `json:"machine_name"`
}

// Access checks whether email may use the machine. With a candidate the
// usage rules are evaluated against that slot, after the same past and
// horizon checks Book applies; without one they only warn.
func (s *Service) Access(ctx context.Context, email string, machineID int64, candidate *slot.Slot) (*AccessResult, error) {
	email = NormalizeEmail(email)
	if candidate != nil {
		if err := s.checkOpen(*candidate, s.now()); err != nil {
			return nil, err
		}
	}
	m, em, err := s.loadMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}

	res := &AccessResult{MachineName: m.Name}
	if !m.Status.Bookable() {
		res.Decision = restriction.Decision{BlockingReasons: []string{UnavailableReason}, Warnings: []string{}}
		res.Reason = UnavailableReason
		return res, nil
	}

	var userSlots []slot.Slot
	if candidate != nil && em.RestrictionStatus == restriction.StatusLimited {
		if userSlots, err = s.userSlots(ctx, email, machineID); err != nil {
			return nil, err
		}
	}
	res.Decision = restriction.CheckAccess(email, em, candidate, userSlots, s.now())
	res.Reason = res.Decision.Reason()
	return res, nil
}

// Book reserves slotText on the machine for email.
func (s *Service) Book(ctx context.Context, email string, machineID int64, slotText string) (*model.Booking, error) {
	email = NormalizeEmail(email)
	sl, err := ParseSlot(slotText)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.checkOpen(sl, now); err != nil {
		return nil, err
	}
	start := sl.Start(s.loc)

	m, em, err := s.loadMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if !m.Status.Bookable() {
		return nil, fmt.Errorf("%w: %s is %s", ErrMachineUnavailable, m.Name, m.Status)
	}

	userSlots, err := s.userSlots(ctx, email, machineID)
	if err != nil {
		return nil, err
	}
	if d := restriction.CheckAccess(email, em, &sl, userSlots, now); !d.Allowed {
		log.Printf("Booking denied for %s on machine %d slot %s: %v", email, machineID, sl, d.BlockingReasons)
		return nil, &AccessDeniedError{Reasons: d.BlockingReasons}
	}

	if _, err := s.store.EnsureUser(ctx, email, ""); err != nil {
		return nil, err
	}

	b := &model.Booking{
		MachineID: machineID,
		UserEmail: email,
		Slot:      sl.String(),
		StartsAt:  start.UTC(),
		Status:    model.BookingActive,
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		if errors.Is(err, store.ErrSlotConflict) {
			return nil, s.conflict(ctx, email, machineID, sl)
		}
		return nil, err
	}
	log.Printf("Booking %d created: %s on machine %d slot %s", b.ID, email, machineID, b.Slot)
	return b, nil
}

// conflict describes who holds the slot. The lookup is best effort.
func (s *Service) conflict(ctx context.Context, email string, machineID int64, sl slot.Slot) error {
	held, err := s.store.MachineBookings(ctx, machineID, sl.String(), sl.String())
	if err != nil || len(held) == 0 {
		return ErrSlotConflict
	}
	holder := MaskEmail(held[0].UserEmail)
	if held[0].UserEmail == email {
		holder = "您"
	}
	return &SlotConflictError{Holder: holder}
}

// Cancel cancels the user's own booking before its slot starts and tells
// the machine's followers the slot is free again.
func (s *Service) Cancel(ctx context.Context, email string, bookingID int64) (*model.Booking, error) {
	email = NormalizeEmail(email)
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, notFoundAs(err, ErrBookingNotFound)
	}
	if b.UserEmail != email {
		return nil, ErrForbidden
	}
	if b.Status != model.BookingActive {
		return nil, fmt.Errorf("%w: booking is %s", ErrNotCancellable, b.Status)
	}

	now := s.now()
	if !b.StartsAt.After(now) {
		return nil, fmt.Errorf("%w: slot %s has started", ErrNotCancellable, b.Slot)
	}

	if err := s.store.CancelBooking(ctx, bookingID, now); err != nil {
		if errors.Is(err, store.ErrNotActive) {
			return nil, ErrNotCancellable
		}
		return nil, notFoundAs(err, ErrBookingNotFound)
	}
	b.Status = model.BookingCancelled
	cancelledAt := now.UTC()
	b.CancelledAt = &cancelledAt

	log.Printf("Booking %d cancelled by %s", b.ID, email)
	s.notifier.Dispatch(notification.Event{Kind: notification.EventSlotFreed, MachineID: b.MachineID, Slot: b.Slot, Email: email})
	return b, nil
}

// BookingView is a booking with its derived display state.
type BookingView struct {
	model.Booking
	State       restriction.State `json:"state"`
	MachineName string            `json:"machine_name,omitempty"`
	UserName    string            `json:"user_name,omitempty"`
}

func (s *Service) view(b model.Booking, now time.Time) BookingView {
	v := BookingView{Booking: b, State: restriction.State(b.Status)}
	if sl, err := slot.Parse(b.Slot); err == nil {
		v.State = restriction.StateOf(string(b.Status), sl, now, s.loc)
	}
	return v
}

// UserBookings lists every booking of email, newest slot first.
func (s *Service) UserBookings(ctx context.Context, email string) ([]BookingView, error) {
	bookings, err := s.store.UserBookings(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	names, err := s.machineNames(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		v := s.view(b, now)
		v.MachineName = names[b.MachineID]
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) machineNames(ctx context.Context) (map[int64]string, error) {
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(machines))
	for _, m := range machines {
		names[m.ID] = m.Name
	}
	return names, nil
}

// MachineView is a machine as listed to one user.
type MachineView struct {
	model.Machine
	Bookable bool                 `json:"bookable"`
	Access   restriction.Decision `json:"access"`
}

// Machines lists every machine with the page-level decision for email.
func (s *Service) Machines(ctx context.Context, email string) ([]MachineView, error) {
	email = NormalizeEmail(email)
	machines, err := s.store.ListMachines(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]MachineView, 0, len(machines))
	for i := range machines {
		m := &machines[i]
		v := MachineView{Machine: *m, Bookable: m.Status.Bookable()}
		if v.Bookable {
			v.Access = restriction.CheckAccess(email, engineMachine(m), nil, nil, now)
		} else {
			v.Access = restriction.Decision{BlockingReasons: []string{UnavailableReason}, Warnings: []string{}}
		}
		out = append(out, v)
	}
	return out, nil
}

// Restrictions lists the stored rules of a machine.
func (s *Service) Restrictions(ctx context.Context, machineID int64) ([]model.Restriction, error) {
	if _, err := s.store.GetMachine(ctx, machineID); err != nil {
		return nil, notFoundAs(err, ErrMachineNotFound)
	}
	return s.store.ListRestrictions(ctx, machineID)
}
