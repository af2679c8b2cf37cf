package booking

import (
	"errors"
	"fmt"
	"strings"

	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/restriction"
	"gpu-booking-backend/internal/slot"
	"gpu-booking-backend/internal/store"
)

var (
	ErrInvalidSlot        = slot.ErrInvalidSlot
	ErrPastSlot           = errors.New("booking: time slot has already started")
	ErrOutsideHorizon     = errors.New("booking: time slot is not open for booking yet")
	ErrNotFound           = errors.New("booking: not found")
	ErrMachineNotFound    = fmt.Errorf("%w: machine", ErrNotFound)
	ErrBookingNotFound    = fmt.Errorf("%w: booking", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("%w: user", ErrNotFound)
	ErrMachineUnavailable = errors.New("booking: machine is not accepting bookings")
	ErrForbidden          = errors.New("booking: permission denied")
	ErrNotCancellable     = errors.New("booking: booking can no longer be cancelled")
	ErrSlotConflict       = store.ErrSlotConflict
	ErrMachineInUse       = store.ErrMachineInUse
	ErrInvalidStatus      = errors.New("booking: invalid status")
)

// AccessDeniedError carries the blocking reasons of a denied access check.
type AccessDeniedError struct {
	Reasons []string
}

func (e *AccessDeniedError) Error() string {
	return "booking: access denied: " + strings.Join(e.Reasons, "; ")
}

// Reason returns the first blocking reason.
func (e *AccessDeniedError) Reason() string {
	if len(e.Reasons) == 0 {
		return ""
	}
	return e.Reasons[0]
}

// SlotConflictError names who already holds the slot, masked unless it is
// the requester.
type SlotConflictError struct {
	Holder string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("此時段已被%s預約", e.Holder)
}

func (e *SlotConflictError) Unwrap() error { return ErrSlotConflict }

// ErrorKind maps err onto the stable error_type label returned to clients.
// Unknown errors map to "internal_error".
func ErrorKind(err error) string {
	var (
		denied     *AccessDeniedError
		validation *restriction.ValidationError
		parseErr   *restriction.ParseError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSlot):
		return "invalid_time_slot"
	case errors.Is(err, ErrPastSlot):
		return "past_time_slot"
	case errors.Is(err, ErrOutsideHorizon):
		return "outside_horizon"
	case errors.Is(err, ErrMachineNotFound):
		return "machine_not_found"
	case errors.Is(err, ErrBookingNotFound):
		return "booking_not_found"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrMachineUnavailable):
		return "machine_unavailable"
	case errors.As(err, &denied):
		return "machine_restricted"
	case errors.Is(err, ErrSlotConflict):
		return "time_slot_occupied"
	case errors.Is(err, ErrMachineInUse):
		return "machine_in_use"
	case errors.Is(err, ErrForbidden),
		errors.Is(err, model.ErrCannotModifyAdmin),
		errors.Is(err, model.ErrCannotAssignAdmin),
		errors.Is(err, model.ErrInsufficientRole):
		return "permission_denied"
	case errors.Is(err, ErrNotCancellable), errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.As(err, &validation), errors.As(err, &parseErr):
		return "validation"
	}
	return "internal_error"
}

// notFoundAs replaces store.ErrNotFound with the given domain error.
func notFoundAs(err, target error) error {
	if errors.Is(err, store.ErrNotFound) {
		return target
	}
	return err
}
