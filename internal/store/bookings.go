package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gpu-booking-backend/internal/model"
)

// CreateBooking inserts b only if no active booking holds the same machine and
// slot. The check inside the transaction catches the common case; the partial
// unique index catches concurrent writers. Both surface as ErrSlotConflict.
func (s *gormStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var held int64
		if err := tx.Model(&model.Booking{}).
			Where("machine_id = ? AND slot = ? AND status = ?", b.MachineID, b.Slot, model.BookingActive).
			Count(&held).Error; err != nil {
			return err
		}
		if held > 0 {
			return ErrSlotConflict
		}
		return tx.Create(b).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrSlotConflict), isUniqueViolation(err):
		return ErrSlotConflict
	}
	return fmt.Errorf("failed to create booking: %w", err)
}

func (s *gormStore) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	var b model.Booking
	if err := s.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// CancelBooking flips an active booking to cancelled. It is a compare-and-set
// on status so a booking is cancelled at most once.
func (s *gormStore) CancelBooking(ctx context.Context, id int64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Booking{}).
		Where("id = ? AND status = ?", id, model.BookingActive).
		Updates(map[string]any{"status": model.BookingCancelled, "cancelled_at": at.UTC(), "updated_at": at.UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to cancel booking %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetBooking(ctx, id); err != nil {
			return err
		}
		return ErrNotActive
	}
	return nil
}

// DeleteBooking physically removes a booking and returns what was removed.
func (s *gormStore) DeleteBooking(ctx context.Context, id int64) (*model.Booking, error) {
	var b model.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&b, id).Error; err != nil {
			return notFound(err)
		}
		return tx.Delete(&model.Booking{}, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// MachineBookings returns every active booking on the machine with a slot in
// [fromSlot, toSlot]. Canonical slot text sorts in time order.
func (s *gormStore) MachineBookings(ctx context.Context, machineID int64, fromSlot, toSlot string) ([]model.Booking, error) {
	var bookings []model.Booking
	err := s.db.WithContext(ctx).
		Where("machine_id = ? AND status = ? AND slot >= ? AND slot <= ?", machineID, model.BookingActive, fromSlot, toSlot).
		Order("slot").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings for machine %d: %w", machineID, err)
	}
	return bookings, nil
}

// UserMachineBookings returns all of the user's active bookings on the machine, past ones included.
func (s *gormStore) UserMachineBookings(ctx context.Context, email string, machineID int64) ([]model.Booking, error) {
	var bookings []model.Booking
	err := s.db.WithContext(ctx).
		Where("user_email = ? AND machine_id = ? AND status = ?", email, machineID, model.BookingActive).
		Order("slot").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings of %s on machine %d: %w", email, machineID, err)
	}
	return bookings, nil
}

func (s *gormStore) UserBookings(ctx context.Context, email string) ([]model.Booking, error) {
	var bookings []model.Booking
	if err := s.db.WithContext(ctx).Where("user_email = ?", email).Order("slot DESC").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to load bookings of %s: %w", email, err)
	}
	return bookings, nil
}

func (s *gormStore) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	q := s.db.WithContext(ctx).Model(&model.Booking{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.MachineID != 0 {
		q = q.Where("machine_id = ?", f.MachineID)
	}
	if f.UserEmail != "" {
		q = q.Where("user_email = ?", f.UserEmail)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var bookings []model.Booking
	if err := q.Order("slot DESC, id DESC").Find(&bookings).Error; err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// DueReminders returns active, not yet reminded bookings starting in (from, to].
func (s *gormStore) DueReminders(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	var bookings []model.Booking
	err := s.db.WithContext(ctx).
		Where("status = ? AND reminded_at IS NULL AND starts_at > ? AND starts_at <= ?", model.BookingActive, from.UTC(), to.UTC()).
		Order("starts_at").
		Find(&bookings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due reminders: %w", err)
	}
	return bookings, nil
}

func (s *gormStore) MarkReminded(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&model.Booking{}).Where("id IN ?", ids).
		Update("reminded_at", at.UTC()).Error; err != nil {
		return fmt.Errorf("failed to mark %d bookings reminded: %w", len(ids), err)
	}
	return nil
}
