package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/slot"
)

func (s *gormStore) ListMachines(ctx context.Context) ([]model.Machine, error) {
	var machines []model.Machine
	if err := s.db.WithContext(ctx).Preload("Restrictions").Order("id").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	return machines, nil
}

func (s *gormStore) GetMachine(ctx context.Context, id int64) (*model.Machine, error) {
	var m model.Machine
	if err := s.db.WithContext(ctx).Preload("Restrictions").First(&m, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *gormStore) CreateMachine(ctx context.Context, m *model.Machine) error {
	if err := s.db.WithContext(ctx).Omit("Restrictions").Create(m).Error; err != nil {
		return fmt.Errorf("failed to create machine: %w", err)
	}
	return nil
}

func (s *gormStore) UpdateMachine(ctx context.Context, m *model.Machine) error {
	res := s.db.WithContext(ctx).Model(&model.Machine{}).Where("id = ?", m.ID).Updates(map[string]any{
		"name":               m.Name,
		"description":        m.Description,
		"status":             m.Status,
		"restriction_status": m.RestrictionStatus,
		"updated_at":         time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update machine %d: %w", m.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMachine removes a machine and its rules. Past bookings are kept but
// any still active are cancelled. Machines with a booking that has not yet
// ended are refused with ErrMachineInUse.
func (s *gormStore) DeleteMachine(ctx context.Context, id int64, now time.Time) (*MachineDeletion, error) {
	var out MachineDeletion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Machine
		if err := tx.First(&m, id).Error; err != nil {
			return notFound(err)
		}
		out.Name = m.Name

		var upcoming int64
		if err := tx.Model(&model.Booking{}).
			Where("machine_id = ? AND status = ? AND starts_at > ?", id, model.BookingActive, now.Add(-slot.Duration).UTC()).
			Count(&upcoming).Error; err != nil {
			return err
		}
		if upcoming > 0 {
			return fmt.Errorf("%w: %d", ErrMachineInUse, upcoming)
		}

		res := tx.Where("machine_id = ?", id).Delete(&model.Restriction{})
		if res.Error != nil {
			return res.Error
		}
		out.DeletedRestrictions = res.RowsAffected

		res = tx.Model(&model.Booking{}).
			Where("machine_id = ? AND status = ?", id, model.BookingActive).
			Updates(map[string]any{"status": model.BookingCancelled, "cancelled_at": now.UTC(), "updated_at": now.UTC()})
		if res.Error != nil {
			return res.Error
		}
		out.CancelledBookings = res.RowsAffected

		if err := tx.Exec("DELETE FROM subscription_machine_mapping WHERE machine_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Machine{}, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
