package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/restriction"
)

func (s *gormStore) ListRestrictions(ctx context.Context, machineID int64) ([]model.Restriction, error) {
	var rules []model.Restriction
	if err := s.db.WithContext(ctx).Where("machine_id = ?", machineID).Order("id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list restrictions for machine %d: %w", machineID, err)
	}
	return rules, nil
}

func (s *gormStore) ListAllRestrictions(ctx context.Context) ([]model.Restriction, error) {
	var rules []model.Restriction
	if err := s.db.WithContext(ctx).Order("machine_id, id").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("failed to list restrictions: %w", err)
	}
	return rules, nil
}

// UpsertRestriction creates the machine's rule of r.Type or replaces the
// existing one. r is reloaded so its ID and timestamps reflect the stored row.
func (s *gormStore) UpsertRestriction(ctx context.Context, r *model.Restriction) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r.UpdatedAt = time.Now()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "machine_id"}, {Name: "restriction_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"rule", "is_active", "start_time", "end_time", "created_by", "updated_at"}),
		}).Create(r).Error; err != nil {
			return fmt.Errorf("failed to upsert %s restriction for machine %d: %w", r.Type, r.MachineID, err)
		}
		var stored model.Restriction
		if err := tx.Where("machine_id = ? AND restriction_type = ?", r.MachineID, r.Type).First(&stored).Error; err != nil {
			return err
		}
		*r = stored
		return nil
	})
}

func (s *gormStore) DeleteRestriction(ctx context.Context, machineID, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND machine_id = ?", id, machineID).Delete(&model.Restriction{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete restriction %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MigrateLegacyRules rewrites usage rules still stored in the cooldown form
// as rolling-window payloads. Unreadable rows are logged and left alone.
func (s *gormStore) MigrateLegacyRules(ctx context.Context) (int, error) {
	var rules []model.Restriction
	if err := s.db.WithContext(ctx).Where("restriction_type = ?", restriction.TypeUsageLimit).Find(&rules).Error; err != nil {
		return 0, fmt.Errorf("failed to load usage restrictions: %w", err)
	}

	migrated := 0
	for _, r := range rules {
		p, legacy, err := restriction.Upgrade(r.Type, r.Rule)
		if err != nil {
			var pe *restriction.ParseError
			if errors.As(err, &pe) {
				log.Printf("Skipping restriction %d on machine %d: %v", r.ID, r.MachineID, err)
				continue
			}
			return migrated, err
		}
		if !legacy {
			continue
		}

		raw, err := restriction.EncodePayload(p)
		if err != nil {
			return migrated, err
		}
		if err := s.db.WithContext(ctx).Model(&model.Restriction{}).Where("id = ?", r.ID).
			Updates(map[string]any{"rule": datatypes.JSON(raw), "updated_at": time.Now()}).Error; err != nil {
			return migrated, fmt.Errorf("failed to rewrite restriction %d: %w", r.ID, err)
		}
		log.Printf("Migrated restriction %d on machine %d to %s", r.ID, r.MachineID, raw)
		migrated++
	}
	return migrated, nil
}
