package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gpu-booking-backend/internal/model"
)

// SaveSubscription creates or replaces a subscription together with the set
// of machines it follows.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription, machineIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Machines").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_email"}),
		}).Create(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		machines := []model.Machine{}
		if len(machineIDs) > 0 {
			if err := tx.Find(&machines, machineIDs).Error; err != nil {
				return err
			}
		}
		return tx.Model(sub).Association("Machines").Replace(&machines)
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Machines").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM subscription_machine_mapping WHERE push_subscription_endpoint = ?", endpoint).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	})
}

// MachineSubscriptions returns the subscriptions following machineID.
func (s *gormStore) MachineSubscriptions(ctx context.Context, machineID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_machine_mapping smm ON smm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("smm.machine_id = ?", machineID).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions for machine %d: %w", machineID, err)
	}
	return subs, nil
}

// UserSubscriptions returns every subscription registered by email.
func (s *gormStore) UserSubscriptions(ctx context.Context, email string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_email = ?", email).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to load subscriptions of %s: %w", email, err)
	}
	return subs, nil
}
