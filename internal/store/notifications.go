package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gpu-booking-backend/internal/model"
)

func (s *gormStore) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var list []model.Notification
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, nil
}

// ActiveNotifications returns the notifications visible at now, most urgent
// level first and newest first within a level.
func (s *gormStore) ActiveNotifications(ctx context.Context, now time.Time) ([]model.Notification, error) {
	all, err := s.ListNotifications(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]model.Notification, 0, len(all))
	for _, n := range all {
		if n.ActiveAt(now) {
			active = append(active, n)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Level.Rank() < active[j].Level.Rank()
	})
	return active, nil
}

func (s *gormStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *gormStore) UpdateNotification(ctx context.Context, n *model.Notification) error {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", n.ID).Updates(map[string]any{
		"content":    n.Content,
		"level":      n.Level,
		"start_time": n.StartTime,
		"end_time":   n.EndTime,
		"updated_at": time.Now(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to update notification %d: %w", n.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) DeleteNotification(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.Notification{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete notification %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
