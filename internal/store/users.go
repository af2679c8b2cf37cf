package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"gpu-booking-backend/internal/model"
)

// EnsureUser returns the user with email, creating it with the default role
// if it does not exist yet. A non-empty name replaces a missing stored name.
func (s *gormStore) EnsureUser(ctx context.Context, email, name string) (*model.User, error) {
	u := model.User{Email: email, Name: name, Role: model.RoleUser}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&u).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure user %s: %w", email, err)
	}

	stored, err := s.GetUser(ctx, email)
	if err != nil {
		return nil, err
	}
	if stored.Name == "" && name != "" {
		if err := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Update("name", name).Error; err != nil {
			return nil, fmt.Errorf("failed to set name of %s: %w", email, err)
		}
		stored.Name = name
	}
	return stored, nil
}

func (s *gormStore) GetUser(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *gormStore) UsersByEmail(ctx context.Context, emails []string) (map[string]model.User, error) {
	out := make(map[string]model.User, len(emails))
	if len(emails) == 0 {
		return out, nil
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("email IN ?", emails).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for _, u := range users {
		out[u.Email] = u
	}
	return out, nil
}

func (s *gormStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (s *gormStore) UpdateUserRole(ctx context.Context, email string, role model.Role) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("email = ?", email).Update("role", role)
	if res.Error != nil {
		return fmt.Errorf("failed to update role of %s: %w", email, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
