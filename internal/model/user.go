package model

import (
	"errors"
	"time"
)

// Role gates admin operations. It plays no part in restriction checks.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleManager || r == RoleAdmin
}

// User is identified by email.
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;size:256;not null" json:"email"`
	Name      string    `gorm:"size:128" json:"name"`
	Role      Role      `gorm:"size:16;not null" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrCannotModifyAdmin = errors.New("managers cannot modify admin users")
	ErrCannotAssignAdmin = errors.New("managers cannot assign admin role")
	ErrInsufficientRole  = errors.New("insufficient permissions")
)

// CanAssignRole checks whether actor may change a user currently holding
// current to next. Admins may change anything; managers may not touch admins
// nor hand out the admin role.
func CanAssignRole(actor, current, next Role) error {
	switch actor {
	case RoleAdmin:
		return nil
	case RoleManager:
		if current == RoleAdmin {
			return ErrCannotModifyAdmin
		}
		if next == RoleAdmin {
			return ErrCannotAssignAdmin
		}
		return nil
	}
	return ErrInsufficientRole
}
