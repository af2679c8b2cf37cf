package model

import "time"

// BookingStatus is the stored lifecycle status. "completed" is derived and never stored.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking reserves one slot on one machine for one user. Slot holds the
// canonical slot text, which sorts in time order.
type Booking struct {
	ID          int64         `gorm:"primaryKey" json:"id"`
	MachineID   int64         `gorm:"not null;index" json:"machine_id"`
	UserEmail   string        `gorm:"size:256;not null;index" json:"user_email"`
	Slot        string        `gorm:"size:16;not null;index" json:"time_slot"`
	StartsAt    time.Time     `gorm:"not null;index" json:"starts_at"`
	Status      BookingStatus `gorm:"size:16;not null;index" json:"status"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
	RemindedAt  *time.Time    `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}
