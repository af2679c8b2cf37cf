package model

import (
	"time"

	"gpu-booking-backend/internal/restriction"
)

// MachineStatus is the operational state an admin sets on a machine.
type MachineStatus string

const (
	MachineActive      MachineStatus = "active"
	MachineMaintenance MachineStatus = "maintenance"
	MachineLimited     MachineStatus = "limited"
)

// Valid reports whether s is a known machine status.
func (s MachineStatus) Valid() bool {
	return s == MachineActive || s == MachineMaintenance || s == MachineLimited
}

// Bookable reports whether new bookings are accepted. Machines under
// maintenance stay bookable.
func (s MachineStatus) Bookable() bool {
	return s == MachineActive || s == MachineMaintenance
}

// Machine represents one shared GPU machine.
type Machine struct {
	ID                int64              `gorm:"primaryKey" json:"id"`
	Name              string             `gorm:"size:128;not null" json:"name"`
	Description       string             `gorm:"size:1024" json:"description"`
	Status            MachineStatus      `gorm:"size:32;not null" json:"status"`
	RestrictionStatus restriction.Status `gorm:"size:32;not null" json:"restriction_status"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`

	// Associations
	Restrictions []Restriction `gorm:"foreignKey:MachineID" json:"restrictions,omitempty"`
}
