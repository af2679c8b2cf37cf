package model

import (
	"time"

	"gorm.io/datatypes"

	"gpu-booking-backend/internal/restriction"
)

// Restriction is a stored restriction rule. Rule holds the JSON payload for
// Type; a machine carries at most one rule per type.
type Restriction struct {
	ID        int64            `gorm:"primaryKey" json:"id"`
	MachineID int64            `gorm:"not null;uniqueIndex:idx_restrictions_machine_type" json:"machine_id"`
	Type      restriction.Type `gorm:"column:restriction_type;size:32;not null;uniqueIndex:idx_restrictions_machine_type" json:"restriction_type"`
	Rule      datatypes.JSON   `gorm:"not null" json:"restriction_rule"`
	IsActive  bool             `gorm:"not null" json:"is_active"`
	StartTime *time.Time       `json:"start_time"`
	EndTime   *time.Time       `json:"end_time"`
	CreatedBy string           `gorm:"size:256" json:"created_by,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ToRule decodes the stored payload into an engine rule.
func (r Restriction) ToRule() (restriction.Rule, error) {
	p, err := restriction.DecodePayload(r.Type, r.Rule)
	if err != nil {
		return restriction.Rule{}, err
	}
	return restriction.Rule{
		ID:        r.ID,
		MachineID: r.MachineID,
		Payload:   p,
		IsActive:  r.IsActive,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
	}, nil
}
