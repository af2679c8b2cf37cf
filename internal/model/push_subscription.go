package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	UserEmail string    `gorm:"size:256;index"`
	CreatedAt time.Time `gorm:"not null"`

	// Machines whose freed slots this subscriber wants to hear about.
	Machines []*Machine `gorm:"many2many:subscription_machine_mapping;"`
}
