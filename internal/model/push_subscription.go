package model

import "time"

// PushSubscription is a browser endpoint following a set of machines.
// It is told when one of them enters downtime.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time

	// Associations; mapping rows go with either side.
	Machines []*Machine `gorm:"many2many:subscription_machine_mapping;constraint:OnDelete:CASCADE;"`
}
