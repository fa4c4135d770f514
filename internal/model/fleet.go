package model

import "time"

// Fleet groups the vessels and assets of one operator.
type Fleet struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:128;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Associations
	Machines []Machine `gorm:"foreignKey:FleetID"`
}
