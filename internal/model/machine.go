package model

import "time"

// Machine is a monitored asset (vessel, rig, equipment) as known upstream.
type Machine struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"` // Upstream ID
	FleetID     int64     `gorm:"index;not null" json:"fleetId"`
	DisplayName string    `gorm:"size:256;not null" json:"displayName"`
	Code        string    `gorm:"size:64" json:"code"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Associations
	Fleet Fleet `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
