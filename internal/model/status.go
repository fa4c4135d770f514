package model

import (
	"time"

	"fleet-status-backend/internal/opstatus"
)

// StatusOpen is the status a machine is currently in (hot table).
type StatusOpen struct {
	MachineID    string          `gorm:"primaryKey;size:64"`
	Status       opstatus.Status `gorm:"size:32;not null"`
	StartedAt    time.Time       `gorm:"not null"`
	ObservedAt   time.Time       `gorm:"not null"` // When the poller recorded this status
	Factor       float64         `gorm:"not null;default:0"`
	Group        string          `gorm:"column:group_name;size:128"`
	Subgroup     string          `gorm:"column:subgroup_name;size:128"`
	LossValue    float64         `gorm:"not null;default:0"`
	RevenueValue float64         `gorm:"not null;default:0"`
}

// StatusInterval is a closed status period of a machine (cold table).
type StatusInterval struct {
	ID           int64           `gorm:"primaryKey;autoIncrement"`
	MachineID    string          `gorm:"size:64;not null;index:idx_status_interval_machine_start"`
	Status       opstatus.Status `gorm:"size:32;not null"`
	StartedAt    time.Time       `gorm:"not null;index:idx_status_interval_machine_start"`
	EndedAt      time.Time       `gorm:"not null;index"`
	Factor       float64         `gorm:"not null;default:0"`
	Group        string          `gorm:"column:group_name;size:128"`
	Subgroup     string          `gorm:"column:subgroup_name;size:128"`
	LossValue    float64         `gorm:"not null;default:0"`
	RevenueValue float64         `gorm:"not null;default:0"`
}
