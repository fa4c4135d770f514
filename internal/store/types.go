package store

import (
	"time"

	"fleet-status-backend/internal/model"
	"fleet-status-backend/internal/opstatus"
)

// ApiItem represents a single asset record from the upstream API.
type ApiItem struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Fleet        string  `json:"fleet"`
	Code         string  `json:"code"`
	Status       string  `json:"status"`
	Factor       float64 `json:"factor"`
	Group        string  `json:"group"`
	Subgroup     string  `json:"subgroup"`
	LossValue    float64 `json:"lossValue"`
	RevenueValue float64 `json:"revenueValue"`
	// ChangedAt is the upstream local time the current status began.
	ChangedAt *string `json:"changedAt"`

	StatusParsed    opstatus.Status `json:"-"`
	ChangedAtParsed *time.Time      `json:"-"`
}

// Transition is a machine entering a new status.
type Transition struct {
	MachineID   string
	DisplayName string
	From        opstatus.Status
	To          opstatus.Status
	At          time.Time
}

// FleetSummary is a fleet with its machine count.
type FleetSummary struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	TotalMachines int64  `json:"totalMachines"`
	InDowntime    int64  `json:"inDowntime"`
}

// MachineStatus is a machine with the status it is in.
type MachineStatus struct {
	model.Machine
	Status     opstatus.Status `json:"status"`
	Label      string          `json:"label"`
	Factor     float64         `json:"factor"`
	Group      string          `json:"group"`
	Subgroup   string          `json:"subgroup"`
	Since      *time.Time      `json:"since"`
	ObservedAt *time.Time      `json:"observedAt"`
}
