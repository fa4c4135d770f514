// Package opstatus defines the closed set of operational statuses an asset can report.
package opstatus

import (
	"fmt"
	"strings"
)

// Status is the operational status of a machine over an interval.
type Status string

const (
	Operating         Status = "operating"
	Downtime          Status = "downtime"
	DowntimePartial   Status = "downtime-partial"
	ScheduledStoppage Status = "scheduled-stoppage"
	Dockage           Status = "dockage"
)

var all = []Status{Operating, Downtime, DowntimePartial, ScheduledStoppage, Dockage}

// tokens maps the upstream (pt-BR) tokens onto the canonical statuses.
var tokens = map[string]Status{
	"operacao":          Operating,
	"operação":          Operating,
	"downtime":          Downtime,
	"downtime-parcial":  DowntimePartial,
	"parada-programada": ScheduledStoppage,
	"dockage":           Dockage,
}

// All returns every status in reporting order.
func All() []Status {
	out := make([]Status, len(all))
	copy(out, all)
	return out
}

// Parse resolves a canonical status or an upstream token.
func Parse(token string) (Status, error) {
	t := strings.ToLower(strings.TrimSpace(token))
	for _, s := range all {
		if t == string(s) {
			return s, nil
		}
	}
	if s, ok := tokens[t]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", token)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, v := range all {
		if s == v {
			return true
		}
	}
	return false
}

// IsDowntime reports whether s counts as a downtime event.
func (s Status) IsDowntime() bool {
	return s == Downtime || s == DowntimePartial
}

// Token returns the upstream token for s.
func (s Status) Token() string {
	switch s {
	case Operating:
		return "operacao"
	case DowntimePartial:
		return "downtime-parcial"
	case ScheduledStoppage:
		return "parada-programada"
	}
	return string(s)
}

// Label is the pt-BR display label used in exports and notifications.
func (s Status) Label() string {
	switch s {
	case Operating:
		return "Operação"
	case Downtime:
		return "Downtime"
	case DowntimePartial:
		return "Downtime parcial"
	case ScheduledStoppage:
		return "Parada programada"
	case Dockage:
		return "Docagem"
	}
	return string(s)
}
