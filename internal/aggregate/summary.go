package aggregate

import (
	"fmt"
	"sort"

	"fleet-status-backend/internal/opstatus"
)

// StatusShare is one slice of the per-status breakdown.
type StatusShare struct {
	Status     opstatus.Status `json:"status"`
	Hours      float64         `json:"hours"`
	Percentage float64         `json:"percentage"`
}

// Summary holds the KPI figures of a result.
type Summary struct {
	TotalHours          float64       `json:"totalHours"`
	OperationalHours    float64       `json:"operationalHours"`
	DowntimeHours       float64       `json:"downtimeHours"`
	OperabilityRate     float64       `json:"operabilityRate"`
	AvgDailyOperational float64       `json:"avgDailyOperational"`
	EventCount          int           `json:"eventCount"`
	TotalLoss           float64       `json:"totalLoss"`
	TotalRevenue        float64       `json:"totalRevenue"`
	Breakdown           []StatusShare `json:"breakdown"`
}

// Summarize computes the KPI tiles from a result's status buckets.
func Summarize(res Result) Summary {
	s := Summary{
		EventCount:   len(res.TypesEvents),
		TotalLoss:    res.TotalLoss,
		TotalRevenue: res.TotalRevenue,
		Breakdown:    []StatusShare{},
	}

	byStatus := make(map[opstatus.Status]float64)
	for _, b := range res.StatusList {
		s.TotalHours += b.TotalHours
		byStatus[b.Status] += b.TotalHours
		switch b.Status {
		case opstatus.Operating:
			s.OperationalHours += b.TotalHours
		case opstatus.Downtime, opstatus.DowntimePartial:
			s.DowntimeHours += b.TotalHours
		}
	}
	if s.TotalHours > 0 {
		s.OperabilityRate = s.OperationalHours * 100 / s.TotalHours
		s.AvgDailyOperational = s.OperationalHours / (s.TotalHours / hoursPerDay)
	}

	for _, status := range opstatus.All() {
		hours, ok := byStatus[status]
		if !ok {
			continue
		}
		share := StatusShare{Status: status, Hours: hours}
		if s.TotalHours > 0 {
			share.Percentage = hours * 100 / s.TotalHours
		}
		s.Breakdown = append(s.Breakdown, share)
	}
	sort.SliceStable(s.Breakdown, func(i, j int) bool {
		return s.Breakdown[i].Hours > s.Breakdown[j].Hours
	})
	return s
}

// PeriodKey selects how status buckets are grouped into periods.
type PeriodKey string

const (
	ByCompetence PeriodKey = "competence"
	ByMonth      PeriodKey = "month"
)

// ParsePeriodKey accepts "competence" (default when empty) or "month".
func ParsePeriodKey(s string) (PeriodKey, error) {
	switch PeriodKey(s) {
	case "", ByCompetence:
		return ByCompetence, nil
	case ByMonth:
		return ByMonth, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// PeriodSummary aggregates the status buckets of one competence or month.
type PeriodSummary struct {
	Period               string                      `json:"period"`
	Operational          float64                     `json:"operational"`
	Inoperability        float64                     `json:"inoperability"`
	OperationalPercent   float64                     `json:"operationalPercent"`
	InoperabilityPercent float64                     `json:"inoperabilityPercent"`
	GrossHours           map[opstatus.Status]float64 `json:"grossHours"`
	Days                 int                         `json:"days"`
}

// PeriodReport is the per-period view of a result.
type PeriodReport struct {
	Key     PeriodKey       `json:"key"`
	Periods []PeriodSummary `json:"periods"`
	// Average is the operational share over every period, in percent.
	Average float64 `json:"average"`
}

// SummarizePeriods groups status buckets by competence or month, in order of first appearance.
func SummarizePeriods(buckets []StatusBucket, key PeriodKey) PeriodReport {
	report := PeriodReport{Key: key, Periods: []PeriodSummary{}}
	index := make(map[string]int)
	seenDays := make(map[string]map[int64]struct{})
	var operational, inoperability float64

	for _, b := range buckets {
		period := b.Competence
		if key == ByMonth {
			period = b.Month
		}
		i, ok := index[period]
		if !ok {
			i = len(report.Periods)
			index[period] = i
			seenDays[period] = make(map[int64]struct{})
			report.Periods = append(report.Periods, PeriodSummary{
				Period:     period,
				GrossHours: make(map[opstatus.Status]float64),
			})
		}
		p := &report.Periods[i]
		p.GrossHours[b.Status] += b.TotalGrossHours
		if b.Status == opstatus.Downtime {
			p.Inoperability += b.TotalHours
			inoperability += b.TotalHours
		} else {
			p.Operational += b.TotalHours
			operational += b.TotalHours
		}
		seenDays[period][b.Date] = struct{}{}
	}

	for i := range report.Periods {
		p := &report.Periods[i]
		p.Days = len(seenDays[p.Period])
		if total := p.Operational + p.Inoperability; total > 0 {
			p.OperationalPercent = p.Operational * 100 / total
			p.InoperabilityPercent = p.Inoperability * 100 / total
		}
	}
	if total := operational + inoperability; operational > 0 {
		report.Average = operational * 100 / total
	}
	return report
}
