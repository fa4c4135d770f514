package aggregate

import (
	"time"

	"fleet-status-backend/internal/opstatus"
)

const (
	// fullDayThreshold absorbs timestamp drift at day boundaries: anything at or
	// above it is a whole day.
	fullDayThreshold = 23.9
	hoursPerDay      = 24.0

	// DefaultCompetenceCutoffDay is the first day of the month booked to the next competence.
	DefaultCompetenceCutoffDay = 26
	competenceLookaheadDays    = 7
)

// SumDailyHours totals the hours the intervals spent in status within [dayStart, dayEnd].
// Ongoing intervals run until endOfToday. With prorate set, downtime-partial hours are
// scaled by the interval's factor.
func SumDailyHours(intervals []Interval, dayStart, dayEnd time.Time, status opstatus.Status, prorate bool, endOfToday time.Time) float64 {
	var total float64
	for _, iv := range intervals {
		if iv.Status != status || iv.StartedAt == nil || iv.malformed {
			continue
		}
		start := *iv.StartedAt
		end := iv.endOr(endOfToday)
		if start.After(dayEnd) || end.Before(dayStart) {
			continue
		}

		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}

		hours := end.Sub(start).Hours()
		if hours < 0 {
			hours = 0
		}
		if hours >= fullDayThreshold {
			hours = hoursPerDay
		}
		if prorate && status == opstatus.DowntimePartial {
			hours *= iv.Factor / 100
		}
		total += hours
	}
	return total
}

// Competence returns the accounting period (YYYY-MM) a day is booked to. Days from the
// cutoff onwards belong to the period of the day a week later.
func Competence(day time.Time, cutoffDay int) string {
	if cutoffDay <= 0 {
		cutoffDay = DefaultCompetenceCutoffDay
	}
	if day.Day() < cutoffDay {
		return day.Format(monthLayout)
	}
	return day.AddDate(0, 0, competenceLookaheadDays).Format(monthLayout)
}

// partialFactor returns the factor of the first downtime-partial interval touching the day.
func partialFactor(intervals []Interval, dayStart, dayEnd time.Time) *float64 {
	for _, iv := range intervals {
		if iv.Status != opstatus.DowntimePartial || iv.StartedAt == nil || iv.malformed {
			continue
		}
		start := *iv.StartedAt
		startsInDay := !start.Before(dayStart) && !start.After(dayEnd)
		spansDayStart := !start.After(dayStart) && (iv.EndedAt == nil || !iv.EndedAt.Before(dayStart))
		if startsInDay || spansDayStart {
			if iv.Factor == 0 {
				return nil
			}
			f := iv.Factor
			return &f
		}
	}
	return nil
}
