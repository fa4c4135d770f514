// Package aggregate turns raw machine status intervals into daily hour buckets,
// per-status buckets labelled with their accounting competence, distinct downtime
// events and financial totals.
//
// Everything here is a pure computation over its arguments. The current time is passed
// in through Options so that results are reproducible.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"fleet-status-backend/internal/opstatus"
	"fleet-status-backend/internal/parse"
)

const (
	monthLayout = "2006-01"
	isoLayout   = "2006-01-02T15:04:05.000Z"
)

var (
	ErrNowRequired      = errors.New("aggregate: reference time is required")
	ErrInvalidFinalDate = errors.New("aggregate: invalid final date")
	ErrSpanTooLarge     = errors.New("aggregate: reporting span is too large")
)

// Options control a single aggregation run.
type Options struct {
	// FinalDate (YYYY-MM-DD) is the last day reported, inclusive. Empty means up to Now.
	FinalDate string
	// Now is the reference time for ongoing intervals and the default end boundary.
	Now time.Time
	// Location defines calendar days. Defaults to UTC.
	Location *time.Location
	// CompetenceCutoffDay defaults to DefaultCompetenceCutoffDay.
	CompetenceCutoffDay int
	// MaxDays bounds the number of days walked. Zero disables the check.
	MaxDays int
	// From, when set, moves the first day walked up to its day. Events and money
	// still use the intervals as given.
	From *time.Time
}

// DailyBucket holds the hours of one calendar day.
type DailyBucket struct {
	Date           int64   `json:"date"`
	Day            string  `json:"day"`
	Month          string  `json:"month"`
	HoursOperation float64 `json:"hoursOperation"`
	HoursDowntime  float64 `json:"hoursDowntime"`
	HoursPartial   float64 `json:"hoursPartial"`
}

// StatusBucket holds the hours of one status on one day.
type StatusBucket struct {
	Status          opstatus.Status `json:"status"`
	TotalHours      float64         `json:"totalHours"`
	TotalGrossHours float64         `json:"totalGrossHours"`
	Date            int64           `json:"date"`
	DateString      string          `json:"dateString"`
	Month           string          `json:"month"`
	Competence      string          `json:"competence"`
	Factor          *float64        `json:"factor,omitempty"`
}

// TypedEvent is a distinct downtime occurrence.
type TypedEvent struct {
	MachineID    string          `json:"idMachine"`
	Status       opstatus.Status `json:"status"`
	StartedAt    *time.Time      `json:"startedAt"`
	EndedAt      *time.Time      `json:"endedAt"`
	Factor       float64         `json:"factor"`
	Group        string          `json:"group"`
	Subgroup     string          `json:"subgroup"`
	LossValue    float64         `json:"lossValueBRL"`
	RevenueValue float64         `json:"revenueValueBRL"`
}

// Result is the output of an aggregation run.
type Result struct {
	DailyList    []DailyBucket  `json:"dailyList"`
	StatusList   []StatusBucket `json:"statusList"`
	TypesEvents  []TypedEvent   `json:"typesEvents"`
	TotalLoss    float64        `json:"totalLoss"`
	TotalRevenue float64        `json:"totalRevenue"`
}

func emptyResult() Result {
	return Result{
		DailyList:   []DailyBucket{},
		StatusList:  []StatusBucket{},
		TypesEvents: []TypedEvent{},
	}
}

// ProcessRows decodes positional rows and aggregates them.
func ProcessRows(rows [][]any, opts Options) (Result, []RowError, error) {
	intervals, rowErrs := DecodeRows(rows)
	res, err := Aggregate(intervals, opts)
	return res, rowErrs, err
}

// Aggregate walks day by day from the earliest start to the end boundary.
func Aggregate(intervals []Interval, opts Options) (Result, error) {
	if opts.Now.IsZero() {
		return Result{}, ErrNowRequired
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now.In(loc)

	dateEnd := now
	if opts.FinalDate != "" {
		end, err := parse.FinalDate(opts.FinalDate, loc)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidFinalDate, err)
		}
		dateEnd = end
	}

	minStart, ok := earliestStart(intervals)
	if !ok {
		return emptyResult(), nil
	}

	dayStart := parse.StartOfDay(minStart.In(loc))
	if opts.From != nil {
		if from := parse.StartOfDay(opts.From.In(loc)); from.After(dayStart) {
			dayStart = from
		}
	}

	// The last day walked is the last one that ends by dateEnd.
	lastDay := parse.StartOfDay(dateEnd)
	if parse.EndOfDay(lastDay).After(dateEnd) {
		lastDay = lastDay.AddDate(0, 0, -1)
	}
	if opts.MaxDays > 0 && !dayStart.AddDate(0, 0, opts.MaxDays).After(lastDay) {
		return Result{}, fmt.Errorf("%w: more than %d days between %s and %s",
			ErrSpanTooLarge, opts.MaxDays, dayStart.Format(parse.DateLayout), lastDay.Format(parse.DateLayout))
	}

	res := emptyResult()
	endOfToday := parse.EndOfDay(now)
	for dayEnd := parse.EndOfDay(dayStart); !dayEnd.After(dateEnd); {
		daily, statuses := aggregateDay(intervals, dayStart, dayEnd, endOfToday, opts.CompetenceCutoffDay)
		res.DailyList = append(res.DailyList, daily)
		res.StatusList = append(res.StatusList, statuses...)

		dayStart = dayStart.AddDate(0, 0, 1)
		dayEnd = parse.EndOfDay(dayStart)
	}

	res.TypesEvents = typedEvents(intervals)
	res.TotalLoss, res.TotalRevenue = financialTotals(intervals)
	return res, nil
}

func aggregateDay(intervals []Interval, dayStart, dayEnd, endOfToday time.Time, cutoffDay int) (DailyBucket, []StatusBucket) {
	sum := func(status opstatus.Status, prorate bool) float64 {
		return SumDailyHours(intervals, dayStart, dayEnd, status, prorate, endOfToday)
	}
	operating := sum(opstatus.Operating, false)
	downtime := sum(opstatus.Downtime, false)
	scheduled := sum(opstatus.ScheduledStoppage, false)
	dockage := sum(opstatus.Dockage, false)
	partialNet := sum(opstatus.DowntimePartial, true)
	partialGross := sum(opstatus.DowntimePartial, false)

	date := dayStart.UnixMilli()
	dateString := dayStart.UTC().Format(isoLayout)
	month := dayStart.Format(monthLayout)
	competence := Competence(dayStart, cutoffDay)

	// A day with partial downtime is operating for whatever the factor leaves over.
	hoursOperation := operating + scheduled + dockage
	operatingNet := operating
	if partialNet != 0 {
		hoursOperation = hoursPerDay - partialNet
		operatingNet = hoursPerDay - partialNet
	}

	daily := DailyBucket{
		Date:           date,
		Day:            dateString,
		Month:          month,
		HoursOperation: hoursOperation,
		HoursDowntime:  downtime + partialNet,
		HoursPartial:   partialGross,
	}

	bucket := func(status opstatus.Status, net, gross float64) StatusBucket {
		return StatusBucket{
			Status:          status,
			TotalHours:      net,
			TotalGrossHours: gross,
			Date:            date,
			DateString:      dateString,
			Month:           month,
			Competence:      competence,
		}
	}

	statuses := []StatusBucket{
		bucket(opstatus.Operating, operatingNet, operating),
		bucket(opstatus.Downtime, downtime, downtime),
	}
	if partialNet != 0 {
		b := bucket(opstatus.DowntimePartial, partialNet, partialGross)
		b.Factor = partialFactor(intervals, dayStart, dayEnd)
		statuses = append(statuses, b)
	}
	if scheduled != 0 {
		statuses = append(statuses, bucket(opstatus.ScheduledStoppage, scheduled, scheduled))
	}
	if dockage != 0 {
		statuses = append(statuses, bucket(opstatus.Dockage, dockage, dockage))
	}
	return daily, statuses
}

func earliestStart(intervals []Interval) (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, iv := range intervals {
		if iv.StartedAt == nil || iv.malformed {
			continue
		}
		if !found || iv.StartedAt.Before(earliest) {
			earliest = *iv.StartedAt
			found = true
		}
	}
	return earliest, found
}

// typedEvents keeps downtime intervals in input order, dropping one that directly
// continues the previously kept event with the same status, group and subgroup.
func typedEvents(intervals []Interval) []TypedEvent {
	events := []TypedEvent{}
	for _, iv := range intervals {
		if !iv.Status.IsDowntime() || iv.malformed {
			continue
		}
		if n := len(events); n > 0 && continues(events[n-1], iv) {
			continue
		}
		events = append(events, TypedEvent{
			MachineID:    iv.MachineID,
			Status:       iv.Status,
			StartedAt:    iv.StartedAt,
			EndedAt:      iv.EndedAt,
			Factor:       iv.Factor,
			Group:        iv.Group,
			Subgroup:     iv.Subgroup,
			LossValue:    iv.LossValue,
			RevenueValue: iv.RevenueValue,
		})
	}
	return events
}

func continues(last TypedEvent, iv Interval) bool {
	return last.Status == iv.Status &&
		last.Group == iv.Group &&
		last.Subgroup == iv.Subgroup &&
		last.EndedAt != nil && iv.StartedAt != nil &&
		last.EndedAt.Equal(*iv.StartedAt)
}

// financialTotals sums money over every interval, regardless of the reporting window.
// Non-finite values are skipped.
func financialTotals(intervals []Interval) (loss, revenue float64) {
	for _, iv := range intervals {
		if finite(iv.LossValue) {
			loss += iv.LossValue
		}
		if finite(iv.RevenueValue) {
			revenue += iv.RevenueValue
		}
	}
	return loss, revenue
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
