package aggregate

import (
	"errors"
	"fmt"
	"time"

	"fleet-status-backend/internal/opstatus"
	"fleet-status-backend/internal/parse"
)

// Positions of the fields in a wire row.
const (
	colMachineID = iota
	colStatus
	colStartedAt
	colEndedAt
	colFactor
	colGroup
	colSubgroup
	colLossValue
	colRevenueValue
	rowWidth
)

// minRowWidth covers machine, status and both timestamps.
const minRowWidth = colEndedAt + 1

// ErrShortRow is reported for rows that lack the mandatory leading cells.
var ErrShortRow = errors.New("row is too short")

// Interval is one observed status period of one machine.
type Interval struct {
	MachineID    string          `json:"idMachine"`
	Status       opstatus.Status `json:"status"`
	StartedAt    *time.Time      `json:"startedAt"`
	EndedAt      *time.Time      `json:"endedAt"`
	Factor       float64         `json:"factor"`
	Group        string          `json:"group"`
	Subgroup     string          `json:"subgroup"`
	LossValue    float64         `json:"lossValueBRL"`
	RevenueValue float64         `json:"revenueValueBRL"`

	// malformed intervals keep their money fields but never count hours.
	malformed bool
}

// Malformed reports whether decoding found a bad timestamp or status in the row.
func (iv Interval) Malformed() bool {
	return iv.malformed
}

// endOr returns the end of the interval, or fallback when it is still ongoing.
func (iv Interval) endOr(fallback time.Time) time.Time {
	if iv.EndedAt == nil {
		return fallback
	}
	return *iv.EndedAt
}

// RowError describes a row that could not be fully decoded.
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// DecodeRow maps a positional row
// [idMachine, status, startEpochSeconds, endEpochSeconds, factor, group, subgroup, loss, revenue]
// onto an Interval. On a bad timestamp or status the returned interval is still usable
// for the money totals and the error says what was wrong.
func DecodeRow(row []any) (Interval, error) {
	if len(row) < minRowWidth {
		return Interval{}, fmt.Errorf("%w: %d cells", ErrShortRow, len(row))
	}
	cell := func(i int) any {
		if i < len(row) {
			return row[i]
		}
		return nil
	}

	iv := Interval{
		MachineID: parse.Text(cell(colMachineID)),
		Group:     parse.Text(cell(colGroup)),
		Subgroup:  parse.Text(cell(colSubgroup)),
	}
	var errs []error

	status, err := opstatus.Parse(parse.Text(cell(colStatus)))
	if err != nil {
		errs = append(errs, err)
	}
	iv.Status = status

	if iv.StartedAt, err = parse.EpochSeconds(cell(colStartedAt)); err != nil {
		errs = append(errs, fmt.Errorf("startedAt: %w", err))
	}
	if iv.EndedAt, err = parse.EpochSeconds(cell(colEndedAt)); err != nil {
		errs = append(errs, fmt.Errorf("endedAt: %w", err))
	}
	if iv.Factor, err = parse.Number(cell(colFactor)); err != nil {
		errs = append(errs, fmt.Errorf("factor: %w", err))
	}
	// Money fields fail soft: a bad value counts as zero.
	iv.LossValue, _ = parse.Number(cell(colLossValue))
	iv.RevenueValue, _ = parse.Number(cell(colRevenueValue))

	if len(errs) > 0 {
		iv.malformed = true
		return iv, errors.Join(errs...)
	}
	return iv, nil
}

// DecodeRows decodes every row. Rows that are too short are dropped; other bad rows are
// kept as malformed intervals. Both are listed in the returned errors.
func DecodeRows(rows [][]any) ([]Interval, []RowError) {
	intervals := make([]Interval, 0, len(rows))
	var rowErrs []RowError
	for i, row := range rows {
		iv, err := DecodeRow(row)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Index: i, Err: err})
			if errors.Is(err, ErrShortRow) {
				continue
			}
		}
		intervals = append(intervals, iv)
	}
	return intervals, rowErrs
}

// EncodeRow is the inverse of DecodeRow.
func EncodeRow(iv Interval) []any {
	row := make([]any, rowWidth)
	row[colMachineID] = iv.MachineID
	row[colStatus] = iv.Status.Token()
	row[colStartedAt] = epochSeconds(iv.StartedAt)
	row[colEndedAt] = epochSeconds(iv.EndedAt)
	row[colFactor] = iv.Factor
	row[colGroup] = iv.Group
	row[colSubgroup] = iv.Subgroup
	row[colLossValue] = iv.LossValue
	row[colRevenueValue] = iv.RevenueValue
	return row
}

func epochSeconds(t *time.Time) any {
	if t == nil {
		return nil
	}
	return float64(t.UnixMilli()) / 1e3
}
