// Package report renders operational reports as spreadsheets and PDFs.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"fleet-status-backend/internal/aggregate"
)

const (
	SheetDaily      = "Daily"
	SheetStatus     = "Status"
	SheetCompetence = "Competence"
	SheetEvents     = "Events"

	// dailyStartRow leaves room for the title above the daily table.
	dailyStartRow = 3
)

var (
	dailyHeader      = []any{"Dia", "Mês", "Horas operação", "Horas downtime", "Horas parcial"}
	statusHeader     = []any{"Dia", "Status", "Horas", "Horas brutas", "Fator", "Mês", "Competência"}
	competenceHeader = []any{"Período", "Operação (h)", "Inoperância (h)", "Operação (%)", "Inoperância (%)", "Dias"}
	eventsHeader     = []any{"Status", "Início", "Fim", "Fator", "Grupo", "Subgrupo", "Perda (BRL)", "Receita (BRL)"}
)

// Meta describes the report being rendered.
type Meta struct {
	Machine string
	// Location renders calendar days. Defaults to UTC.
	Location    *time.Location
	GeneratedAt time.Time
}

func (m Meta) location() *time.Location {
	if m.Location == nil {
		return time.UTC
	}
	return m.Location
}

// WriteXLSX writes the result as a workbook with one sheet per view.
func WriteXLSX(w io.Writer, meta Meta, res aggregate.Result, periods aggregate.PeriodReport) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetDaily)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1") // Delete default sheet

	for _, name := range []string{SheetStatus, SheetCompetence, SheetEvents} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"E6E6E6"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	hoursStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2}) // 0.00
	if err != nil {
		return fmt.Errorf("failed to create number style: %w", err)
	}

	sw := sheetWriter{f: f, header: headerStyle, number: hoursStyle}

	sw.title(SheetDaily, fmt.Sprintf("Relatório operacional: %s", meta.Machine))
	loc := meta.location()
	rows := make([][]any, 0, len(res.DailyList))
	for _, d := range res.DailyList {
		rows = append(rows, []any{dayLabel(d.Date, loc), d.Month, d.HoursOperation, d.HoursDowntime, d.HoursPartial})
	}
	sw.table(SheetDaily, dailyStartRow, dailyHeader, rows, 3, 5)

	rows = rows[:0]
	for _, b := range res.StatusList {
		var factor any
		if b.Factor != nil {
			factor = *b.Factor
		}
		rows = append(rows, []any{dayLabel(b.Date, loc), b.Status.Label(), b.TotalHours, b.TotalGrossHours, factor, b.Month, b.Competence})
	}
	sw.table(SheetStatus, 1, statusHeader, rows, 3, 4)

	rows = rows[:0]
	for _, p := range periods.Periods {
		rows = append(rows, []any{p.Period, p.Operational, p.Inoperability, p.OperationalPercent, p.InoperabilityPercent, p.Days})
	}
	rows = append(rows, []any{"Média", nil, nil, periods.Average, nil, nil})
	sw.table(SheetCompetence, 1, competenceHeader, rows, 2, 5)

	rows = rows[:0]
	for _, e := range res.TypesEvents {
		rows = append(rows, []any{e.Status.Label(), timeLabel(e.StartedAt, loc), timeLabel(e.EndedAt, loc), e.Factor, e.Group, e.Subgroup, e.LossValue, e.RevenueValue})
	}
	rows = append(rows, []any{"Total", nil, nil, nil, nil, nil, res.TotalLoss, res.TotalRevenue})
	sw.table(SheetEvents, 1, eventsHeader, rows, 7, 8)

	if sw.err != nil {
		return sw.err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error of a sequence of cell writes.
type sheetWriter struct {
	f      *excelize.File
	header int
	number int
	err    error
}

func (sw *sheetWriter) title(sheet, text string) {
	if sw.err != nil {
		return
	}
	sw.err = sw.f.SetCellValue(sheet, "A1", text)
}

// table writes a header at startRow followed by rows, formatting columns
// firstNum..lastNum (1-based) as numbers.
func (sw *sheetWriter) table(sheet string, startRow int, header []any, rows [][]any, firstNum, lastNum int) {
	if sw.err != nil {
		return
	}

	cell, _ := excelize.CoordinatesToCellName(1, startRow)
	if sw.err = sw.f.SetSheetRow(sheet, cell, &header); sw.err != nil {
		return
	}
	end, _ := excelize.CoordinatesToCellName(len(header), startRow)
	if sw.err = sw.f.SetCellStyle(sheet, cell, end, sw.header); sw.err != nil {
		return
	}

	for i, row := range rows {
		r := row
		cell, _ := excelize.CoordinatesToCellName(1, startRow+1+i)
		if sw.err = sw.f.SetSheetRow(sheet, cell, &r); sw.err != nil {
			return
		}
	}
	if len(rows) > 0 {
		from, _ := excelize.CoordinatesToCellName(firstNum, startRow+1)
		to, _ := excelize.CoordinatesToCellName(lastNum, startRow+len(rows))
		sw.err = sw.f.SetCellStyle(sheet, from, to, sw.number)
	}

	first, _ := excelize.ColumnNumberToName(1)
	last, _ := excelize.ColumnNumberToName(len(header))
	if sw.err == nil {
		sw.err = sw.f.SetColWidth(sheet, first, last, 18)
	}
}

func dayLabel(epochMillis int64, loc *time.Location) string {
	return time.UnixMilli(epochMillis).In(loc).Format("2006-01-02")
}

func timeLabel(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("2006-01-02 15:04")
}
