package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fleet-status-backend/internal/aggregate"
	"fleet-status-backend/internal/opstatus"
)

func sampleResult(t *testing.T) aggregate.Result {
	t.Helper()
	d := func(day, hour int) *time.Time {
		v := time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
		return &v
	}
	intervals := []aggregate.Interval{
		{MachineID: "m-1", Status: opstatus.Operating, StartedAt: d(25, 0), EndedAt: d(26, 0)},
		{MachineID: "m-1", Status: opstatus.Downtime, StartedAt: d(26, 0), EndedAt: d(26, 12), LossValue: 1200.5, Group: "Casco"},
		{MachineID: "m-1", Status: opstatus.Operating, StartedAt: d(26, 12), EndedAt: d(27, 0)},
	}
	res, err := aggregate.Aggregate(intervals, aggregate.Options{
		FinalDate: "2024-01-26",
		Now:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return res
}

func TestWriteXLSX(t *testing.T) {
	res := sampleResult(t)
	periods := aggregate.SummarizePeriods(res.StatusList, aggregate.ByCompetence)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, Meta{Machine: "PSV Atlântico"}, res, periods))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetDaily, SheetStatus, SheetCompetence, SheetEvents}, f.GetSheetList())

	raw := excelize.Options{RawCellValue: true}
	title, err := f.GetCellValue(SheetDaily, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Relatório operacional: PSV Atlântico", title)

	day, _ := f.GetCellValue(SheetDaily, "A4")
	assert.Equal(t, "2024-01-25", day)
	op, _ := f.GetCellValue(SheetDaily, "C4", raw)
	assert.Equal(t, "24", op)
	down, _ := f.GetCellValue(SheetDaily, "D5", raw)
	assert.Equal(t, "12", down)

	status, _ := f.GetCellValue(SheetStatus, "B2")
	assert.Equal(t, "Operação", status)
	competence, _ := f.GetCellValue(SheetStatus, "G2")
	assert.Equal(t, "2024-01", competence)

	rows, err := f.GetRows(SheetCompetence)
	require.NoError(t, err)
	require.Len(t, rows, 1+len(periods.Periods)+1)
	assert.Equal(t, "Média", rows[len(rows)-1][0])

	eventStatus, _ := f.GetCellValue(SheetEvents, "A2")
	assert.Equal(t, "Downtime", eventStatus)
	group, _ := f.GetCellValue(SheetEvents, "E2")
	assert.Equal(t, "Casco", group)
	loss, _ := f.GetCellValue(SheetEvents, "G3", raw)
	assert.Equal(t, "1200.5", loss)
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf, Meta{Machine: "m-1"}, aggregate.Result{}, aggregate.PeriodReport{Key: aggregate.ByMonth})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetDaily)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "title, blank row, header")
}

func TestWritePDF(t *testing.T) {
	res := sampleResult(t)
	summary := aggregate.Summarize(res)
	periods := aggregate.SummarizePeriods(res.StatusList, aggregate.ByMonth)

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	var buf bytes.Buffer
	meta := Meta{Machine: "PSV Atlântico", Location: loc, GeneratedAt: time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, WritePDF(&buf, meta, summary, periods))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 1000)
}
