package api

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fleet-status-backend/internal/aggregate"
	"fleet-status-backend/internal/model"
	"fleet-status-backend/internal/parse"
	"fleet-status-backend/internal/report"
	"fleet-status-backend/internal/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// operationalReport is the response of the report endpoints.
type operationalReport struct {
	Machine   *model.Machine         `json:"machine,omitempty"`
	Result    aggregate.Result       `json:"result"`
	Summary   aggregate.Summary      `json:"summary"`
	Periods   aggregate.PeriodReport `json:"periods"`
	RowErrors []rowError             `json:"rowErrors,omitempty"`
}

type rowError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// GetIntervals handles GET /api/machines/{machine_id}/intervals, returning positional rows.
func (h *Handler) GetIntervals(c *gin.Context) {
	machine, ok := h.lookupMachine(c)
	if !ok {
		return
	}
	from, ok := h.fromParam(c, false)
	if !ok {
		return
	}

	intervals, err := h.store.ListIntervals(c.Request.Context(), machine.ID, from)
	if err != nil {
		log.Printf("Error listing intervals for machine %s: %v", machine.ID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve intervals"})
		return
	}
	rows := make([][]any, 0, len(intervals))
	for _, iv := range intervals {
		rows = append(rows, aggregate.EncodeRow(iv))
	}
	c.JSON(http.StatusOK, gin.H{"machineId": machine.ID, "rows": rows})
}

// GetOperationalReport handles GET /api/machines/{machine_id}/operational-report.
func (h *Handler) GetOperationalReport(c *gin.Context) {
	rep, ok := h.machineReport(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rep)
}

// ExportOperationalReport handles GET /api/machines/{machine_id}/operational-report/export.
func (h *Handler) ExportOperationalReport(c *gin.Context) {
	format := c.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "pdf" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "format must be xlsx or pdf"})
		return
	}
	rep, ok := h.machineReport(c)
	if !ok {
		return
	}

	meta := report.Meta{
		Machine:     rep.Machine.DisplayName,
		Location:    h.report.Location,
		GeneratedAt: h.now(),
	}
	var buf bytes.Buffer
	var err error
	contentType := xlsxContentType
	if format == "pdf" {
		contentType = "application/pdf"
		err = report.WritePDF(&buf, meta, rep.Summary, rep.Periods)
	} else {
		err = report.WriteXLSX(&buf, meta, rep.Result, rep.Periods)
	}
	if err != nil {
		log.Printf("Error rendering %s report for machine %s: %v", format, rep.Machine.ID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report"})
		return
	}

	filename := fmt.Sprintf("relatorio-operacional-%s-%s.%s", rep.Machine.ID, meta.GeneratedAt.In(h.report.Location).Format(parse.DateLayout), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

type postReportRequest struct {
	Rows      [][]any `json:"rows" binding:"required"`
	FinalDate string  `json:"finalDate"`
	Timezone  string  `json:"timezone"`
	Period    string  `json:"period"`
}

// PostOperationalReport handles POST /api/operational-report: aggregation of caller-supplied rows.
func (h *Handler) PostOperationalReport(c *gin.Context) {
	var req postReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	loc := h.report.Location
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown timezone %q", req.Timezone)})
			return
		}
		loc = l
	}
	key, err := aggregate.ParsePeriodKey(req.Period)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, rowErrs, err := aggregate.ProcessRows(req.Rows, h.options(req.FinalDate, loc))
	if err != nil {
		h.abortAggregateError(c, err)
		return
	}

	rep := operationalReport{
		Result:  res,
		Summary: aggregate.Summarize(res),
		Periods: aggregate.SummarizePeriods(res.StatusList, key),
	}
	for _, re := range rowErrs {
		rep.RowErrors = append(rep.RowErrors, rowError{Index: re.Index, Error: re.Err.Error()})
	}
	c.JSON(http.StatusOK, rep)
}

// machineReport aggregates the stored intervals of the requested machine.
// It writes the error response itself and reports false on failure.
func (h *Handler) machineReport(c *gin.Context) (*operationalReport, bool) {
	machine, ok := h.lookupMachine(c)
	if !ok {
		return nil, false
	}
	from, ok := h.fromParam(c, true)
	if !ok {
		return nil, false
	}
	finalDate := c.Query("final_date")
	if finalDate != "" {
		if _, err := parse.FinalDate(finalDate, h.report.Location); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'final_date'. Use YYYY-MM-DD."})
			return nil, false
		}
	}
	key, err := aggregate.ParsePeriodKey(c.Query("period"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	intervals, err := h.store.ListIntervals(c.Request.Context(), machine.ID, from)
	if err != nil {
		log.Printf("Error listing intervals for machine %s: %v", machine.ID, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve intervals"})
		return nil, false
	}

	opts := h.options(finalDate, h.report.Location)
	opts.From = from
	res, err := aggregate.Aggregate(intervals, opts)
	if err != nil {
		h.abortAggregateError(c, err)
		return nil, false
	}
	return &operationalReport{
		Machine: machine,
		Result:  res,
		Summary: aggregate.Summarize(res),
		Periods: aggregate.SummarizePeriods(res.StatusList, key),
	}, true
}

func (h *Handler) options(finalDate string, loc *time.Location) aggregate.Options {
	return aggregate.Options{
		FinalDate:           finalDate,
		Now:                 h.now(),
		Location:            loc,
		CompetenceCutoffDay: h.report.CompetenceCutoffDay,
		MaxDays:             h.report.MaxSpanDays,
	}
}

func (h *Handler) abortAggregateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, aggregate.ErrInvalidFinalDate), errors.Is(err, aggregate.ErrSpanTooLarge):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log.Printf("Error aggregating report: %v", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to aggregate report"})
	}
}

func (h *Handler) lookupMachine(c *gin.Context) (*model.Machine, bool) {
	machine, err := h.store.GetMachine(c.Request.Context(), c.Param("machine_id"))
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return nil, false
	}
	if err != nil {
		log.Printf("Error retrieving machine %s: %v", c.Param("machine_id"), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve machine"})
		return nil, false
	}
	return machine, true
}

// fromParam parses ?from=YYYY-MM-DD. When absent it is nil, or the configured
// lookback before today if withDefault is set.
func (h *Handler) fromParam(c *gin.Context, withDefault bool) (*time.Time, bool) {
	raw := c.Query("from")
	if raw == "" {
		if !withDefault {
			return nil, true
		}
		from := parse.StartOfDay(h.now().In(h.report.Location)).AddDate(0, 0, -h.report.DefaultLookbackDays)
		return &from, true
	}
	from, err := parse.Date(raw, h.report.Location)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from'. Use YYYY-MM-DD."})
		return nil, false
	}
	return &from, true
}
