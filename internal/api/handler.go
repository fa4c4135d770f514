package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"fleet-status-backend/config"
	"fleet-status-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	webpush *webpush.Options
	report  config.ReportConfig
	now     func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, webpushOptions *webpush.Options, reportCfg config.ReportConfig) *Handler {
	if reportCfg.Location == nil {
		reportCfg.Location = time.UTC
	}
	return &Handler{
		store:   s,
		webpush: webpushOptions,
		report:  reportCfg,
		now:     time.Now,
	}
}
