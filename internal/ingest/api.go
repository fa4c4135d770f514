package ingest

import "fleet-status-backend/internal/store"

// ApiPage is the paginated part of an upstream response.
type ApiPage struct {
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Total    int             `json:"total"`
	Items    []store.ApiItem `json:"items"`
}

// ApiResponse is the envelope of every upstream response; Code 0 means success.
type ApiResponse struct {
	Code    int     `json:"code"`
	Message string  `json:"message,omitempty"`
	Data    ApiPage `json:"data"`
}
