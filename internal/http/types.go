package http

import (
	"github.com/fyrsmithlabs/devaudit/internal/analysis"
	"github.com/fyrsmithlabs/devaudit/internal/report"
)

// HeaderOwner carries the id of the auditor on every /api/v1 request.
const HeaderOwner = "X-Owner-ID"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	ActiveJobs int    `json:"active_jobs"`
}

// AuthRequest is the request body for POST /api/v1/auth.
type AuthRequest struct {
	Password string `json:"password"`
}

// CreateRequest is the request body for POST /api/v1/deviations.
type CreateRequest = report.UserInput

// RecordSummary is one entry of GET /api/v1/deviations.
type RecordSummary struct {
	ID          int64         `json:"id"`
	Status      report.Status `json:"status"`
	ProblemText string        `json:"problem_text"`
	CreatedAt   string        `json:"created_at"`
}

// ListResponse is the response body for GET /api/v1/deviations.
type ListResponse struct {
	Deviations []RecordSummary `json:"deviations"`
}

// ClassificationResponse is the response body for
// GET /api/v1/deviations/:id/classification.
type ClassificationResponse struct {
	RecordID        int64                     `json:"record_id"`
	Classifications []analysis.Classification `json:"classifications"`
}

// ChooseRequest is the request body for PUT .../sections/:key/chosen.
type ChooseRequest struct {
	Index *int `json:"index"`
}

// CustomRequest is the request body for POST .../sections/:key/custom.
type CustomRequest struct {
	Text string `json:"text"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	// Hint tells the auditor how to recover, if there is a known way.
	Hint string `json:"hint,omitempty"`
	// Stage and Preview describe a rejected generator answer.
	Stage   string `json:"stage,omitempty"`
	Preview string `json:"preview,omitempty"`
}
