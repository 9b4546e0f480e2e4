package http

import "github.com/fyrsmithlabs/ragvisor/internal/rag"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Chunks int    `json:"chunks"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	Answer    string          `json:"answer"`
	Retrieved []rag.Retrieved `json:"retrieved"`
	FromCache bool            `json:"from_cache"`
	State     rag.State       `json:"state"`
}

// IngestRequest is the request body for POST /api/v1/ingest.
// Exactly one of URL and Folder must be set.
type IngestRequest struct {
	URL       string `json:"url,omitempty"`
	Folder    string `json:"folder,omitempty"`
	Overwrite bool   `json:"overwrite"`
}

// IngestResponse is the response body for both ingest endpoints.
type IngestResponse struct {
	Message string `json:"message"`
	*rag.IngestReport
}

// MessageResponse is a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}
