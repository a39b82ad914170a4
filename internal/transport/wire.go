package transport

import "github.com/bartek5186/xls2jobs/internal/jobs"

const (
	HeaderToken = "x-sync-token"
	SyncPath    = "/api/sync/jobs"
)

// Payload – body POST /api/sync/jobs
type Payload struct {
	Jobs []jobs.Row `json:"jobs"`
}

// Response – odpowiedź endpointu (200 i błędy)
type Response struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Saved   int    `json:"saved"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}
