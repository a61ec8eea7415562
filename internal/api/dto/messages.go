package dto

import (
	"encoding/json"

	"github.com/llmquality/verbatim-api/internal/api/domain"
)

// Queue names shared with the external worker pool.
const (
	QueueWorkerRequests  = "worker_requests"
	QueueWorkerResponses = "worker_responses"
)

// JobRequestMessage is what this service publishes to the request
// queue, one per queued verbatim.
type JobRequestMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Year    int    `json:"year"`
	Status  string `json:"status"`
}

// JobCompletionMessage is what a worker publishes to the response
// queue when it finishes one verbatim. Result is absent on FAILED
// completions.
type JobCompletionMessage struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Result *domain.Result `json:"result,omitempty"`
}

// WebSocket client envelope actions.
const (
	ActionCSV   = "csv"
	ActionRerun = "rerun"
)

// ClientEnvelope is the inbound WebSocket frame. CSVFile holds the
// upload as a base64 string; Verbatims carries the raw rerun items
// so a malformed one can be echoed back untouched.
type ClientEnvelope struct {
	Action    string            `json:"action"`
	CSVFile   string            `json:"csv_file,omitempty"`
	Year      int               `json:"year,omitempty"`
	Verbatims []json.RawMessage `json:"verbatims,omitempty"`
}

// StatusEnvelope is the ad hoc in-band status/error reply on the
// WebSocket, e.g. {"status":"error","message":"..."}.
type StatusEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// RerunEnvelope reports the per-item breakdown of a rerun batch.
type RerunEnvelope struct {
	Status               string            `json:"status"`
	PublishedCount       int               `json:"published_count"`
	NonExistingCount     int               `json:"non_existing_count"`
	NonExistingVerbatims []json.RawMessage `json:"non_existing_verbatims"`
}
