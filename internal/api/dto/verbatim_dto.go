package dto

import (
	"time"

	"github.com/llmquality/verbatim-api/internal/api/domain"
	"github.com/llmquality/verbatim-api/internal/api/model"
)

// VerbatimDTO is the outward shape of one verbatim, shared by the
// REST responses and the WebSocket echoes.
type VerbatimDTO struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Year      int            `json:"year"`
	Status    string         `json:"status"`
	Result    *domain.Result `json:"result,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
}

// FromModel converts a stored verbatim to its outward shape. An
// undecodable result column is surfaced, not hidden.
func FromModel(v model.Verbatim) (VerbatimDTO, error) {
	result, err := v.DecodeResult()
	if err != nil {
		return VerbatimDTO{}, err
	}

	return VerbatimDTO{
		ID:        v.VerbatimID,
		Content:   v.Content,
		Year:      v.Year,
		Status:    v.Status,
		Result:    result,
		CreatedAt: v.CreatedAt.Format(time.RFC3339),
	}, nil
}

// ListVerbatimsRequest carries the REST list query parameters.
type ListVerbatimsRequest struct {
	Year      int    `form:"year"`
	Status    string `form:"status"`
	CreatedAt string `form:"created_at"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// DeleteVerbatimsRequest carries the bulk-delete body.
type DeleteVerbatimsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// DeleteVerbatimsResponse reports how many records were removed.
type DeleteVerbatimsResponse struct {
	DeletedCount int64 `json:"deleted_count"`
}

// CountResponse reports collection totals broken down by status.
type CountResponse struct {
	Total          int64 `json:"total"`
	TotalQueued    int64 `json:"total_queued"`
	TotalSucceeded int64 `json:"total_succeeded"`
	TotalFailed    int64 `json:"total_failed"`
}
