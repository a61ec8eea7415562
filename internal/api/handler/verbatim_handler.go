package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/llmquality/verbatim-api/internal/api/domain"
	"github.com/llmquality/verbatim-api/internal/api/dto"
	"github.com/llmquality/verbatim-api/internal/api/storage"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// ListVerbatims handles GET /api/v1/verbatims
// Lists verbatims with optional filtering and pagination
func (h *VerbatimHandler) ListVerbatims(c *gin.Context) {
	var req dto.ListVerbatimsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Status != "" {
		if _, err := domain.ParseStatus(req.Status); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "status must be one of QUEUED, SUCCEEDED, FAILED",
			})
			return
		}
	}

	if req.CreatedAt != "" {
		if _, err := time.Parse("2006-01-02", req.CreatedAt); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "created_at must be a date in YYYY-MM-DD form",
			})
			return
		}
	}

	if req.Page <= 0 {
		req.Page = 1
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}

	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	filter := storage.VerbatimFilter{
		Year:      req.Year,
		Status:    req.Status,
		CreatedAt: req.CreatedAt,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}

	verbatims, err := h.storage.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list verbatims", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list verbatims",
		})
		return
	}

	response := make([]dto.VerbatimDTO, 0, len(verbatims))
	for _, v := range verbatims {
		item, err := dto.FromModel(v)
		if err != nil {
			h.logger.Error("Failed to decode verbatim result",
				slog.String("verbatim_id", v.VerbatimID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list verbatims",
			})
			return
		}
		response = append(response, item)
	}

	c.JSON(http.StatusOK, response)
}

// CountVerbatims handles GET /api/v1/verbatims/count
// Returns collection totals broken down by status
func (h *VerbatimHandler) CountVerbatims(c *gin.Context) {
	counts, err := h.storage.Count(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count verbatims", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count verbatims",
		})
		return
	}

	c.JSON(http.StatusOK, dto.CountResponse{
		Total:          counts.Total,
		TotalQueued:    counts.Queued,
		TotalSucceeded: counts.Succeeded,
		TotalFailed:    counts.Failed,
	})
}

// DeleteVerbatims handles DELETE /api/v1/verbatims
// Removes verbatims in bulk; ids not present are silently ignored
func (h *VerbatimHandler) DeleteVerbatims(c *gin.Context) {
	var req dto.DeleteVerbatimsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	// Whole request rejected on the first bad id; deletion is not
	// a per-item batch the way rerun is
	for _, id := range req.IDs {
		if _, err := uuid.Parse(id); err != nil {
			h.logger.Error("Invalid verbatim id in delete request",
				slog.String("verbatim_id", id),
			)
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "ids must be valid UUIDs",
			})
			return
		}
	}

	deleted, err := h.storage.Delete(c.Request.Context(), req.IDs)
	if err != nil {
		h.logger.Error("Failed to delete verbatims", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete verbatims",
		})
		return
	}

	h.logger.Info("Verbatims deleted",
		slog.Int("requested", len(req.IDs)),
		slog.Int64("deleted", deleted),
	)

	c.JSON(http.StatusOK, dto.DeleteVerbatimsResponse{
		DeletedCount: deleted,
	})
}
