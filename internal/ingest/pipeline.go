package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/llmquality/verbatim-api/internal/api/domain"
	"github.com/llmquality/verbatim-api/internal/api/dto"
	"github.com/llmquality/verbatim-api/internal/api/model"
	"github.com/llmquality/verbatim-api/internal/api/storage"
)

// Store is the slice of the verbatim store the pipeline needs.
type Store interface {
	CreateVerbatims(ctx context.Context, drafts []storage.ContentDraft) ([]model.Verbatim, error)
	FindByID(ctx context.Context, verbatimID string) (*model.Verbatim, error)
	UpdateStatus(ctx context.Context, verbatimID, status string, result []byte) (storage.UpdateResult, error)
}

// Publisher sends serialized job messages to a broker queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Pipeline turns raw batch input into persisted records and
// published job requests.
type Pipeline struct {
	logger       *slog.Logger
	store        Store
	publisher    Publisher
	requestQueue string
}

// NewPipeline creates an ingestion pipeline publishing to the given
// request queue.
func NewPipeline(logger *slog.Logger, store Store, publisher Publisher, requestQueue string) *Pipeline {
	return &Pipeline{
		logger:       logger,
		store:        store,
		publisher:    publisher,
		requestQueue: requestQueue,
	}
}

// SubmitNew persists one record per non-blank line and publishes a
// job request for each. Records are returned even when publishing
// fails part-way: the store write already happened, and the caller
// needs the records for immediate display. Publish errors are
// joined and returned alongside.
func (p *Pipeline) SubmitNew(ctx context.Context, lines []string, year int) ([]model.Verbatim, error) {
	drafts := make([]storage.ContentDraft, 0, len(lines))
	for _, line := range lines {
		content := strings.TrimSpace(line)
		if content == "" {
			continue
		}
		drafts = append(drafts, storage.ContentDraft{Content: content, Year: year})
	}

	verbatims, err := p.store.CreateVerbatims(ctx, drafts)
	if err != nil {
		return nil, fmt.Errorf("failed to create verbatims: %w", err)
	}

	p.logger.Info("Publishing verbatims to workers queue",
		slog.Int("count", len(verbatims)),
		slog.Int("year", year),
	)

	var publishErrs []error
	for _, v := range verbatims {
		if err := p.publishRequest(ctx, v); err != nil {
			publishErrs = append(publishErrs, err)
		}
	}

	// Known gap: a record whose publish failed stays QUEUED with no
	// request on the wire. Surfaced to the caller, not repaired.
	return verbatims, errors.Join(publishErrs...)
}

// RerunItem is one entry of a rerun batch. Raw keeps the original
// payload so skipped items can be returned for the caller to
// inspect and retry.
type RerunItem struct {
	ID  string
	Raw json.RawMessage
}

// RerunReport breaks a rerun batch down: Requeued holds the records
// reset in the store, Published counts the requests that actually
// reached the broker, Skipped collects items with an invalid or
// unknown id.
type RerunReport struct {
	Published int
	Requeued  []model.Verbatim
	Skipped   []RerunItem
}

// SubmitRerun re-queues existing records and publishes a request for
// each. Items that fail to parse or reference an unknown id are
// collected, never raised: one bad item must not abort the batch.
func (p *Pipeline) SubmitRerun(ctx context.Context, items []RerunItem) (RerunReport, error) {
	report := RerunReport{
		Requeued: []model.Verbatim{},
		Skipped:  []RerunItem{},
	}

	var publishErrs []error

	for _, item := range items {
		if _, err := uuid.Parse(item.ID); err != nil {
			p.logger.Error("Invalid verbatim id in rerun batch",
				slog.String("verbatim_id", item.ID),
				slog.String("error", err.Error()),
			)
			report.Skipped = append(report.Skipped, item)
			continue
		}

		verbatim, err := p.store.FindByID(ctx, item.ID)
		if err != nil {
			return report, fmt.Errorf("failed to resolve rerun item: %w", err)
		}
		if verbatim == nil {
			p.logger.Warn("Rerun verbatim not found",
				slog.String("verbatim_id", item.ID),
			)
			report.Skipped = append(report.Skipped, item)
			continue
		}

		// Back to QUEUED, prior result discarded
		res, err := p.store.UpdateStatus(ctx, verbatim.VerbatimID, domain.StatusQueued, nil)
		if err != nil {
			return report, fmt.Errorf("failed to re-queue verbatim %s: %w", verbatim.VerbatimID, err)
		}

		switch {
		case res.Modified:
			p.logger.Info("Verbatim re-queued",
				slog.String("verbatim_id", verbatim.VerbatimID),
			)
		case res.Matched:
			p.logger.Info("Verbatim already queued, nothing to update",
				slog.String("verbatim_id", verbatim.VerbatimID),
			)
		default:
			// Deleted between FindByID and the update
			p.logger.Warn("Rerun verbatim vanished before update",
				slog.String("verbatim_id", verbatim.VerbatimID),
			)
			report.Skipped = append(report.Skipped, item)
			continue
		}

		verbatim.Status = domain.StatusQueued
		verbatim.Result = nil

		if err := p.publishRequest(ctx, *verbatim); err != nil {
			publishErrs = append(publishErrs, err)
		} else {
			report.Published++
		}

		report.Requeued = append(report.Requeued, *verbatim)
	}

	return report, errors.Join(publishErrs...)
}

func (p *Pipeline) publishRequest(ctx context.Context, v model.Verbatim) error {
	msg := dto.JobRequestMessage{
		ID:      v.VerbatimID,
		Content: v.Content,
		Year:    v.Year,
		Status:  v.Status,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job request: %w", err)
	}

	if err := p.publisher.Publish(ctx, p.requestQueue, body); err != nil {
		p.logger.Error("Failed to publish job request",
			slog.String("verbatim_id", v.VerbatimID),
			slog.String("queue", p.requestQueue),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to publish job request for %s: %w", v.VerbatimID, err)
	}

	return nil
}
