package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/llmquality/verbatim-api/internal/api/domain"
	"github.com/llmquality/verbatim-api/internal/api/dto"
	"github.com/llmquality/verbatim-api/internal/api/storage"
)

// Store is the slice of the verbatim store the reconciler needs.
type Store interface {
	UpdateStatus(ctx context.Context, verbatimID, status string, result []byte) (storage.UpdateResult, error)
}

// Broadcaster fans a completion message out to live subscribers.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Reconciler applies worker completion messages to the store and
// hands applied ones to the subscriber registry. It runs as the
// handler of the response-queue consumer loop and must survive
// anything a worker can put on the wire: malformed bodies, unknown
// statuses, unknown ids and duplicate deliveries are all logged and
// dropped, never raised.
type Reconciler struct {
	logger *slog.Logger
	store  Store
	hub    Broadcaster
}

// NewReconciler creates a reconciler
func NewReconciler(logger *slog.Logger, store Store, hub Broadcaster) *Reconciler {
	return &Reconciler{
		logger: logger,
		store:  store,
		hub:    hub,
	}
}

// HandleMessage processes one worker completion message. The
// signature matches the broker consumer handler.
func (r *Reconciler) HandleMessage(ctx context.Context, body []byte) {
	var msg dto.JobCompletionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		r.logger.Error("Failed to parse worker response",
			slog.String("error", err.Error()),
			slog.String("body", string(body)),
		)
		return
	}

	status, err := domain.ParseStatus(msg.Status)
	if err != nil {
		r.logger.Error("Worker response carries unknown status",
			slog.String("verbatim_id", msg.ID),
			slog.String("status", msg.Status),
		)
		return
	}

	// A SUCCEEDED record always carries its result; applying one
	// without it would leave a success with a null result column
	if status == domain.StatusSucceeded && msg.Result == nil {
		r.logger.Error("Worker success response missing result",
			slog.String("verbatim_id", msg.ID),
		)
		return
	}

	result, err := encodeResult(status, msg.Result)
	if err != nil {
		r.logger.Error("Failed to encode worker result",
			slog.String("verbatim_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	res, err := r.store.UpdateStatus(ctx, msg.ID, status, result)
	if err != nil {
		r.logger.Error("Failed to apply worker response",
			slog.String("verbatim_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	switch {
	case !res.Matched:
		// Worker referenced an id the store never had, or one that
		// was deleted meanwhile. Data-integrity signal, not fatal.
		r.logger.Error("Worker response for unknown verbatim",
			slog.String("verbatim_id", msg.ID),
			slog.String("status", status),
		)
		return

	case !res.Modified:
		// Duplicate delivery re-applying identical state
		r.logger.Info("No-op update from worker response",
			slog.String("verbatim_id", msg.ID),
			slog.String("status", status),
		)
		return
	}

	r.logger.Info("Verbatim updated from worker response",
		slog.String("verbatim_id", msg.ID),
		slog.String("status", status),
	)

	// Forward the completion payload verbatim to live subscribers
	r.hub.Broadcast(body)
}

// encodeResult serializes the result for storage. Only SUCCEEDED
// completions carry one; anything else keeps the column null.
func encodeResult(status string, result *domain.Result) ([]byte, error) {
	if status != domain.StatusSucceeded || result == nil {
		return nil, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return data, nil
}
