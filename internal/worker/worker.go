package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/llmquality/verbatim-api/internal/api/dto"
)

// Publisher sends completion messages back to the response queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Publisher     Publisher
	Classifier    Classifier
	ResponseQueue string
	Concurrency   int
}

// Worker is a stand-in classification worker for development and
// integration testing: it consumes job requests, classifies each
// verbatim and publishes a completion message. The production
// worker pool is a separate deployment speaking the same queues.
type Worker struct {
	logger        *slog.Logger
	publisher     Publisher
	classifier    Classifier
	responseQueue string
	concurrency   int

	jobsChan chan dto.JobRequestMessage
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = NewStubClassifier()
	}

	return &Worker{
		logger:        cfg.Logger,
		publisher:     cfg.Publisher,
		classifier:    classifier,
		responseQueue: cfg.ResponseQueue,
		concurrency:   concurrency,
		jobsChan:      make(chan dto.JobRequestMessage, concurrency),
	}
}

// Start spawns the worker pool. Workers drain jobsChan until ctx is
// canceled; Wait blocks until they have all returned.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// Wait blocks until every worker goroutine has stopped
func (w *Worker) Wait() {
	w.wg.Wait()
}

// HandleRequest parses one job request and dispatches it to the
// pool. Malformed messages are logged and dropped. The signature
// matches the broker consumer handler.
func (w *Worker) HandleRequest(ctx context.Context, body []byte) {
	var msg dto.JobRequestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error("Failed to parse job request",
			slog.String("error", err.Error()),
			slog.String("body", string(body)),
		)
		return
	}

	if _, err := uuid.Parse(msg.ID); err != nil {
		w.logger.Error("Job request carries invalid id",
			slog.String("id", msg.ID),
		)
		return
	}

	select {
	case w.jobsChan <- msg:
		w.logger.Debug("Job dispatched to worker pool",
			slog.String("verbatim_id", msg.ID),
		)
	case <-ctx.Done():
	}
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("worker-%d", workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg := <-w.jobsChan:
			if err := w.processJob(ctx, msg); err != nil {
				w.logger.Error("Job processing failed",
					slog.String("worker_name", workerName),
					slog.String("verbatim_id", msg.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// processJob classifies one verbatim and publishes the completion
func (w *Worker) processJob(ctx context.Context, msg dto.JobRequestMessage) error {
	completion := w.classifier.Classify(ctx, msg)

	body, err := json.Marshal(completion)
	if err != nil {
		return fmt.Errorf("failed to marshal completion: %w", err)
	}

	if err := w.publisher.Publish(ctx, w.responseQueue, body); err != nil {
		return fmt.Errorf("failed to publish completion: %w", err)
	}

	w.logger.Info("Job completed",
		slog.String("verbatim_id", msg.ID),
		slog.String("status", completion.Status),
	)

	return nil
}
