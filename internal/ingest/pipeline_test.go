package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmquality/verbatim-api/internal/api/domain"
	"github.com/llmquality/verbatim-api/internal/api/dto"
	"github.com/llmquality/verbatim-api/internal/api/model"
	"github.com/llmquality/verbatim-api/internal/api/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory Store for pipeline tests
type fakeStore struct {
	verbatims map[string]model.Verbatim
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{verbatims: make(map[string]model.Verbatim)}
}

func (s *fakeStore) CreateVerbatims(_ context.Context, drafts []storage.ContentDraft) ([]model.Verbatim, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}

	created := make([]model.Verbatim, 0, len(drafts))
	for _, draft := range drafts {
		v := model.Verbatim{
			VerbatimID: uuid.New().String(),
			Content:    draft.Content,
			Year:       draft.Year,
			Status:     domain.StatusQueued,
			CreatedAt:  time.Now().UTC(),
		}
		s.verbatims[v.VerbatimID] = v
		created = append(created, v)
	}
	return created, nil
}

func (s *fakeStore) FindByID(_ context.Context, verbatimID string) (*model.Verbatim, error) {
	v, ok := s.verbatims[verbatimID]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, verbatimID, status string, result []byte) (storage.UpdateResult, error) {
	v, ok := s.verbatims[verbatimID]
	if !ok {
		return storage.UpdateResult{}, nil
	}
	if v.Status == status && string(v.Result) == string(result) {
		return storage.UpdateResult{Matched: true}, nil
	}
	v.Status = status
	v.Result = result
	s.verbatims[verbatimID] = v
	return storage.UpdateResult{Matched: true, Modified: true}, nil
}

// fakePublisher records published messages
type fakePublisher struct {
	published  []published
	publishErr error
}

type published struct {
	queue string
	body  []byte
}

func (p *fakePublisher) Publish(_ context.Context, queue string, body []byte) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.published = append(p.published, published{queue: queue, body: body})
	return nil
}

func TestPipeline_SubmitNew(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	pipeline := NewPipeline(testLogger(), store, publisher, dto.QueueWorkerRequests)

	lines := []string{"Great service", "", "  ", "Too slow", "\t"}
	verbatims, err := pipeline.SubmitNew(context.Background(), lines, 2024)
	require.NoError(t, err)

	// Blank lines stripped, one record and one publish per line kept
	require.Len(t, verbatims, 2)
	require.Len(t, publisher.published, 2)

	assert.Equal(t, "Great service", verbatims[0].Content)
	assert.Equal(t, "Too slow", verbatims[1].Content)

	for i, v := range verbatims {
		assert.Equal(t, domain.StatusQueued, v.Status)
		assert.Nil(t, v.Result)
		assert.Equal(t, 2024, v.Year)

		// Record is resolvable right after create
		found, err := store.FindByID(context.Background(), v.VerbatimID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, v.Content, found.Content)
		assert.Equal(t, v.Year, found.Year)

		var msg dto.JobRequestMessage
		require.NoError(t, json.Unmarshal(publisher.published[i].body, &msg))
		assert.Equal(t, dto.QueueWorkerRequests, publisher.published[i].queue)
		assert.Equal(t, v.VerbatimID, msg.ID)
		assert.Equal(t, v.Content, msg.Content)
		assert.Equal(t, 2024, msg.Year)
		assert.Equal(t, domain.StatusQueued, msg.Status)
	}
}

func TestPipeline_SubmitNew_CreateFails(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.New("connection refused")
	publisher := &fakePublisher{}
	pipeline := NewPipeline(testLogger(), store, publisher, dto.QueueWorkerRequests)

	verbatims, err := pipeline.SubmitNew(context.Background(), []string{"line"}, 2024)
	require.Error(t, err)
	assert.Nil(t, verbatims)
	assert.Empty(t, publisher.published)
}

func TestPipeline_SubmitNew_PublishFailureStillReturnsRecords(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{publishErr: errors.New("broker down")}
	pipeline := NewPipeline(testLogger(), store, publisher, dto.QueueWorkerRequests)

	verbatims, err := pipeline.SubmitNew(context.Background(), []string{"a", "b"}, 2024)

	// Store write happened; the publish failure is surfaced alongside
	require.Error(t, err)
	require.Len(t, verbatims, 2)
	assert.Len(t, store.verbatims, 2)
}

func TestPipeline_SubmitRerun(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	pipeline := NewPipeline(testLogger(), store, publisher, dto.QueueWorkerRequests)

	created, err := pipeline.SubmitNew(context.Background(), []string{"Great service"}, 2024)
	require.NoError(t, err)
	existing := created[0]

	// Simulate a prior completion so the rerun has something to clear
	_, err = store.UpdateStatus(context.Background(), existing.VerbatimID, domain.StatusSucceeded, []byte(`{"circuit":{}}`))
	require.NoError(t, err)

	publisher.published = nil

	bogusID := uuid.New().String()
	items := []RerunItem{
		{ID: existing.VerbatimID, Raw: json.RawMessage(`{"id":"` + existing.VerbatimID + `"}`)},
		{ID: bogusID, Raw: json.RawMessage(`{"id":"` + bogusID + `"}`)},
		{ID: "not-a-uuid", Raw: json.RawMessage(`{"id":"not-a-uuid"}`)},
	}

	report, err := pipeline.SubmitRerun(context.Background(), items)
	require.NoError(t, err)

	// Every item classified exactly once
	assert.Equal(t, 1, report.Published)
	assert.Len(t, report.Skipped, 2)
	assert.Equal(t, len(items), report.Published+len(report.Skipped))

	// The existing record is back to QUEUED with its result cleared
	found, err := store.FindByID(context.Background(), existing.VerbatimID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, found.Status)
	assert.Nil(t, found.Result)

	// Exactly one request republished
	require.Len(t, publisher.published, 1)
	var msg dto.JobRequestMessage
	require.NoError(t, json.Unmarshal(publisher.published[0].body, &msg))
	assert.Equal(t, existing.VerbatimID, msg.ID)
	assert.Equal(t, domain.StatusQueued, msg.Status)

	// Skipped items carry their original payloads for the caller
	assert.JSONEq(t, string(items[1].Raw), string(report.Skipped[0].Raw))
	assert.JSONEq(t, string(items[2].Raw), string(report.Skipped[1].Raw))
}

func TestPipeline_SubmitRerun_PublishFailureNotCounted(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	pipeline := NewPipeline(testLogger(), store, publisher, dto.QueueWorkerRequests)

	created, err := pipeline.SubmitNew(context.Background(), []string{"Great service"}, 2024)
	require.NoError(t, err)

	publisher.publishErr = errors.New("broker down")

	report, err := pipeline.SubmitRerun(context.Background(), []RerunItem{
		{ID: created[0].VerbatimID, Raw: json.RawMessage(`{"id":"` + created[0].VerbatimID + `"}`)},
	})

	// The record was re-queued in the store, but no request reached
	// the broker and the count must say so
	require.Error(t, err)
	assert.Zero(t, report.Published)
	require.Len(t, report.Requeued, 1)
	assert.Empty(t, report.Skipped)
}

func TestPipeline_SubmitRerun_EmptyBatch(t *testing.T) {
	pipeline := NewPipeline(testLogger(), newFakeStore(), &fakePublisher{}, dto.QueueWorkerRequests)

	report, err := pipeline.SubmitRerun(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Published)
	assert.Empty(t, report.Skipped)
	assert.Empty(t, report.Requeued)
}
