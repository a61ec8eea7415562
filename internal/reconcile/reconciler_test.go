package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmquality/verbatim-api/internal/api/domain"
	"github.com/llmquality/verbatim-api/internal/api/dto"
	"github.com/llmquality/verbatim-api/internal/api/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type updateCall struct {
	verbatimID string
	status     string
	result     []byte
}

// fakeStore scripts UpdateStatus outcomes keyed by verbatim id
type fakeStore struct {
	calls     []updateCall
	outcomes  map[string]storage.UpdateResult
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{outcomes: make(map[string]storage.UpdateResult)}
}

func (s *fakeStore) UpdateStatus(_ context.Context, verbatimID, status string, result []byte) (storage.UpdateResult, error) {
	s.calls = append(s.calls, updateCall{verbatimID: verbatimID, status: status, result: result})
	if s.updateErr != nil {
		return storage.UpdateResult{}, s.updateErr
	}
	return s.outcomes[verbatimID], nil
}

type fakeHub struct {
	broadcasts [][]byte
}

func (h *fakeHub) Broadcast(msg []byte) {
	h.broadcasts = append(h.broadcasts, msg)
}

func completionBody(t *testing.T, id, status string, result *domain.Result) []byte {
	t.Helper()
	body, err := json.Marshal(dto.JobCompletionMessage{ID: id, Status: status, Result: result})
	require.NoError(t, err)
	return body
}

func TestReconciler_HandleMessage_Success(t *testing.T) {
	id := uuid.New().String()
	store := newFakeStore()
	store.outcomes[id] = storage.UpdateResult{Matched: true, Modified: true}
	hub := &fakeHub{}
	reconciler := NewReconciler(testLogger(), store, hub)

	result := domain.NewResult()
	result.Circuit["positive"] = "80%"
	body := completionBody(t, id, domain.StatusSucceeded, result)

	reconciler.HandleMessage(context.Background(), body)

	require.Len(t, store.calls, 1)
	assert.Equal(t, id, store.calls[0].verbatimID)
	assert.Equal(t, domain.StatusSucceeded, store.calls[0].status)

	var stored domain.Result
	require.NoError(t, json.Unmarshal(store.calls[0].result, &stored))
	assert.Equal(t, "80%", stored.Circuit["positive"])

	// Applied update is forwarded byte-for-byte
	require.Len(t, hub.broadcasts, 1)
	assert.Equal(t, body, hub.broadcasts[0])
}

func TestReconciler_HandleMessage_FailedWithoutResult(t *testing.T) {
	id := uuid.New().String()
	store := newFakeStore()
	store.outcomes[id] = storage.UpdateResult{Matched: true, Modified: true}
	hub := &fakeHub{}
	reconciler := NewReconciler(testLogger(), store, hub)

	body := completionBody(t, id, domain.StatusFailed, nil)
	reconciler.HandleMessage(context.Background(), body)

	require.Len(t, store.calls, 1)
	assert.Equal(t, domain.StatusFailed, store.calls[0].status)
	assert.Nil(t, store.calls[0].result)
	assert.Len(t, hub.broadcasts, 1)
}

func TestReconciler_HandleMessage_ResultIgnoredUnlessSucceeded(t *testing.T) {
	id := uuid.New().String()
	store := newFakeStore()
	store.outcomes[id] = storage.UpdateResult{Matched: true, Modified: true}
	reconciler := NewReconciler(testLogger(), store, &fakeHub{})

	// A FAILED completion carrying a result keeps the column null
	body := completionBody(t, id, domain.StatusFailed, domain.NewResult())
	reconciler.HandleMessage(context.Background(), body)

	require.Len(t, store.calls, 1)
	assert.Nil(t, store.calls[0].result)
}

func TestReconciler_HandleMessage_DuplicateDelivery(t *testing.T) {
	id := uuid.New().String()
	store := newFakeStore()
	store.outcomes[id] = storage.UpdateResult{Matched: true, Modified: false}
	hub := &fakeHub{}
	reconciler := NewReconciler(testLogger(), store, hub)

	body := completionBody(t, id, domain.StatusSucceeded, domain.NewResult())
	reconciler.HandleMessage(context.Background(), body)

	// Update attempted, but a no-op never reaches subscribers
	require.Len(t, store.calls, 1)
	assert.Empty(t, hub.broadcasts)
}

func TestReconciler_HandleMessage_UnknownVerbatim(t *testing.T) {
	id := uuid.New().String()
	store := newFakeStore()
	hub := &fakeHub{}
	reconciler := NewReconciler(testLogger(), store, hub)

	body := completionBody(t, id, domain.StatusSucceeded, domain.NewResult())
	reconciler.HandleMessage(context.Background(), body)

	require.Len(t, store.calls, 1)
	assert.Empty(t, hub.broadcasts)
}

func TestReconciler_HandleMessage_Dropped(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{
			name: "malformed json",
			body: []byte(`{"id":`),
		},
		{
			name: "unknown status",
			body: []byte(`{"id":"` + uuid.New().String() + `","status":"RUNNING"}`),
		},
		{
			name: "succeeded without result",
			body: []byte(`{"id":"` + uuid.New().String() + `","status":"SUCCEEDED"}`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			hub := &fakeHub{}
			reconciler := NewReconciler(testLogger(), store, hub)

			reconciler.HandleMessage(context.Background(), tt.body)

			// Dropped before the store is touched
			assert.Empty(t, store.calls)
			assert.Empty(t, hub.broadcasts)
		})
	}
}

func TestReconciler_HandleMessage_StoreError(t *testing.T) {
	store := newFakeStore()
	store.updateErr = errors.New("connection reset")
	hub := &fakeHub{}
	reconciler := NewReconciler(testLogger(), store, hub)

	body := completionBody(t, uuid.New().String(), domain.StatusSucceeded, domain.NewResult())
	reconciler.HandleMessage(context.Background(), body)

	require.Len(t, store.calls, 1)
	assert.Empty(t, hub.broadcasts)
}
