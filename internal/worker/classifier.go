package worker

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/llmquality/verbatim-api/internal/api/domain"
	"github.com/llmquality/verbatim-api/internal/api/dto"
)

// Classifier produces a completion message for one job request.
type Classifier interface {
	Classify(ctx context.Context, msg dto.JobRequestMessage) dto.JobCompletionMessage
}

// StubClassifier fabricates deterministic sentiment breakdowns from
// a hash of the content. Useful for exercising the full pipeline
// without a language model behind it: the same content always
// yields the same result, and empty content fails.
type StubClassifier struct{}

// NewStubClassifier creates a stub classifier
func NewStubClassifier() *StubClassifier {
	return &StubClassifier{}
}

// Classify implements Classifier
func (c *StubClassifier) Classify(_ context.Context, msg dto.JobRequestMessage) dto.JobCompletionMessage {
	if msg.Content == "" {
		return dto.JobCompletionMessage{
			ID:     msg.ID,
			Status: domain.StatusFailed,
		}
	}

	result := domain.NewResult()
	fillBreakdown(result.Circuit, msg.Content, 0)
	fillBreakdown(result.Quality, msg.Content, 1)
	fillBreakdown(result.Professionalism, msg.Content, 2)

	return dto.JobCompletionMessage{
		ID:     msg.ID,
		Status: domain.StatusSucceeded,
		Result: result,
	}
}

// fillBreakdown spreads 100% over the sentiment labels, seeded by
// the content hash so reruns of identical content agree.
func fillBreakdown(breakdown map[string]string, content string, salt uint32) {
	h := fnv.New32a()
	h.Write([]byte(content))
	seed := h.Sum32() + salt*7919

	positive := seed % 60
	negative := (seed / 60) % (100 - positive)
	neutral := (seed / 3600) % (100 - positive - negative + 1)
	rest := 100 - positive - negative - neutral

	breakdown["positive"] = fmt.Sprintf("%d%%", positive)
	breakdown["negative"] = fmt.Sprintf("%d%%", negative)
	breakdown["neutral"] = fmt.Sprintf("%d%%", neutral)
	breakdown["not mentioned"] = fmt.Sprintf("%d%%", rest)
}
