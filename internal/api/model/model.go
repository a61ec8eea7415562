package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/llmquality/verbatim-api/internal/api/domain"
)

// Verbatim is the persisted form of one submitted text unit.
// Content and Year are immutable after creation; only Status and
// Result change, and only through store transitions.
type Verbatim struct {
	VerbatimID string    `db:"verbatim_id"`
	Content    string    `db:"content"`
	Year       int       `db:"year"`
	Status     string    `db:"status"`
	Result     []byte    `db:"result"` // raw jsonb, nil when status != SUCCEEDED
	CreatedAt  time.Time `db:"created_at"`
}

// DecodeResult unmarshals the stored result column. Returns nil
// when no result is present.
func (v *Verbatim) DecodeResult() (*domain.Result, error) {
	if len(v.Result) == 0 {
		return nil, nil
	}

	var result domain.Result
	if err := json.Unmarshal(v.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode verbatim result: %w", err)
	}

	return &result, nil
}
