package domain

import (
	"errors"
	"fmt"
)

// Verbatim status constants
const (
	StatusQueued    = "QUEUED"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

var (
	// ErrVerbatimNotFound is returned when a verbatim cannot be found in the store
	ErrVerbatimNotFound = errors.New("verbatim not found")

	// ErrInvalidStatus is returned when a status string is not a known status
	ErrInvalidStatus = errors.New("invalid verbatim status")
)

// ParseStatus validates a status string against the known set
func ParseStatus(s string) (string, error) {
	switch s {
	case StatusQueued, StatusSucceeded, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// Result holds the classification output for one verbatim: three
// category breakdowns, each mapping a sentiment label to a value
// such as "50%". The label set is positive, negative, neutral and
// "not mentioned".
type Result struct {
	Circuit         map[string]string `json:"circuit"`
	Quality         map[string]string `json:"quality"`
	Professionalism map[string]string `json:"professionalism"`
}

// NewResult returns a Result with all three breakdowns initialized
// to empty values for every sentiment label.
func NewResult() *Result {
	return &Result{
		Circuit:         emptyBreakdown(),
		Quality:         emptyBreakdown(),
		Professionalism: emptyBreakdown(),
	}
}

func emptyBreakdown() map[string]string {
	return map[string]string{
		"positive":      "",
		"negative":      "",
		"neutral":       "",
		"not mentioned": "",
	}
}
