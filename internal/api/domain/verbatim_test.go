package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "queued", input: "QUEUED", want: StatusQueued},
		{name: "succeeded", input: "SUCCEEDED", want: StatusSucceeded},
		{name: "failed", input: "FAILED", want: StatusFailed},
		{name: "lowercase rejected", input: "queued", wantErr: true},
		{name: "unknown rejected", input: "RUNNING", wantErr: true},
		{name: "empty rejected", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewResult(t *testing.T) {
	result := NewResult()

	labels := []string{"positive", "negative", "neutral", "not mentioned"}
	for _, breakdown := range []map[string]string{result.Circuit, result.Quality, result.Professionalism} {
		require.Len(t, breakdown, len(labels))
		for _, label := range labels {
			value, ok := breakdown[label]
			assert.True(t, ok, "missing label %q", label)
			assert.Empty(t, value)
		}
	}
}
