package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNow(t *testing.T) {
	now := Now()

	assert.WithinDuration(t, time.Now().UTC(), now, 50*time.Millisecond)
	assert.Equal(t, time.UTC, now.Location())
}

func TestFormatISO8601(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{
			name:     "UTC time",
			input:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
			expected: "2026-03-14T09:30:00Z",
		},
		{
			name:     "non-UTC time is converted to UTC",
			input:    time.Date(2026, 3, 14, 4, 30, 0, 0, time.FixedZone("EST", -5*60*60)),
			expected: "2026-03-14T09:30:00Z",
		},
		{
			name:     "sub-second precision is dropped",
			input:    time.Date(2026, 3, 14, 9, 30, 0, 123000000, time.UTC),
			expected: "2026-03-14T09:30:00Z",
		},
		{
			name:     "zero time",
			input:    time.Time{},
			expected: "0001-01-01T00:00:00Z",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatISO8601(tc.input))
		})
	}
}
