package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-01T10:00:00Z", time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), true},
		{"2024-03-01T10:00:00+02:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), true},
		{"2023-11-05 08:00:00", time.Date(2023, 11, 5, 8, 0, 0, 0, time.UTC), true},
		{"2023-11-05 08:00:00 UTC", time.Date(2023, 11, 5, 8, 0, 0, 0, time.UTC), true},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"Mar 1, 2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"1 March 2024", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"next tuesday", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindTimestamp(t *testing.T) {
	got, ok := FindTimestamp("Order filled.\nDate: 2023-11-05 08:00:00\nThanks")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2023, 11, 5, 8, 0, 0, 0, time.UTC), got)

	got, ok = FindTimestamp("Executed on Jan 15, 2024 by our engine")
	assert.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), got)

	_, ok = FindTimestamp("no dates here")
	assert.False(t, ok)
}
