package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekly_Allows(t *testing.T) {
	w := Weekly{
		Days:  []time.Weekday{time.Monday, time.Wednesday},
		After: TimeOfDay{Hour: 10},
	}
	monday := time.Date(2026, time.October, 12, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name    string
		now     time.Time
		allowed bool
		message string
	}{
		{"before cutoff", monday.Add(9*time.Hour + 15*time.Minute), false, "No need to run - time is 09:15, only running after 10:00"},
		{"at cutoff", monday.Add(10 * time.Hour), true, ""},
		{"late evening", monday.Add(23 * time.Hour), true, ""},
		{"wrong weekday", monday.AddDate(0, 0, 4).Add(12 * time.Hour), false, "No need to run - day of week is Friday, only running on Monday, Wednesday"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, msg := w.Allows(tc.now)
			assert.Equal(t, tc.allowed, ok)
			assert.Equal(t, tc.message, msg)
		})
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay(" 07:05 ")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, tod)
	assert.Equal(t, "07:05", tod.String())

	_, err = ParseTimeOfDay("7pm")
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	for _, s := range []string{"WEDNESDAY", "wed", " Wednesday "} {
		d, err := ParseWeekday(s)
		require.NoError(t, err, s)
		assert.Equal(t, time.Wednesday, d)
	}

	_, err := ParseWeekday("someday")
	assert.Error(t, err)
}
