package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmailer-bot/internal/dedup"
)

var june1 = time.Date(2018, time.June, 1, 0, 0, 0, 0, time.UTC)

func monthlyInput(now time.Time, prev *Previous, candidate string) Input {
	return Input{
		Now:        now,
		Window:     DaysOfMonth{1},
		Period:     Month,
		Previous:   prev,
		Candidate:  Candidate{Content: candidate, Available: candidate != ""},
		Normalizer: dedup.NewHeaderSeparator(),
	}
}

func TestDecide_Monthly(t *testing.T) {
	testCases := []struct {
		name     string
		input    Input
		expected Decision
	}{
		{
			name:     "last month with new content proceeds",
			input:    monthlyInput(june1, &Previous{Sent: june1.AddDate(0, -1, 0), Content: "Last month's email data"}, "New email data"),
			expected: Decision{Outcome: NoEmailSentThisPeriod},
		},
		{
			name:  "already sent this month",
			input: monthlyInput(june1, &Previous{Sent: june1, Content: "Fairly new email data"}, "New email data"),
			expected: Decision{
				Outcome: AlreadySentThisPeriod,
				Message: "Exiting, email has already been sent for June 2018",
			},
		},
		{
			name:     "sent one second in the future",
			input:    monthlyInput(june1, &Previous{Sent: june1.Add(time.Second)}, "Last month's email data"),
			expected: Decision{Outcome: InvalidFutureState, Message: messageFuture},
		},
		{
			name: "same content after the separator",
			input: monthlyInput(june1,
				&Previous{Sent: june1.AddDate(0, -1, 0), Content: "From: Bob\nTo: Jim\n" + dedup.DefaultSeparator + "\nAlready sent this one"},
				"From: Jim\nTo: Bob\n"+dedup.DefaultSeparator+"\nAlready sent this one"),
			expected: Decision{Outcome: DuplicateContent, Message: messageDuplicate},
		},
		{
			name:     "unavailable candidate skips duplicate check",
			input:    monthlyInput(june1, &Previous{Sent: june1.AddDate(0, -1, 0), Content: ""}, ""),
			expected: Decision{Outcome: NoEmailSentThisPeriod},
		},
		{
			name:     "first run proceeds",
			input:    monthlyInput(june1, nil, "New email data"),
			expected: Decision{Outcome: NoEmailSentThisPeriod},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Decide(tc.input))
		})
	}
}

func TestDecide_NotScheduledIgnoresEverythingElse(t *testing.T) {
	in := monthlyInput(june1, &Previous{Sent: june1.Add(time.Hour)}, "x")
	in.Window = DaysOfMonth{2, 11, 12, 31}

	d := Decide(in)

	assert.Equal(t, NotScheduledToday, d.Outcome)
	assert.Equal(t, "No need to run - day of month is 1, only running on day 2, 11, 12, 31 of each month", d.Message)
}

func TestDecide_FutureStateOutranksSamePeriodAndDuplicate(t *testing.T) {
	content := "To: a\n" + dedup.DefaultSeparator + "\nsame"
	d := Decide(monthlyInput(june1, &Previous{Sent: june1.Add(time.Minute), Content: content}, content))

	assert.Equal(t, InvalidFutureState, d.Outcome)
}

func TestDecide_SamePeriodOutranksDuplicate(t *testing.T) {
	content := "To: a\n" + dedup.DefaultSeparator + "\nsame"
	d := Decide(monthlyInput(june1.Add(12*time.Hour), &Previous{Sent: june1, Content: content}, content))

	assert.Equal(t, AlreadySentThisPeriod, d.Outcome)
}

func TestDecide_IsDeterministic(t *testing.T) {
	in := monthlyInput(june1, &Previous{Sent: june1.AddDate(0, -2, 0), Content: "old"}, "new")

	assert.Equal(t, Decide(in), Decide(in))
}

func TestDecide_ComparesPeriodsInNowLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 31 May 20:00 UTC is already 1 June in Tokyo.
	sent := time.Date(2018, time.May, 31, 20, 0, 0, 0, time.UTC)
	now := time.Date(2018, time.June, 1, 9, 0, 0, 0, tokyo)

	d := Decide(monthlyInput(now, &Previous{Sent: sent, Content: "a"}, "b"))

	assert.Equal(t, AlreadySentThisPeriod, d.Outcome)
}

func TestDecide_DailyPeriod(t *testing.T) {
	now := time.Date(2026, time.October, 16, 10, 30, 0, 0, time.UTC)
	in := Input{
		Now:        now,
		Window:     Weekly{Days: []time.Weekday{time.Friday}, After: TimeOfDay{Hour: 10}},
		Period:     Day,
		Previous:   &Previous{Sent: time.Date(2026, time.October, 16, 0, 0, 0, 0, time.UTC), Content: "x"},
		Candidate:  Candidate{Content: "y", Available: true},
		Normalizer: dedup.WithoutMessageID{},
	}

	d := Decide(in)
	assert.Equal(t, AlreadySentThisPeriod, d.Outcome)
	assert.Equal(t, "Exiting, email has already been sent for Friday 16 October 2026", d.Message)

	in.Previous.Sent = now.AddDate(0, 0, -7)
	assert.Equal(t, NoEmailSentThisPeriod, Decide(in).Outcome)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "duplicate_content", DuplicateContent.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
	assert.True(t, NoEmailSentThisPeriod.Proceed())
	assert.False(t, DuplicateContent.Proceed())
}
