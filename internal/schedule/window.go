package schedule

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Window decides whether a run is permitted at a given instant. Allows
// returns an explanatory message whenever it declines.
type Window interface {
	Allows(now time.Time) (bool, string)
}

// DaysOfMonth permits runs on the listed days of the month.
type DaysOfMonth []int

// Allows implements Window.
func (d DaysOfMonth) Allows(now time.Time) (bool, string) {
	day := now.Day()
	if slices.Contains(d, day) {
		return true, ""
	}

	days := make([]string, len(d))
	for i, v := range d {
		days[i] = strconv.Itoa(v)
	}
	return false, fmt.Sprintf("No need to run - day of month is %d, only running on day %s of each month",
		day, strings.Join(days, ", "))
}

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q (expected HH:MM): %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// Weekly permits runs on the listed weekdays at or after a time of day.
type Weekly struct {
	Days  []time.Weekday
	After TimeOfDay
}

// Allows implements Window.
func (w Weekly) Allows(now time.Time) (bool, string) {
	if !slices.Contains(w.Days, now.Weekday()) {
		names := make([]string, len(w.Days))
		for i, d := range w.Days {
			names[i] = d.String()
		}
		return false, fmt.Sprintf("No need to run - day of week is %s, only running on %s",
			now.Weekday(), strings.Join(names, ", "))
	}

	current := TimeOfDay{Hour: now.Hour(), Minute: now.Minute()}
	if current.minutes() < w.After.minutes() {
		return false, fmt.Sprintf("No need to run - time is %s, only running after %s", current, w.After)
	}
	return true, ""
}

// ParseWeekday accepts full or three-letter English day names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid day of week %q", s)
}
