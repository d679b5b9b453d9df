package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RunState is the forward job's record of its last successful send.
type RunState struct {
	LastEmailSent Timestamp `json:"lastEmailSent"`
	EmailContents string    `json:"emailContents"`
}

// NewsletterState is the newsletter job's record of its last successful
// send. LastRanOn is a calendar date, YYYY-MM-DD.
type NewsletterState struct {
	LastRanOn     string `json:"lastRanOn"`
	EmailContents string `json:"emailContents"`
}

// DateLayout is the layout of NewsletterState.LastRanOn.
const DateLayout = "2006-01-02"

// LastRanIn returns LastRanOn as midnight in loc.
func (s NewsletterState) LastRanIn(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s.LastRanOn, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid lastRanOn %q: %w", s.LastRanOn, err)
	}
	return t, nil
}

// Timestamp is a point in time that always encodes as RFC 3339 with offset
// and decodes the legacy zoned forms as well.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp { return Timestamp{Time: t} }

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(ts.Format(time.RFC3339Nano))
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	ts.Time = t
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

// ParseTimestamp accepts RFC 3339, the minute-precision form
// 2018-06-01T00:00Z and either of those followed by a bracketed zone id,
// e.g. 2018-06-01T00:00+01:00[Europe/London]. A known zone id sets the
// location of the result.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var zone string
	if i := strings.IndexByte(s, '['); i >= 0 && strings.HasSuffix(s, "]") {
		zone = s[i+1 : len(s)-1]
		s = s[:i]
	}

	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if zone != "" {
			if loc, err := time.LoadLocation(zone); err == nil {
				t = t.In(loc)
			}
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
