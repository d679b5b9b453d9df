// Package schedule holds the decision engine that turns the clock, the
// persisted record of the last send and the freshly fetched candidate into
// exactly one outcome.
//
// Decide is pure: it never performs I/O and never mutates its input.
package schedule

import (
	"fmt"
	"time"

	"gmailer-bot/internal/dedup"
)

// Outcome is the closed set of decision results.
type Outcome int

const (
	Unknown Outcome = iota
	NotScheduledToday
	InvalidFutureState
	AlreadySentThisPeriod
	DuplicateContent
	NoEmailSentThisPeriod
)

var outcomeNames = map[Outcome]string{
	Unknown:               "unknown",
	NotScheduledToday:     "not_scheduled_today",
	InvalidFutureState:    "invalid_future_state",
	AlreadySentThisPeriod: "already_sent_this_period",
	DuplicateContent:      "duplicate_content",
	NoEmailSentThisPeriod: "no_email_sent_this_period",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Proceed reports whether the outcome calls for a send.
func (o Outcome) Proceed() bool {
	return o == NoEmailSentThisPeriod
}

// Period is the granularity at which "already sent" is evaluated.
type Period int

const (
	Month Period = iota
	Day
)

// key truncates t to the period, in t's own location.
func (p Period) key(t time.Time) time.Time {
	y, m, d := t.Date()
	if p == Day {
		return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	}
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// Label names the period containing t, e.g. "June 2018" or
// "Friday 16 October 2026".
func (p Period) Label(t time.Time) string {
	if p == Day {
		return t.Format("Monday 2 January 2006")
	}
	return fmt.Sprintf("%s %d", t.Month(), t.Year())
}

// Previous is what the state store remembers about the last successful send.
type Previous struct {
	Sent    time.Time
	Content string
}

// Candidate is the content that would be sent this run. Available is false
// when nothing matched or the content could not be fetched.
type Candidate struct {
	Content   string
	Available bool
}

// Input gathers everything Decide looks at.
type Input struct {
	Now        time.Time
	Window     Window
	Period     Period
	Previous   *Previous // nil before the first successful send
	Candidate  Candidate
	Normalizer dedup.Normalizer
}

// Decision is the outcome plus the message reported for it. Message is
// empty when the outcome proceeds to a send.
type Decision struct {
	Outcome Outcome
	Message string
}

const (
	messageFuture    = "Exiting due to invalid state, previous email appears to have been sent in the future"
	messageDuplicate = "Exiting as this exact email has already been sent"
	messageUnknown   = "Exiting due to unknown error"
)

// Decide evaluates, in order: run window, future-dated state, same period,
// duplicate content, earlier period. The first match wins.
func Decide(in Input) Decision {
	if in.Window != nil {
		if ok, msg := in.Window.Allows(in.Now); !ok {
			return Decision{Outcome: NotScheduledToday, Message: msg}
		}
	}

	if in.Previous == nil {
		return Decision{Outcome: NoEmailSentThisPeriod}
	}

	last := in.Previous.Sent.In(in.Now.Location())
	current := in.Period.key(in.Now)
	lastPeriod := in.Period.key(last)

	normalizer := in.Normalizer
	if normalizer == nil {
		normalizer = dedup.NewHeaderSeparator()
	}

	switch {
	case last.After(in.Now):
		return Decision{Outcome: InvalidFutureState, Message: messageFuture}
	case lastPeriod.Equal(current):
		return Decision{
			Outcome: AlreadySentThisPeriod,
			Message: "Exiting, email has already been sent for " + in.Period.Label(in.Now),
		}
	case in.Candidate.Available && dedup.Same(normalizer, in.Candidate.Content, in.Previous.Content):
		return Decision{Outcome: DuplicateContent, Message: messageDuplicate}
	case lastPeriod.Before(current):
		return Decision{Outcome: NoEmailSentThisPeriod}
	default:
		return Decision{Outcome: Unknown, Message: messageUnknown}
	}
}
