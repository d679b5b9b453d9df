// Package jobs defines what every scheduled job returns: a Report of
// human-readable lines, reached either by a completed send or by a Halt
// travelling through the job's result chain.
package jobs

import (
	"context"
	"errors"
	"strings"
	"time"

	"gmailer-bot/internal/result"
)

// Job is one scheduled unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) Report
}

// Outcome names for reports. Decision outcomes use schedule.Outcome's
// names; these cover the orchestration steps around the decision.
const (
	OutcomeSent            = "sent"
	OutcomeSentNotStored   = "sent_state_not_stored"
	OutcomeDryRun          = "dry_run"
	OutcomeStateReadFailed = "state_read_failed"
	OutcomeNoMatch         = "no_match"
	OutcomeRawFetchFailed  = "raw_fetch_failed"
	OutcomeSendFailed      = "send_failed"
	OutcomeRenderFailed    = "render_failed"
	OutcomeUnknown         = "unknown"
)

// Report is the terminal value of every run.
type Report struct {
	Job     string   `json:"job"`
	Outcome string   `json:"outcome"`
	Lines   []string `json:"lines"`
}

// String joins the report lines with newlines.
func (r Report) String() string {
	return strings.Join(r.Lines, "\n")
}

// Sent reports whether the run transmitted an email.
func (r Report) Sent() bool {
	return r.Outcome == OutcomeSent || r.Outcome == OutcomeSentNotStored
}

// Halt stops a job early with a reportable message.
type Halt struct {
	Outcome string
	Message string
	Err     error
}

// Halted builds a Halt. err may be nil.
func Halted(outcome, message string, err error) *Halt {
	return &Halt{Outcome: outcome, Message: message, Err: err}
}

func (h *Halt) Error() string {
	if h.Err != nil {
		return h.Message + ": " + h.Err.Error()
	}
	return h.Message
}

func (h *Halt) Unwrap() error { return h.Err }

const messageUnknown = "Exiting due to unknown error"

// Fold turns the end of a job's result chain into its Report. Failures
// that are not a Halt report as unknown.
func Fold(job string, r result.Result[Report]) Report {
	return result.Fold(r,
		func(reason error) Report {
			var h *Halt
			if errors.As(reason, &h) {
				return Report{Job: job, Outcome: h.Outcome, Lines: []string{h.Message}}
			}
			return Report{Job: job, Outcome: OutcomeUnknown, Lines: []string{messageUnknown}}
		},
		func(rep Report) Report {
			rep.Job = job
			return rep
		},
	)
}

// StoreLine is the persist status line of a successful send.
func StoreLine(backend string, err error) string {
	if err != nil {
		return "Error - could not store state in " + backend
	}
	return "Current state has been stored in " + backend
}
