// Package forwarder re-sends, once per month, the most recent email that
// matches a search query, with its sender and recipients replaced.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gmailer-bot/internal/dedup"
	"gmailer-bot/internal/jobs"
	"gmailer-bot/internal/mail"
	"gmailer-bot/internal/result"
	"gmailer-bot/internal/schedule"
	"gmailer-bot/internal/state"
)

// Name is the job name used in reports and history.
const Name = "forward"

const (
	messageSent          = "New email has been sent"
	messageSendFailed    = "Error - could not send email/s"
	messageRawFailed     = "Error - could not get raw message content for email"
	messageDryRun        = "Dry run - email would have been sent"
	messageDownloadError = "Error downloading file %s from %s"
)

// Store is the persisted RunState.
type Store interface {
	Current(ctx context.Context) (*state.RunState, error)
	Store(ctx context.Context, s state.RunState) error
	Path() string
	Backend() string
}

// Config is everything the job reads from configuration.
type Config struct {
	Query      string
	Days       schedule.DaysOfMonth
	Recipients mail.Recipients
	Normalizer dedup.Normalizer
	DryRun     bool
}

// Job implements jobs.Job.
type Job struct {
	cfg    Config
	mail   mail.Client
	store  Store
	logger *slog.Logger
}

// New creates the forward job.
func New(cfg Config, client mail.Client, store Store, logger *slog.Logger) *Job {
	if cfg.Normalizer == nil {
		cfg.Normalizer = dedup.NewHeaderSeparator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{cfg: cfg, mail: client, store: store, logger: logger.With("job", Name)}
}

func (j *Job) Name() string { return Name }

// run threads the values each step produces to the next.
type run struct {
	now       time.Time
	previous  *schedule.Previous
	candidate *mail.Candidate
	rewritten []byte
	fetchErr  error
}

// Run executes one invocation. Every path ends in a report.
func (j *Job) Run(ctx context.Context, now time.Time) jobs.Report {
	r := result.Success(&run{now: now})
	r = result.FlatMap(r, j.checkWindow)
	r = result.FlatMap(r, func(in *run) result.Result[*run] { return j.readState(ctx, in) })
	r = result.FlatMap(r, func(in *run) result.Result[*run] { return j.fetchCandidate(ctx, in) })
	r = result.FlatMap(r, j.decide)
	rep := result.FlatMap(r, func(in *run) result.Result[jobs.Report] { return j.sendAndPersist(ctx, in) })

	report := jobs.Fold(Name, rep)
	j.logger.Info("Run finished", "outcome", report.Outcome)
	return report
}

// checkWindow declines before any network call on a day outside the window.
func (j *Job) checkWindow(in *run) result.Result[*run] {
	if ok, msg := j.cfg.Days.Allows(in.now); !ok {
		return result.Failure[*run](jobs.Halted(schedule.NotScheduledToday.String(), msg, nil))
	}
	return result.Success(in)
}

func (j *Job) readState(ctx context.Context, in *run) result.Result[*run] {
	current, err := j.store.Current(ctx)
	switch {
	case errors.Is(err, state.ErrNotFound):
		j.logger.Info("No stored state, treating as first run", "path", j.store.Path())
		return result.Success(in)
	case err != nil:
		j.logger.Error("Failed to read state", "path", j.store.Path(), "error", err)
		msg := fmt.Sprintf(messageDownloadError, j.store.Path(), j.store.Backend())
		return result.Failure[*run](jobs.Halted(jobs.OutcomeStateReadFailed, msg, err))
	}
	in.previous = &schedule.Previous{Sent: current.LastEmailSent.Time, Content: current.EmailContents}
	return result.Success(in)
}

// fetchCandidate searches, fetches and rewrites. Failures are kept on the
// run and only reported if the decision proceeds.
func (j *Job) fetchCandidate(ctx context.Context, in *run) result.Result[*run] {
	candidate, err := j.mail.FindLatest(ctx, j.cfg.Query)
	if err != nil {
		j.logger.Error("Search failed", "query", j.cfg.Query, "error", err)
		in.fetchErr = err
		return result.Success(in)
	}
	if candidate == nil {
		j.logger.Info("No matching email", "query", j.cfg.Query)
		return result.Success(in)
	}
	in.candidate = candidate

	raw, err := j.mail.RawContent(ctx, candidate)
	if err != nil {
		j.logger.Error("Failed to fetch raw content", "id", candidate.ID, "error", err)
		in.fetchErr = err
		return result.Success(in)
	}

	rewritten, err := mail.Rewrite(raw, j.cfg.Recipients)
	if err != nil {
		j.logger.Error("Failed to rewrite headers", "id", candidate.ID, "error", err)
		in.fetchErr = err
		return result.Success(in)
	}
	in.rewritten = rewritten
	return result.Success(in)
}

func (j *Job) decide(in *run) result.Result[*run] {
	d := schedule.Decide(schedule.Input{
		Now:      in.now,
		Window:   j.cfg.Days,
		Period:   schedule.Month,
		Previous: in.previous,
		Candidate: schedule.Candidate{
			Content:   string(in.rewritten),
			Available: in.rewritten != nil,
		},
		Normalizer: j.cfg.Normalizer,
	})
	j.logger.Debug("Decision", "outcome", d.Outcome.String())

	if !d.Outcome.Proceed() {
		return result.Failure[*run](jobs.Halted(d.Outcome.String(), d.Message, nil))
	}
	switch {
	case in.fetchErr != nil:
		return result.Failure[*run](jobs.Halted(jobs.OutcomeRawFetchFailed, messageRawFailed, in.fetchErr))
	case in.candidate == nil:
		return result.Failure[*run](jobs.Halted(jobs.OutcomeNoMatch, "No matching results for query: '"+j.cfg.Query+"'", nil))
	}
	return result.Success(in)
}

// sendAndPersist sends, then stores. A store failure after a send is
// reported next to the send line and never rolled back.
func (j *Job) sendAndPersist(ctx context.Context, in *run) result.Result[jobs.Report] {
	if j.cfg.DryRun {
		return result.Success(jobs.Report{Outcome: jobs.OutcomeDryRun, Lines: []string{messageDryRun}})
	}

	sent, err := j.mail.Send(ctx, in.rewritten)
	if err != nil {
		j.logger.Error("Send failed", "error", err)
		return result.Failure[jobs.Report](jobs.Halted(jobs.OutcomeSendFailed, messageSendFailed, err))
	}
	j.logger.Info("Email sent", "source_id", in.candidate.ID, "sent_id", sent.ID)

	err = j.store.Store(ctx, state.RunState{
		LastEmailSent: state.NewTimestamp(in.now),
		EmailContents: string(in.rewritten),
	})
	outcome := jobs.OutcomeSent
	if err != nil {
		j.logger.Error("Failed to store state", "path", j.store.Path(), "error", err)
		outcome = jobs.OutcomeSentNotStored
	}

	return result.Success(jobs.Report{
		Outcome: outcome,
		Lines:   []string{messageSent, jobs.StoreLine(j.store.Backend(), err)},
	})
}
