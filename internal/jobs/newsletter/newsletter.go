// Package newsletter sends a templated email at most once per day, on
// configured weekdays after a configured time.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gmailer-bot/internal/dedup"
	"gmailer-bot/internal/jobs"
	"gmailer-bot/internal/mail"
	"gmailer-bot/internal/render"
	"gmailer-bot/internal/result"
	"gmailer-bot/internal/schedule"
	"gmailer-bot/internal/state"
)

// DefaultName is used when no job name is configured.
const DefaultName = "newsletter"

const (
	messageSendFailed    = "Error - could not send email/s"
	messageRenderFailed  = "Error - could not render email templates"
	messageDryRun        = "Dry run - email would have been sent"
	messageDownloadError = "Error downloading file %s from %s"
	defaultSuccess       = "New email has been sent"
)

// Store is the persisted NewsletterState.
type Store interface {
	Current(ctx context.Context) (*state.NewsletterState, error)
	Store(ctx context.Context, s state.NewsletterState) error
	Path() string
	Backend() string
}

// Templates are mustache sources rendered on every run.
type Templates struct {
	Subject string
	Body    string
	// Success is the first report line after a send.
	Success string
}

// Config is everything the job reads from configuration.
type Config struct {
	Name       string
	Window     schedule.Weekly
	Recipients mail.Recipients
	Templates  Templates
	DryRun     bool
}

// Job implements jobs.Job.
type Job struct {
	cfg      Config
	mail     mail.Client
	store    Store
	renderer render.Renderer
	logger   *slog.Logger
}

// New creates the newsletter job.
func New(cfg Config, client mail.Client, store Store, renderer render.Renderer, logger *slog.Logger) *Job {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Templates.Success == "" {
		cfg.Templates.Success = defaultSuccess
	}
	if renderer == nil {
		renderer = render.Mustache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &Job{
		cfg:      cfg,
		mail:     client,
		store:    store,
		renderer: renderer,
		logger:   logger.With("job", cfg.Name),
	}
	if !j.ChangesDaily() {
		j.logger.Warn("Subject and body render the same on every day; runs after the first send will report duplicate content",
			"subject", cfg.Templates.Subject)
	}
	return j
}

// ChangesDaily reports whether the subject or body renders differently on
// consecutive days. Templates that fail to render count as changing; Run
// reports the render error.
func (j *Job) ChangesDaily() bool {
	day := time.Date(2000, time.January, 3, 12, 0, 0, 0, time.UTC)
	templates := map[string]string{
		"subject": j.cfg.Templates.Subject,
		"body":    j.cfg.Templates.Body,
	}
	a, err := render.Set(j.renderer, templates, j.Bindings(day))
	if err != nil {
		return true
	}
	b, err := render.Set(j.renderer, templates, j.Bindings(day.AddDate(0, 0, 1)))
	if err != nil {
		return true
	}
	return a["subject"] != b["subject"] || a["body"] != b["body"]
}

func (j *Job) Name() string { return j.cfg.Name }

type run struct {
	now      time.Time
	previous *schedule.Previous
	rendered map[string]string
	composed []byte
}

// Run executes one invocation. Every path ends in a report.
func (j *Job) Run(ctx context.Context, now time.Time) jobs.Report {
	r := result.Success(&run{now: now})
	r = result.FlatMap(r, j.checkWindow)
	r = result.FlatMap(r, func(in *run) result.Result[*run] { return j.readState(ctx, in) })
	r = result.FlatMap(r, j.compose)
	r = result.FlatMap(r, j.decide)
	rep := result.FlatMap(r, func(in *run) result.Result[jobs.Report] { return j.sendAndPersist(ctx, in) })

	report := jobs.Fold(j.cfg.Name, rep)
	j.logger.Info("Run finished", "outcome", report.Outcome)
	return report
}

func (j *Job) checkWindow(in *run) result.Result[*run] {
	if ok, msg := j.cfg.Window.Allows(in.now); !ok {
		return result.Failure[*run](jobs.Halted(schedule.NotScheduledToday.String(), msg, nil))
	}
	return result.Success(in)
}

func (j *Job) readState(ctx context.Context, in *run) result.Result[*run] {
	current, err := j.store.Current(ctx)
	if errors.Is(err, state.ErrNotFound) {
		j.logger.Info("No stored state, treating as first run", "path", j.store.Path())
		return result.Success(in)
	}
	if err == nil {
		var lastRan time.Time
		lastRan, err = current.LastRanIn(in.now.Location())
		if err == nil {
			in.previous = &schedule.Previous{Sent: lastRan, Content: current.EmailContents}
			return result.Success(in)
		}
	}
	j.logger.Error("Failed to read state", "path", j.store.Path(), "error", err)
	msg := fmt.Sprintf(messageDownloadError, j.store.Path(), j.store.Backend())
	return result.Failure[*run](jobs.Halted(jobs.OutcomeStateReadFailed, msg, err))
}

// Bindings are the values every template may reference.
func (j *Job) Bindings(now time.Time) map[string]any {
	var to []string
	for _, a := range j.cfg.Recipients.To {
		to = append(to, a.Address)
	}
	return map[string]any{
		"job":        j.cfg.Name,
		"date":       now.Format(state.DateLayout),
		"weekday":    now.Weekday().String(),
		"recipients": strings.Join(to, ", "),
	}
}

func (j *Job) compose(in *run) result.Result[*run] {
	rendered, err := render.Set(j.renderer, map[string]string{
		"subject": j.cfg.Templates.Subject,
		"body":    j.cfg.Templates.Body,
		"success": j.cfg.Templates.Success,
	}, j.Bindings(in.now))
	if err != nil {
		j.logger.Error("Failed to render templates", "error", err)
		return result.Failure[*run](jobs.Halted(jobs.OutcomeRenderFailed, messageRenderFailed, err))
	}
	in.rendered = rendered

	composed, err := mail.Compose(j.cfg.Recipients, rendered["subject"], rendered["body"])
	if err != nil {
		j.logger.Error("Failed to compose email", "error", err)
		return result.Failure[*run](jobs.Halted(jobs.OutcomeRenderFailed, messageRenderFailed, err))
	}
	in.composed = composed
	return result.Success(in)
}

func (j *Job) decide(in *run) result.Result[*run] {
	d := schedule.Decide(schedule.Input{
		Now:        in.now,
		Window:     j.cfg.Window,
		Period:     schedule.Day,
		Previous:   in.previous,
		Candidate:  schedule.Candidate{Content: string(in.composed), Available: true},
		Normalizer: dedup.WithoutMessageID{},
	})
	j.logger.Debug("Decision", "outcome", d.Outcome.String())

	if !d.Outcome.Proceed() {
		return result.Failure[*run](jobs.Halted(d.Outcome.String(), d.Message, nil))
	}
	return result.Success(in)
}

func (j *Job) sendAndPersist(ctx context.Context, in *run) result.Result[jobs.Report] {
	if j.cfg.DryRun {
		return result.Success(jobs.Report{Outcome: jobs.OutcomeDryRun, Lines: []string{messageDryRun}})
	}

	sent, err := j.mail.Send(ctx, in.composed)
	if err != nil {
		j.logger.Error("Send failed", "error", err)
		return result.Failure[jobs.Report](jobs.Halted(jobs.OutcomeSendFailed, messageSendFailed, err))
	}
	j.logger.Info("Email sent", "sent_id", sent.ID)

	err = j.store.Store(ctx, state.NewsletterState{
		LastRanOn:     in.now.Format(state.DateLayout),
		EmailContents: string(in.composed),
	})
	outcome := jobs.OutcomeSent
	if err != nil {
		j.logger.Error("Failed to store state", "path", j.store.Path(), "error", err)
		outcome = jobs.OutcomeSentNotStored
	}

	return result.Success(jobs.Report{
		Outcome: outcome,
		Lines:   []string{in.rendered["success"], jobs.StoreLine(j.store.Backend(), err)},
	})
}
