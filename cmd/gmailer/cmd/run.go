package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"gmailer-bot/internal/config"
	"gmailer-bot/internal/jobs"
	"gmailer-bot/internal/jobs/forwarder"
	"gmailer-bot/internal/jobs/newsletter"
	"gmailer-bot/internal/mail"
	"gmailer-bot/internal/render"
	"gmailer-bot/internal/state"
)

var forwardCmd = &cobra.Command{
	Use:   "forward",
	Short: "Forward this month's matching email",
	Long: `Search the mailbox for the most recent email matching forwarder.query
and re-send it with From, To and Bcc replaced, at most once per calendar
month and only on the configured days of the month.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, config.JobForward)
	},
}

var newsletterCmd = &cobra.Command{
	Use:   "newsletter",
	Short: "Send today's templated newsletter",
	Long: `Render the subject and body templates and send them to the configured
recipients, at most once per day and only on the configured weekdays after
the configured time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(cmd, config.JobNewsletter)
	},
}

func init() {
	rootCmd.AddCommand(forwardCmd)
	rootCmd.AddCommand(newsletterCmd)
}

// runJob runs one job to completion and prints its report. Only
// configuration and startup failures return an error.
func runJob(cmd *cobra.Command, name string) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfiguration(name)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	now, err := resolveNow(cfg)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := newLogger(cfg, cmd.ErrOrStderr()).With("run_id", runID)

	logger.Info("Starting gmailer",
		"version", Version,
		"build_date", BuildDate,
		"job", name,
		"dry_run", cfg.DryRun,
		"now", now.Format(time.RFC3339))

	if configJSON, err := cfg.ToJSON(); err == nil {
		logger.Debug("Configuration details", "config", configJSON)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	files, err := newFileBackend(cfg, logger)
	if err != nil {
		logger.Error("Failed to open state backend", "error", err)
		return fmt.Errorf("failed to open state backend: %w", err)
	}
	defer files.Close()

	client := &lazyMailClient{cfg: cfg, logger: logger}
	defer client.Close()

	job, err := buildJob(cfg, name, client, files, logger)
	if err != nil {
		return err
	}

	report := job.Run(ctx, now)
	if err := client.Err(); err != nil {
		logger.Error("Failed to create email client", "error", err)
		return err
	}
	recordRun(ctx, cfg, runID, report, logger)

	return formatter.PrintReport(report)
}

// buildJob wires a job to its mail client and state file.
func buildJob(cfg *config.Config, name string, client mail.Client, files state.FileClient, logger *slog.Logger) (jobs.Job, error) {
	switch name {
	case config.JobForward:
		jobCfg, err := cfg.ForwarderJob()
		if err != nil {
			return nil, err
		}
		store := state.NewDatastore[state.RunState](files, cfg.Forwarder.StatePath)
		return forwarder.New(jobCfg, client, store, logger), nil
	case config.JobNewsletter:
		jobCfg, err := cfg.NewsletterJob()
		if err != nil {
			return nil, err
		}
		store := state.NewDatastore[state.NewsletterState](files, cfg.Newsletter.StatePath)
		return newsletter.New(jobCfg, client, store, render.Mustache{}, logger), nil
	default:
		return nil, fmt.Errorf("unknown job %q", name)
	}
}

// recordRun appends the report to the run history when one is configured.
// History failures are logged and never change the outcome.
func recordRun(ctx context.Context, cfg *config.Config, runID string, report jobs.Report, logger *slog.Logger) {
	history, err := openHistory(cfg)
	if err != nil {
		logger.Warn("Run history unavailable", "error", err)
		return
	}
	if history == nil {
		return
	}
	defer history.Close()

	record := &state.RunRecord{
		RunID:   runID,
		Job:     report.Job,
		Outcome: report.Outcome,
		Report:  report.String(),
		RanAt:   time.Now(),
	}
	if err := history.Record(ctx, record); err != nil {
		logger.Warn("Failed to record run", "error", err)
		return
	}
	logger.Debug("Run recorded", "history_id", record.ID)
}
