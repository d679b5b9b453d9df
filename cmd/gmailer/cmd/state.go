package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gmailer-bot/internal/cli"
	"gmailer-bot/internal/config"
	"gmailer-bot/internal/state"
)

var stateJob string

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect stored job state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the state file of a job",
	Long: `Read a job's state file from the configured backend and print when it
last sent and what it sent.`,
	Args: cobra.NoArgs,
	RunE: runStateShow,
}

func init() {
	stateShowCmd.Flags().StringVar(&stateJob, "job", config.JobForward, "job whose state to show (forward, newsletter)")
	stateCmd.AddCommand(stateShowCmd)
	rootCmd.AddCommand(stateCmd)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	if stateJob != config.JobForward && stateJob != config.JobNewsletter {
		return fmt.Errorf("unknown job %q (expected %s or %s)", stateJob, config.JobForward, config.JobNewsletter)
	}

	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfiguration(config.ScopeState)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	files, err := newFileBackend(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open state backend: %w", err)
	}
	defer files.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	view, err := readStateView(ctx, cfg, stateJob, files)
	if err != nil {
		return err
	}
	return formatter.PrintState(view)
}

// readStateView loads a job's state file. A missing file is shown as not
// stored rather than as an error.
func readStateView(ctx context.Context, cfg *config.Config, job string, files state.FileClient) (cli.StateView, error) {
	view := cli.StateView{Job: job, Backend: files.Name(), Path: cfg.StatePath(job)}

	switch job {
	case config.JobForward:
		current, err := state.NewDatastore[state.RunState](files, view.Path).Current(ctx)
		if errors.Is(err, state.ErrNotFound) {
			return view, nil
		}
		if err != nil {
			return view, fmt.Errorf("failed to read state: %w", err)
		}
		view.Found = true
		view.LastSent = current.LastEmailSent.Format(time.RFC3339)
		view.Contents = current.EmailContents
	case config.JobNewsletter:
		current, err := state.NewDatastore[state.NewsletterState](files, view.Path).Current(ctx)
		if errors.Is(err, state.ErrNotFound) {
			return view, nil
		}
		if err != nil {
			return view, fmt.Errorf("failed to read state: %w", err)
		}
		view.Found = true
		view.LastSent = current.LastRanOn
		view.Contents = current.EmailContents
	}
	return view, nil
}
