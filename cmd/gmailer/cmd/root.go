// Copyright 2026 The gmailer-bot Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gmailer-bot/internal/cli"
	"gmailer-bot/internal/config"
)

const (
	// Version information
	Version   = "1.0.0"
	BuildDate = "development"
)

var (
	configFile string
	dryRun     bool
	nowFlag    string
	format     string
	noColor    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gmailer",
	Short: "Scheduled Gmail forwarding and newsletter bot",
	Long: `gmailer v1.0.0

DESCRIPTION:
    Runs one scheduled email job and exits. Intended to be invoked by cron
    or a scheduled container several times a day; each job sends at most
    once per period and remembers what it sent in a state file.

    forward     re-sends the latest email matching a search query, once per
                month, on the configured days of the month
    newsletter  sends a templated email, once per day, on the configured
                weekdays after the configured time

    Only one invocation per job should run at a time. The state file is
    not locked.

CONFIGURATION:
    Configuration is read from gmailer.{yaml,json,toml} in ., ./config or
    $HOME/.gmailer, from a .env file, and from the environment. Every key
    maps to a GMAILER_ variable, for example forwarder.query is
    GMAILER_FORWARDER_QUERY. The KOTLIN_GMAILER_ and NEWSLETTER_GMAILER_
    names of earlier deployments are still read.

    Mail:
        GMAILER_MAIL_PROVIDER             - gmail or imap (default: gmail)
        GMAILER_MAIL_GMAIL_CLIENT_ID      - OAuth2 client ID
        GMAILER_MAIL_GMAIL_CLIENT_SECRET  - OAuth2 client secret or client_secret.json contents
        GMAILER_MAIL_GMAIL_REFRESH_TOKEN  - OAuth2 refresh token
        GMAILER_MAIL_GMAIL_ACCESS_TOKEN   - OAuth2 access token
        GMAILER_MAIL_IMAP_HOST            - IMAP host (imap provider)
        GMAILER_MAIL_IMAP_SMTP_HOST       - SMTP submission host (imap provider)

    State:
        GMAILER_STATE_BACKEND             - dropbox or sqlite (default: dropbox)
        GMAILER_DROPBOX_ACCESS_TOKEN      - Dropbox API token
        GMAILER_STATE_SQLITE_PATH         - SQLite database (default: ./gmailer-state.db)
        GMAILER_HISTORY_DB_PATH           - record every run in this SQLite database

    Forward job:
        GMAILER_FORWARDER_QUERY           - Gmail search query
        GMAILER_FORWARDER_RUN_ON_DAYS     - days of the month, e.g. 1,2,3
        GMAILER_FORWARDER_FROM_ADDRESS / GMAILER_FORWARDER_FROM_NAME
        GMAILER_FORWARDER_TO_ADDRESS / GMAILER_FORWARDER_TO_NAME
        GMAILER_FORWARDER_BCC_ADDRESS

    Newsletter job:
        GMAILER_NEWSLETTER_RUN_ON_DAYS    - weekdays, e.g. Monday,Friday
        GMAILER_NEWSLETTER_RUN_AFTER_TIME - HH:MM
        GMAILER_NEWSLETTER_TO_ADDRESSES   - comma separated recipients
        GMAILER_NEWSLETTER_SUBJECT / GMAILER_NEWSLETTER_BODY - mustache templates

EXAMPLES:
    gmailer forward
    gmailer newsletter --config=gmailer.yaml --dry-run
    gmailer forward --now=2026-10-01T09:00:00Z --format=json
    gmailer state show --job forward
    gmailer history --limit 5`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. A returned error means configuration or
// startup failed; every job outcome is reported and exits cleanly.
func Execute() error {
	return fang.Execute(context.Background(), rootCmd)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (gmailer.yaml/json/toml or a .env file)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "decide and report without sending or storing state")
	rootCmd.PersistentFlags().StringVar(&nowFlag, "now", "", "evaluate the schedule at this RFC 3339 time instead of the clock")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", cli.FormatText, "Output format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "Disable color output")
}

// loadConfiguration loads configuration for scope from files, the
// environment and flags.
func loadConfiguration(scope string) (*config.Config, error) {
	v := viper.New()

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configFile, err)
		}
		if config.IsEnvFile(configFile) {
			if err := config.LoadEnvFile(configFile); err != nil {
				return nil, err
			}
		} else {
			v.SetConfigFile(configFile)
		}
	} else if err := config.LoadEnvFile(".env"); err != nil {
		return nil, err
	}

	if dryRun {
		v.Set("dry_run", true)
	}

	return config.Load(v, scope)
}

// newLogger builds the slog logger described by the log section. Logs go
// to w so that stdout carries only the report.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// resolveNow returns the instant the schedule is evaluated at, in the
// configured location.
func resolveNow(cfg *config.Config) (time.Time, error) {
	now := time.Now()
	if nowFlag != "" {
		parsed, err := time.Parse(time.RFC3339, nowFlag)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --now value %q: %w", nowFlag, err)
		}
		now = parsed
	}
	if cfg.Location == nil {
		return now.Local(), nil
	}
	return now.In(cfg.Location), nil
}

func newFormatter(cmd *cobra.Command) (*cli.OutputFormatter, error) {
	return cli.NewOutputFormatter(format, noColor, cmd.OutOrStdout())
}
