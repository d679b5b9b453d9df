package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Long:  `List the most recent runs recorded in history.db_path, newest first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfiguration("")
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cfg.History.DBPath == "" {
		return fmt.Errorf("configuration error: config values required for history.db_path but not found")
	}

	history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	records, err := history.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	return formatter.PrintHistory(records)
}
