package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/observability"
	"github.com/jonathan/job-agent/internal/reconcile"
	"github.com/jonathan/job-agent/internal/schemas"
	"github.com/jonathan/job-agent/internal/session"
	"github.com/jonathan/job-agent/internal/types"
)

var replayCmd = &cobra.Command{
	Use:   "replay [application-id]",
	Short: "Print the timeline of a past run",
	Long: `Fetch an application record from the backend and print the timeline it
materializes to, the same view a resumed session shows. With --file the
record is read from a JSON file and validated against the record schema.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

var (
	replayFile      string
	replayToken     string
	replayCollapsed bool
)

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "file", "f", "", "Path to an ApplicationRecord JSON file")
	replayCmd.Flags().StringVar(&replayToken, "token", "", "Bearer token (overrides AGENT_API_TOKEN)")
	replayCmd.Flags().BoolVar(&replayCollapsed, "collapsed", false, "Hide step details and metadata")

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	printer := observability.NewPrinter(cmd.OutOrStdout())

	switch {
	case replayFile != "" && len(args) == 0:
		record, err := loadRecordFile(replayFile)
		if err != nil {
			return err
		}
		printReplay(printer, record, reconcile.Materialize(record), !replayCollapsed)
		return nil

	case replayFile == "" && len(args) == 1:
		client, err := newBackendClient(appConfig, replayToken)
		if err != nil {
			return err
		}
		ctrl := session.New(session.Dependencies{Applications: client, Resumes: client},
			session.WithLogger(slog.Default()))
		return replayApplication(cmd.Context(), ctrl, args[0], printer, !replayCollapsed)

	default:
		return fmt.Errorf("provide either an application ID or --file")
	}
}

// replayApplication resumes ctrl on id and prints what it materialized
func replayApplication(ctx context.Context, ctrl *session.Controller, id string, printer *observability.Printer, expand bool) error {
	ctrl.Bootstrap(ctx, session.Activation{ApplicationID: id})
	snap := ctrl.Snapshot()
	if snap.Record == nil {
		return fmt.Errorf("could not load application %s", id)
	}
	printReplay(printer, snap.Record, snap.Entries, expand)
	return nil
}

// loadRecordFile validates and decodes a record file
func loadRecordFile(path string) (*types.ApplicationRecord, error) {
	if err := schemas.ValidateFile(schemas.ApplicationRecord, path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file %s: %w", path, err)
	}
	var record types.ApplicationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse record JSON: %w", err)
	}
	return &record, nil
}

func printReplay(printer *observability.Printer, record *types.ApplicationRecord, entries []types.TimelineEntry, expand bool) {
	printer.PrintRecord(record)
	var expanded map[string]bool
	if expand {
		expanded = expandAll(entries)
	}
	printer.PrintTimeline(entries, expanded, "")
}
