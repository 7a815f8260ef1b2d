package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-agent/internal/db"
	"github.com/jonathan/job-agent/internal/handoff"
	"github.com/jonathan/job-agent/internal/launcher"
	"github.com/jonathan/job-agent/internal/observability"
	"github.com/jonathan/job-agent/internal/reconcile"
	"github.com/jonathan/job-agent/internal/session"
	"github.com/jonathan/job-agent/internal/types"
)

// errRunFailed is returned when the watched run ends in an error entry
var errRunFailed = errors.New("run failed")

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start a run and follow its timeline",
	Long: `Start an application run on the automation backend and print each
timeline entry as it arrives. Without --resume-id the most recently updated
résumé is used. With --deferred the job is taken from the hand-off slot of
--owner in the database instead of the flags.`,
	RunE: runWatch,
}

var (
	watchTitle       string
	watchDescription string
	watchJobURL      string
	watchCompany     string
	watchLocation    string
	watchResumeID    string
	watchAuto        bool
	watchDeferred    bool
	watchOwner       string
	watchToken       string
)

func init() {
	watchCmd.Flags().StringVar(&watchTitle, "title", "", "Job title")
	watchCmd.Flags().StringVar(&watchDescription, "description", "", "Job description (required without --job-url)")
	watchCmd.Flags().StringVar(&watchJobURL, "job-url", "", "URL of the job posting")
	watchCmd.Flags().StringVar(&watchCompany, "company", "", "Company name")
	watchCmd.Flags().StringVar(&watchLocation, "location", "", "Job location")
	watchCmd.Flags().StringVar(&watchResumeID, "resume-id", "", "Résumé to apply with (default: most recent)")
	watchCmd.Flags().BoolVar(&watchAuto, "auto", false, "Let the agent submit without confirmation")
	watchCmd.Flags().BoolVar(&watchDeferred, "deferred", false, "Start the pending hand-off job instead")
	watchCmd.Flags().StringVar(&watchOwner, "owner", "cli", "Hand-off owner key used with --deferred")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "Bearer token (overrides AGENT_API_TOKEN)")

	rootCmd.AddCommand(watchCmd)
}

// watchOptions are the flag values of one watch invocation
type watchOptions struct {
	Job      types.JobDetails
	ResumeID string
	AutoMode bool
	Deferred bool
	Owner    string
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg := appConfig
	client, err := newBackendClient(cfg, watchToken)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := session.Dependencies{Applications: client, Resumes: client}
	if watchDeferred {
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("--deferred requires DATABASE_URL")
		}
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		deps.PendingJobs = handoff.Slot{Store: database, Key: watchOwner}
	}

	ctrl := session.New(deps, session.WithLogger(slog.Default()))
	printer := observability.NewPrinter(cmd.OutOrStdout())

	opts := watchOptions{
		Job: types.JobDetails{
			Title:       watchTitle,
			Description: watchDescription,
			URL:         watchJobURL,
			Company:     watchCompany,
			Location:    watchLocation,
		},
		ResumeID: watchResumeID,
		AutoMode: watchAuto,
		Deferred: watchDeferred,
		Owner:    watchOwner,
	}
	if err := startWatch(ctx, ctrl, opts); err != nil {
		if snap := ctrl.Snapshot(); len(snap.Entries) > 0 {
			printer.PrintTimeline(snap.Entries, nil, "")
		}
		return err
	}
	return followRun(ctx, ctrl, printer)
}

// startWatch bootstraps the controller and starts the run
func startWatch(ctx context.Context, ctrl *session.Controller, opts watchOptions) error {
	if opts.Deferred {
		if ctrl.Bootstrap(ctx, session.Activation{Deferred: true}) != session.ModeDeferred {
			return fmt.Errorf("no usable pending job for owner %q", opts.Owner)
		}
		return nil
	}

	// Fresh bootstrap resolves the default résumé
	ctrl.Bootstrap(ctx, session.Activation{})
	resume := &types.Resume{ID: opts.ResumeID}
	if opts.ResumeID == "" {
		resume = ctrl.Snapshot().DefaultResume
		if resume == nil {
			return fmt.Errorf("no résumé available, pass --resume-id")
		}
	}

	return ctrl.StartRun(ctx, launcher.Request{
		Job:      opts.Job,
		Resume:   resume,
		AutoMode: opts.AutoMode,
	})
}

// followRun prints entries as they settle and the full timeline once the
// run concludes. Interrupting abandons the run locally; the backend keeps it.
func followRun(ctx context.Context, ctrl *session.Controller, printer *observability.Printer) error {
	printed := make(map[string]bool)
	for {
		changed := ctrl.Changed()
		snap := ctrl.Snapshot()

		for _, e := range snap.Entries {
			if e.ID == snap.Placeholder || printed[e.ID] {
				continue
			}
			printed[e.ID] = true
			printer.PrintEntry(e)
		}

		switch {
		case snap.State == reconcile.StateFinished:
			printer.PrintTimeline(snap.Entries, expandAll(snap.Entries), "")
			return nil
		case snap.State == reconcile.StateFailed:
			printer.PrintTimeline(snap.Entries, expandAll(snap.Entries), "")
			return errRunFailed
		}

		select {
		case <-changed:
		case <-ctx.Done():
			ctrl.Abandon()
			return ctx.Err()
		}
	}
}

func expandAll(entries []types.TimelineEntry) map[string]bool {
	expanded := make(map[string]bool, len(entries))
	for _, e := range entries {
		expanded[e.ID] = true
	}
	return expanded
}
