package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/ritzau/filestatus/pkg/analysis"
	"github.com/ritzau/filestatus/pkg/logging"
	"github.com/ritzau/filestatus/pkg/watcher"
	"github.com/ritzau/filestatus/pkg/web"
)

const (
	quietPeriod = 500 * time.Millisecond
	maxWait     = 5 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve file statuses over HTTP",
		Long: `Run an analysis job and serve its results over HTTP. With --watch a
fresh job runs whenever the workspace or scanner report changes; queries
keep answering from the previous job until the new one is complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().Int("port", 8080, "port for the HTTP server")
	cmd.Flags().Bool("watch", false, "re-run the analysis on workspace changes")
	cmd.Flags().Bool("record", false, "record the current hashes after every job")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := web.NewServer(a.cfg.Workspace)
	runner := analysis.NewRunner(server)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx, a.cfg.Port)
	}()

	run := func(reason string) {
		res, err := runner.Run(ctx, a.jobOptions(reason))
		if err != nil {
			// The previous result keeps serving
			if !errors.Is(err, context.Canceled) {
				logging.Error("analysis job failed", "reason", reason, "error", err)
			}
			return
		}
		server.SetResult(res, reason)
	}

	run("initial analysis")

	if a.cfg.Watch {
		if err := a.watch(ctx, run); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		return <-serverErr
	case err := <-serverErr:
		return err
	}
}

// watch re-runs jobs on debounced workspace changes in the background
func (a *app) watch(ctx context.Context, run func(reason string)) error {
	fw, err := watcher.NewFileWatcher(a.cfg.Workspace, watcher.Options{
		Exclude:    a.cfg.Exclude,
		ReportFile: a.cfg.Report,
		Ignore:     a.ownFiles(),
	})
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	debouncer := watcher.NewDebouncer(fw.Events(), quietPeriod, maxWait)
	debouncer.Start(ctx)

	go func() {
		for event := range debouncer.Output() {
			change := watcher.AnalyzeChanges(event)
			logging.Info("change detected", "reason", change.Reason, "files", len(change.ChangedFiles), "reloadReport", change.ReloadReport)
			run(change.Reason)
		}
	}()
	return nil
}
