package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/ritzau/filestatus/pkg/analysis"
	"github.com/ritzau/filestatus/pkg/config"
	"github.com/ritzau/filestatus/pkg/logging"
)

const rootLongDescription = `filestatus decides which files of a project are unchanged since the
project's previous recorded analysis, so that work derived from them can
be reused.

A file counts as unchanged only while every file visited before it in the
project tree matched its recorded content hash. The first mismatch makes
every file untrusted for the rest of the job.

Configuration is read from defaults, ` + config.FileName + `, ` + config.EnvPrefix + `*
environment variables and flags, in increasing priority.`

// app carries what the subcommands share
type app struct {
	cfg       *config.Config
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "filestatus",
		Short:         "Detect files unchanged since the previous analysis",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			a.logCloser = logging.Configure(cfg.LoggingOptions())
			logging.Debug("configuration loaded", "workspace", cfg.Workspace, "project", cfg.Project)
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)
	cmd.AddCommand(
		newAnalyzeCmd(a),
		newRecordCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	defaults := config.Defaults()
	f := cmd.PersistentFlags()

	f.StringP("workspace", "w", defaults["workspace"].(string), "workspace root to analyze")
	f.StringP("project", "p", "", "project key (default: report project or workspace directory name)")
	f.StringP("report", "r", "", "scanner report describing the tree instead of scanning the workspace")
	f.String("store", "", "analysis database (default: <workspace>/.filestatus/analysis.db)")
	f.Bool("pull-request", false, "analyze a pull request: nothing is considered unchanged")
	f.StringSliceP("exclude", "x", nil, "exclude paths matching glob (can be repeated)")
	f.Int("workers", defaults["workers"].(int), "concurrent hashing workers")
	f.String("verbosity", "", "log level: trace, debug, info, warn, error")
	f.CountP("verbose", "v", "increase log verbosity (-v debug, -vv trace)")
	f.Bool("json-logs", false, "log as JSON")
	f.String("log-file", "", "also log to this file, rotated by size")
	f.Int("log-max-size", defaults["log-max-size"].(int), "log file size in MB before rotation")
}

// jobOptions maps the configuration onto one analysis job
func (a *app) jobOptions(reason string) analysis.Options {
	return analysis.Options{
		Workspace:   a.cfg.Workspace,
		ProjectKey:  a.cfg.Project,
		ReportFile:  a.cfg.Report,
		StorePath:   a.cfg.Store,
		PullRequest: a.cfg.PullRequest,
		Record:      a.cfg.Record,
		Exclude:     a.cfg.Exclude,
		Workers:     a.cfg.Workers,
		Ignore:      a.ownFiles(),
		Reason:      reason,
	}
}

// ownFiles are the files this process writes, which may live inside the
// workspace
func (a *app) ownFiles() []string {
	var files []string
	for _, f := range []string{a.cfg.LogFile, a.cfg.Store} {
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}
