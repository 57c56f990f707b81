package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ritzau/filestatus/pkg/analysis"
	"github.com/ritzau/filestatus/pkg/output"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Classify the files of the workspace",
		Long: `Run one analysis job and print which files are unchanged since the
previous recorded analysis. With --record the current hashes become the
previous analysis of the next job.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, a.cfg.Record)
		},
	}
	cmd.Flags().Bool("record", false, "record the current hashes after the job")
	cmd.Flags().BoolP("list", "l", false, "list every file with its status")
	return cmd
}

func newRecordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Analyze and record the current hashes",
		Long: `Run one analysis job and store the current content hashes as the
project's new previous analysis. Pull request jobs are never recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.analyze(cmd, true)
		},
	}
	cmd.Flags().BoolP("list", "l", false, "list every file with its status")
	return cmd
}

func (a *app) analyze(cmd *cobra.Command, record bool) error {
	opts := a.jobOptions("command line")
	opts.Record = record

	res, err := analysis.NewRunner(nil).Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	output.PrintStatusReport(out, a.cfg.Workspace, res)

	if a.cfg.List {
		files, err := res.Files()
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, output.RenderFileTable(files))
	}
	return nil
}
