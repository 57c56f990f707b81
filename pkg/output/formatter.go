package output

import (
	"bytes"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/ritzau/filestatus/pkg/analysis"
)

// PrintStatusReport prints a nicely formatted file status report with colors
func PrintStatusReport(w io.Writer, workspace string, res *analysis.Result) {
	// Color definitions
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	s := res.Summary
	total := len(res.Index.Files())

	// Header
	bold.Fprintln(w, "File Status Report")
	bold.Fprintln(w, "==================")
	fmt.Fprintf(w, "Workspace: %s\n", workspace)
	fmt.Fprintf(w, "Project: %s\n", res.Metadata.ProjectKey())
	if base := res.Metadata.BaseAnalysis(); base != nil {
		fmt.Fprintf(w, "Compared with: %s (%s)\n", base.UUID, base.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "Scanned: %d files\n", total)
	fmt.Fprintln(w)

	switch {
	case res.Metadata.IsPullRequest():
		cyan.Fprintln(w, "Pull request analysis: no file is considered unchanged")
	case res.Metadata.IsFirstAnalysis():
		cyan.Fprintln(w, "First analysis: no file is considered unchanged")
	default:
		fmt.Fprintf(w, "Verified: %d files\n", s.MarkedAsUnchanged+s.NotMarkedAsUnchanged)
		green.Fprintf(w, "Unchanged: %d file(s)\n", s.MarkedAsUnchanged)
		if s.NotMarkedAsUnchanged > 0 {
			yellow.Fprintf(w, "Not marked as unchanged: %d file(s)\n", s.NotMarkedAsUnchanged)
		}
	}

	if s.TrustBroken {
		fmt.Fprintln(w)
		red.Fprintf(w, "Trust broken at %s: no file is considered unchanged\n", s.BrokenAt)
		return
	}

	if res.Recorded != nil {
		fmt.Fprintln(w)
		green.Fprintf(w, "✓ Recorded analysis %s (%d files)\n", res.Recorded.UUID, res.Recorded.FileCount)
	}
}

// RenderFileTable renders one row per file
func RenderFileTable(files []analysis.FileView) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Status", "Marked", "Unchanged", "Data Unchanged"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
	})

	unchanged := 0
	for _, f := range files {
		if f.DataUnchanged {
			unchanged++
		}
		table.Append([]string{f.Path, string(f.Status), mark(f.MarkedAsUnchanged), mark(f.Unchanged), mark(f.DataUnchanged)})
	}

	table.SetFooter([]string{fmt.Sprintf("Total Files %d", len(files)), "", "", "", fmt.Sprintf("%d", unchanged)})
	table.Render()

	return tableBuffer.String()
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
