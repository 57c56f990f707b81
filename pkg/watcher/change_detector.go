package watcher

import "fmt"

// ChangeAnalysis describes what changed and how the next analysis job must run
type ChangeAnalysis struct {
	ReloadReport bool
	ChangedFiles []string
	Reason       string
}

// AnalyzeChanges determines what a debounced change event means for the next job
func AnalyzeChanges(event ChangeEvent) *ChangeAnalysis {
	analysis := &ChangeAnalysis{
		ChangedFiles: event.Paths,
	}

	switch event.Type {
	case ChangeTypeReport:
		// A new report describes a new tree
		analysis.ReloadReport = true
		analysis.Reason = "scanner report changed"

	case ChangeTypeSource:
		if len(event.Paths) == 1 {
			analysis.Reason = fmt.Sprintf("%s changed", event.Paths[0])
		} else {
			analysis.Reason = fmt.Sprintf("%d files changed", len(event.Paths))
		}
	}

	return analysis
}
