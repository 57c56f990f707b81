package analysis

import "github.com/ritzau/filestatus/pkg/store"

// MetadataHolder describes the analysis a job is running. It is built once
// per job and read-only afterwards.
type MetadataHolder struct {
	projectKey  string
	pullRequest bool
	base        *store.Analysis
}

// NewMetadataHolder creates the metadata for one job. base is the
// project's last recorded analysis, or nil when there is none.
func NewMetadataHolder(projectKey string, pullRequest bool, base *store.Analysis) *MetadataHolder {
	return &MetadataHolder{
		projectKey:  projectKey,
		pullRequest: pullRequest,
		base:        base,
	}
}

func (m *MetadataHolder) ProjectKey() string { return m.projectKey }

// IsPullRequest reports whether the job analyzes a pull request
func (m *MetadataHolder) IsPullRequest() bool { return m.pullRequest }

// IsFirstAnalysis reports whether the project has no recorded analysis
func (m *MetadataHolder) IsFirstAnalysis() bool { return m.base == nil }

// BaseAnalysis returns the analysis the job compares against, or nil
func (m *MetadataHolder) BaseAnalysis() *store.Analysis { return m.base }
