// Package analysis runs file status analysis jobs.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ritzau/filestatus/pkg/component"
	"github.com/ritzau/filestatus/pkg/filestatus"
	"github.com/ritzau/filestatus/pkg/finder"
	"github.com/ritzau/filestatus/pkg/logging"
	"github.com/ritzau/filestatus/pkg/model"
	"github.com/ritzau/filestatus/pkg/report"
	"github.com/ritzau/filestatus/pkg/source"
	"github.com/ritzau/filestatus/pkg/store"
)

// ErrProjectMismatch is returned when a scanner report belongs to another project
var ErrProjectMismatch = errors.New("report project does not match")

// StatusPublisher receives progress updates while a job runs
type StatusPublisher interface {
	PublishStatus(phase, message string, step, total int)
}

const totalPhases = 5

// Options configures one analysis job
type Options struct {
	Workspace  string
	ProjectKey string

	// ReportFile is a scanner report describing the tree. When empty the
	// workspace is scanned instead.
	ReportFile string

	// StorePath overrides the database location. Defaults to
	// <workspace>/.filestatus/analysis.db.
	StorePath string

	PullRequest bool
	Record      bool
	Exclude     []string
	Workers     int

	// Ignore holds files the process writes inside the workspace, such as
	// its log file. The database is always ignored.
	Ignore []string

	Reason string // e.g. "initial analysis", "3 files changed"
}

// Result is a finished job. Statuses is initialized and safe for
// concurrent queries.
type Result struct {
	Metadata *MetadataHolder
	Root     *model.Component
	Index    *component.Index
	Statuses *filestatus.FileStatuses
	Summary  filestatus.Summary

	// Recorded is the analysis stored by this job, if it recorded one
	Recorded *store.Analysis

	FinishedAt time.Time
	Duration   time.Duration
}

// Runner orchestrates analysis jobs
type Runner struct {
	publisher StatusPublisher
	logger    *slog.Logger
	mu        sync.Mutex // prevent concurrent jobs
}

// NewRunner creates a runner. publisher may be nil.
func NewRunner(publisher StatusPublisher) *Runner {
	return &Runner{
		publisher: publisher,
		logger:    logging.New("analysis"),
	}
}

func (r *Runner) publish(phase, message string, step int) {
	if r.publisher != nil {
		r.publisher.PublishStatus(phase, message, step, totalPhases)
	}
}

// Run executes one analysis job
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	res, err := r.run(ctx, opts)
	if err != nil {
		r.logger.Error("analysis failed", "reason", opts.Reason, "error", err)
		r.publish("error", err.Error(), 0)
		return nil, err
	}

	res.FinishedAt = time.Now()
	res.Duration = res.FinishedAt.Sub(start)
	r.logger.Info("analysis complete",
		"reason", opts.Reason,
		"files", len(res.Index.Files()),
		"unchanged", res.Summary.MarkedAsUnchanged,
		"duration", res.Duration.Round(time.Millisecond))
	r.publish("complete", "Analysis complete", totalPhases)
	return res, nil
}

func (r *Runner) run(ctx context.Context, opts Options) (*Result, error) {
	r.logger.Info("starting analysis", "reason", opts.Reason, "workspace", opts.Workspace)

	// Phase 1: previous analysis
	r.publish("loading", "Loading previous analysis...", 1)
	dbPath := opts.StorePath
	if dbPath == "" {
		dbPath = filepath.Join(opts.Workspace, store.DefaultDir, store.DefaultFile)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	projectKey := opts.ProjectKey
	var rep *report.Report
	if opts.ReportFile != "" {
		rep, err = report.Load(opts.ReportFile)
		if err != nil {
			return nil, err
		}
		if projectKey == "" {
			projectKey = rep.ProjectKey
		} else if projectKey != rep.ProjectKey {
			return nil, fmt.Errorf("%w: %q vs %q", ErrProjectMismatch, rep.ProjectKey, projectKey)
		}
	}
	if projectKey == "" {
		projectKey = filepath.Base(opts.Workspace)
	}

	base, err := st.LastAnalysis(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	previous, err := store.LoadPreviousSourceHashes(ctx, st, projectKey)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("loaded previous analysis", "project", projectKey, "first", base == nil, "records", previous.Len())

	// Phase 2: component tree
	r.publish("building_tree", "Building component tree...", 2)
	var root *model.Component
	if rep != nil {
		root, err = rep.BuildTree()
	} else {
		root, err = finder.ScanWorkspace(finder.Options{
			Workspace:  opts.Workspace,
			ProjectKey: projectKey,
			Exclude:    opts.Exclude,
			Ignore:     append([]string{dbPath}, opts.Ignore...),
			Previous:   previous,
		})
	}
	if err != nil {
		return nil, err
	}

	holder := component.NewRootHolder()
	if err := holder.SetRoot(root); err != nil {
		return nil, err
	}
	index := component.NewIndex(root)
	metadata := NewMetadataHolder(projectKey, opts.PullRequest, base)

	// Phase 3: current hashes
	r.publish("hashing", fmt.Sprintf("Hashing %d files...", component.CountFiles(root)), 3)
	hashes := source.NewHashRepository(opts.Workspace)
	if err := hashes.Prefetch(ctx, prefetchSet(index, opts.Record), opts.Workers); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Classification hashes what it needs and fails there if it must
		r.logger.Warn("prefetching hashes failed", "error", err)
	}

	// Phase 4: classification
	r.publish("classifying", "Classifying files...", 4)
	statuses := filestatus.New(metadata, holder, previous, hashes, filestatus.WithLogger(r.logger))
	if err := statuses.Initialize(ctx); err != nil {
		return nil, err
	}
	summary, err := statuses.Summary()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Metadata: metadata,
		Root:     root,
		Index:    index,
		Statuses: statuses,
		Summary:  summary,
	}

	// Phase 5: record
	if opts.Record {
		if opts.PullRequest {
			r.logger.Info("not recording a pull request analysis")
		} else {
			r.publish("recording", "Recording analysis...", 5)
			records, err := fileRecords(opts.Workspace, index, hashes)
			if err != nil {
				return nil, err
			}
			res.Recorded, err = st.RecordAnalysis(ctx, projectKey, records)
			if err != nil {
				return nil, err
			}
			r.logger.Info("recorded analysis", "uuid", res.Recorded.UUID, "files", res.Recorded.FileCount)
		}
	}

	return res, nil
}

// prefetchSet returns the files whose hashes the job will need: the SAME
// files for classification, or every file when recording.
func prefetchSet(index *component.Index, record bool) []*model.Component {
	if record {
		return index.Files()
	}
	var files []*model.Component
	for _, f := range index.Files() {
		if f.Status == model.StatusSame {
			files = append(files, f)
		}
	}
	return files
}

func fileRecords(workspace string, index *component.Index, hashes *source.HashRepository) ([]store.FileHashes, error) {
	records := make([]store.FileHashes, 0, len(index.Files()))
	for _, f := range index.Files() {
		hash, err := hashes.RawSourceHash(f)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(filepath.Join(workspace, filepath.FromSlash(f.Path)))
		if err != nil {
			return nil, fmt.Errorf("recording %s: %w", f.Path, err)
		}
		records = append(records, store.FileHashes{
			FileUUID: f.UUID,
			Path:     f.Path,
			SrcHash:  hash,
			Size:     info.Size(),
			ModTime:  info.ModTime().Unix(),
		})
	}
	return records, nil
}
