// Package filestatus decides, per file, whether the content and analyzable
// data of a file can be treated as unchanged since the previous analysis.
//
// FileStatuses is initialized once per analysis job. Initialization walks
// the file components of the tree in pre-order and checks every file the
// upstream diff flagged SAME against the hash stored by the previous
// analysis. A single mismatch means the comparison basis cannot be trusted:
// every unchanged-data claim of the run is dropped, including the ones made
// before the mismatch, and no further file is classified.
//
// After Initialize returns, the query methods are read-only and may be
// called from any number of goroutines.
package filestatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/ritzau/filestatus/pkg/component"
	"github.com/ritzau/filestatus/pkg/logging"
	"github.com/ritzau/filestatus/pkg/model"
)

var (
	// ErrNotInitialized is returned by the query methods before Initialize
	// has completed. Callers must run Initialize first.
	ErrNotInitialized = errors.New("file statuses not initialized")

	// ErrAlreadyInitialized is returned when Initialize is called twice
	ErrAlreadyInitialized = errors.New("file statuses already initialized")
)

// AnalysisMetadata reports what kind of analysis the current job is
type AnalysisMetadata interface {
	IsPullRequest() bool
	IsFirstAnalysis() bool
}

// PreviousSourceHashRepository supplies the source hash the previous
// analysis stored for a file
type PreviousSourceHashRepository interface {
	PreviousHash(file *model.Component) (string, bool)
}

// SourceHashRepository supplies the raw source hash of a file's current content
type SourceHashRepository interface {
	RawSourceHash(file *model.Component) (string, error)
}

// Summary reports what initialization did. It is for observability only.
type Summary struct {
	Skipped              bool   `json:"skipped"`
	FilesVisited         int    `json:"filesVisited"`
	MarkedAsUnchanged    int    `json:"markedAsUnchanged"`
	NotMarkedAsUnchanged int    `json:"notMarkedAsUnchanged"`
	TrustBroken          bool   `json:"trustBroken"`
	BrokenAt             string `json:"brokenAt,omitempty"` // name of the first mismatching file
}

// statusSet is the published result of initialization
type statusSet struct {
	unchanged map[string]struct{}
	summary   Summary
}

// FileStatuses answers whether components are unchanged since the previous analysis
type FileStatuses struct {
	metadata AnalysisMetadata
	tree     component.TreeRootHolder
	previous PreviousSourceHashRepository
	current  SourceHashRepository
	logger   *slog.Logger

	started atomic.Bool
	result  atomic.Pointer[statusSet]
}

// Option configures FileStatuses
type Option func(*FileStatuses)

// WithLogger sets the logger used for the summary and trust diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(fs *FileStatuses) {
		fs.logger = l
	}
}

// New creates an uninitialized FileStatuses
func New(metadata AnalysisMetadata, tree component.TreeRootHolder, previous PreviousSourceHashRepository, current SourceHashRepository, opts ...Option) *FileStatuses {
	fs := &FileStatuses{
		metadata: metadata,
		tree:     tree,
		previous: previous,
		current:  current,
	}
	for _, opt := range opts {
		opt(fs)
	}
	if fs.logger == nil {
		fs.logger = logging.New("filestatus")
	}
	return fs
}

// Initialize classifies the files of the tree. It must be called exactly
// once per analysis job, before any query. Pull request analyses and first
// analyses skip the walk: nothing can be unchanged relative to a previous
// analysis that does not apply. A skipped walk still counts as initialized.
//
// An error obtaining a current hash aborts initialization; the job cannot
// proceed reliably without it.
func (fs *FileStatuses) Initialize(ctx context.Context) error {
	if !fs.started.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	acc := newAccumulator()
	skipped := fs.metadata.IsPullRequest() || fs.metadata.IsFirstAnalysis()

	if !skipped {
		root, err := fs.tree.Root()
		if err != nil {
			return fmt.Errorf("initializing file statuses: %w", err)
		}

		for file := range component.Files(root) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := acc.visit(file, fs.hashEquals); err != nil {
				return fmt.Errorf("initializing file statuses: %w", err)
			}
			if acc.brokenAt == file {
				fs.logger.Error("file has different hash", "file", file.Name, "path", file.Path)
			}
		}
	}

	summary := acc.summary()
	summary.Skipped = skipped

	fs.logger.Warn("files marked as unchanged", "count", summary.MarkedAsUnchanged)
	fs.logger.Warn("files not marked as unchanged", "count", summary.NotMarkedAsUnchanged)

	fs.result.Store(&statusSet{
		unchanged: acc.unchanged,
		summary:   summary,
	})
	return nil
}

// IsUnchanged reports whether c is flagged SAME and its current hash equals
// the previous analysis's hash. The hash is checked again on every call, so
// the answer does not depend on what initialization decided for other files.
func (fs *FileStatuses) IsUnchanged(c *model.Component) (bool, error) {
	if fs.result.Load() == nil {
		return false, ErrNotInitialized
	}
	if c.Status != model.StatusSame {
		return false, nil
	}
	return fs.hashEquals(c)
}

// IsDataUnchanged reports whether initialization confirmed that the
// analyzable data of c is unchanged. It can be false while IsUnchanged is
// true when a trust break dropped the run's unchanged-data claims.
func (fs *FileStatuses) IsDataUnchanged(c *model.Component) (bool, error) {
	res := fs.result.Load()
	if res == nil {
		return false, ErrNotInitialized
	}
	_, ok := res.unchanged[c.UUID]
	return ok, nil
}

// Summary returns the counters recorded by Initialize
func (fs *FileStatuses) Summary() (Summary, error) {
	res := fs.result.Load()
	if res == nil {
		return Summary{}, ErrNotInitialized
	}
	return res.summary, nil
}

// UnchangedFileUUIDs returns the sorted uuids of the files whose data is unchanged
func (fs *FileStatuses) UnchangedFileUUIDs() ([]string, error) {
	res := fs.result.Load()
	if res == nil {
		return nil, ErrNotInitialized
	}
	ids := make([]string, 0, len(res.unchanged))
	for id := range res.unchanged {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// hashEquals compares the current raw hash of c with the hash stored by the
// previous analysis. A file without a stored hash is never equal.
func (fs *FileStatuses) hashEquals(c *model.Component) (bool, error) {
	previous, ok := fs.previous.PreviousHash(c)
	if !ok {
		return false, nil
	}
	current, err := fs.current.RawSourceHash(c)
	if err != nil {
		return false, err
	}
	return previous == current, nil
}
