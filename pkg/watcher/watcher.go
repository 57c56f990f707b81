// Package watcher turns workspace file system activity into batched change events.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"github.com/ritzau/filestatus/pkg/finder"
	"github.com/ritzau/filestatus/pkg/logging"
	"github.com/ritzau/filestatus/pkg/store"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	ChangeTypeSource ChangeType = iota
	ChangeTypeReport
)

func (t ChangeType) String() string {
	if t == ChangeTypeReport {
		return "report"
	}
	return "source"
}

// flushDelay batches the raw events of one burst
const flushDelay = 100 * time.Millisecond

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Type      ChangeType
	Paths     []string // slash-separated, relative to the workspace for sources
	Timestamp time.Time
}

// Options configures what a FileWatcher ignores and what else it watches
type Options struct {
	Exclude    []string // same patterns as the workspace scan
	ReportFile string   // scanner report to watch, if any

	// Ignore holds files the process itself writes, such as its log file
	// and database. Writing them must not trigger another job.
	Ignore []string
}

// FileWatcher watches a workspace recursively for file changes
type FileWatcher struct {
	watcher    *fsnotify.Watcher
	workspace  string
	reportFile string
	excludes   []glob.Glob
	ignore     []string
	events     chan ChangeEvent
	done       chan struct{}
	started    bool

	mu      sync.Mutex
	watched map[string]bool
}

// NewFileWatcher creates a new file system watcher for a workspace
func NewFileWatcher(workspace string, opts Options) (*FileWatcher, error) {
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	excludes := make([]glob.Glob, 0, len(opts.Exclude))
	for _, p := range opts.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		excludes = append(excludes, g)
	}

	var reportFile string
	if opts.ReportFile != "" {
		if reportFile, err = filepath.Abs(opts.ReportFile); err != nil {
			return nil, fmt.Errorf("failed to resolve report file: %w", err)
		}
	}

	ignore, err := finder.ResolvePaths(opts.Ignore)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher:    watcher,
		workspace:  abs,
		reportFile: reportFile,
		excludes:   excludes,
		ignore:     ignore,
		events:     make(chan ChangeEvent, 100),
		done:       make(chan struct{}),
		watched:    make(map[string]bool),
	}, nil
}

// Start begins watching for file changes. Events stop and the events
// channel closes when ctx is canceled or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.watchTree(fw.workspace); err != nil {
		fw.watcher.Close()
		return err
	}

	if fw.reportFile != "" {
		if err := fw.add(filepath.Dir(fw.reportFile)); err != nil {
			logging.Warn("failed to watch report directory", "path", fw.reportFile, "error", err)
		}
	}

	logging.Info("started watching workspace", "path", fw.workspace, "directories", fw.watchedCount())

	// Process events
	fw.started = true
	go fw.processEvents(ctx)

	return nil
}

// watchTree adds root and every directory below it that is not skipped
func (fw *FileWatcher) watchTree(root string) error {
	err := filepath.WalkDir(root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories may vanish while walking
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name != fw.workspace && fw.ignored(name) {
			return filepath.SkipDir
		}
		if err := fw.add(name); err != nil {
			logging.Warn("failed to watch directory", "path", name, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk workspace: %w", err)
	}
	return nil
}

func (fw *FileWatcher) add(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.watched[dir] {
		return nil
	}
	if err := fw.watcher.Add(dir); err != nil {
		return err
	}
	fw.watched[dir] = true
	return nil
}

func (fw *FileWatcher) watchedCount() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.watched)
}

// relative returns the slash-separated workspace path of name, or false
// when name is outside the workspace
func (fw *FileWatcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(fw.workspace, name)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ignored reports whether a workspace path is skipped by the scan
func (fw *FileWatcher) ignored(name string) bool {
	rel, ok := fw.relative(name)
	if !ok || finder.IsIgnored(fw.ignore, name) {
		return true
	}
	for dir := rel; dir != "."; dir = path.Dir(dir) {
		if base := path.Base(dir); base == ".git" || base == store.DefaultDir {
			return true
		}
	}
	for _, g := range fw.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// classify maps a raw event to a change type, or false when it is irrelevant
func (fw *FileWatcher) classify(event fsnotify.Event) (ChangeType, string, bool) {
	if event.Op == fsnotify.Chmod {
		return 0, "", false
	}
	if fw.reportFile != "" && event.Name == fw.reportFile {
		return ChangeTypeReport, filepath.ToSlash(event.Name), true
	}
	if fw.ignored(event.Name) {
		return 0, "", false
	}
	rel, _ := fw.relative(event.Name)
	return ChangeTypeSource, rel, true
}

// processEvents processes file system events and batches them by type
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.done)
	defer close(fw.events)

	// Batch events to avoid sending one event per file
	batches := make(map[ChangeType][]string)

	flushTimer := time.NewTimer(flushDelay)
	flushTimer.Stop()

	flush := func() bool {
		for _, t := range []ChangeType{ChangeTypeReport, ChangeTypeSource} {
			paths := batches[t]
			if len(paths) == 0 {
				continue
			}
			select {
			case fw.events <- ChangeEvent{Type: t, Paths: paths, Timestamp: time.Now()}:
			case <-ctx.Done():
				return false
			}
			delete(batches, t)
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			fw.watcher.Close()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				flush()
				return
			}

			typ, rel, relevant := fw.classify(event)
			if !relevant {
				continue
			}

			// New directories are watched too
			if event.Has(fsnotify.Create) && typ == ChangeTypeSource {
				if isDir(event.Name) {
					if err := fw.watchTree(event.Name); err != nil {
						logging.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}

			logging.Trace("file event", "op", event.Op.String(), "path", rel)
			batches[typ] = append(batches[typ], rel)
			flushTimer.Reset(flushDelay)

		case <-flushTimer.C:
			if !flush() {
				fw.watcher.Close()
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Stop stops the file watcher and waits for its goroutine to exit
func (fw *FileWatcher) Stop() error {
	err := fw.watcher.Close()
	if fw.started {
		<-fw.done
	}
	return err
}

func isDir(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.IsDir()
}
