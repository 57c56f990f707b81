// Package finder scans a workspace into a component tree.
package finder

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/ritzau/filestatus/pkg/model"
	"github.com/ritzau/filestatus/pkg/store"
)

// Options configures a workspace scan
type Options struct {
	Workspace  string
	ProjectKey string

	// Exclude holds glob patterns matched against slash-separated paths
	// relative to the workspace. "**" crosses directories.
	Exclude []string

	// Ignore holds paths the tool itself writes to, such as its log file
	// and database. They are skipped wherever they are.
	Ignore []string

	// Previous holds the stored file records of the last analysis. Nil
	// means there is no previous analysis.
	Previous *store.PreviousSourceHashRepository
}

// alwaysSkipped are directory names never descended into
var alwaysSkipped = map[string]bool{
	".git":           true,
	store.DefaultDir: true,
}

// ScanWorkspace walks the workspace and returns the project tree.
// Entries are visited in lexical order so that two scans of the same
// workspace produce identical trees.
//
// Each file is classified against its stored record: ADDED when there is
// none, CHANGED when the recorded size differs, SAME otherwise. A SAME file
// whose size and modification time both match the record is marked as
// unchanged. That is the scanner's cheap guess; content hashes are verified
// later.
func ScanWorkspace(opts Options) (*model.Component, error) {
	excludes, err := compileExcludes(opts.Exclude)
	if err != nil {
		return nil, err
	}

	ignore, err := ResolvePaths(opts.Ignore)
	if err != nil {
		return nil, err
	}
	workspace, err := filepath.Abs(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	root := model.NewProject(opts.ProjectKey)
	dirs := map[string]*model.Component{".": root}

	err = filepath.WalkDir(opts.Workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(opts.Workspace, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if IsIgnored(ignore, filepath.Join(workspace, rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if alwaysSkipped[d.Name()] || excluded(excludes, rel) {
				return filepath.SkipDir
			}
			dir := model.NewDirectory(opts.ProjectKey, rel)
			parent := dirs[parentOf(rel)]
			parent.Children = append(parent.Children, dir)
			dirs[rel] = dir
			return nil
		}

		// Symlinks, devices and the like are not source files
		if !d.Type().IsRegular() || excluded(excludes, rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		file := classify(opts, rel, info)
		parent := dirs[parentOf(rel)]
		parent.Children = append(parent.Children, file)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning workspace: %w", err)
	}

	pruneEmpty(root)
	return root, nil
}

func classify(opts Options, rel string, info fs.FileInfo) *model.Component {
	attrs := model.FileAttributes{
		Size:     info.Size(),
		ModTime:  info.ModTime().Unix(),
		Language: languageOf(rel),
	}

	file := model.NewFile(opts.ProjectKey, rel, model.StatusAdded, attrs)
	if opts.Previous == nil {
		return file
	}
	if prev, ok := opts.Previous.GetDBFile(file); ok {
		if prev.Size != attrs.Size {
			file.Status = model.StatusChanged
		} else {
			file.Status = model.StatusSame
			file.FileAttributes.MarkedAsUnchanged = prev.ModTime == attrs.ModTime
		}
	}
	return file
}

// pruneEmpty drops directories that ended up without files
func pruneEmpty(c *model.Component) bool {
	if c.IsFile() {
		return true
	}
	kept := c.Children[:0]
	for _, child := range c.Children {
		if pruneEmpty(child) {
			kept = append(kept, child)
		}
	}
	c.Children = kept
	return len(kept) > 0
}

func parentOf(rel string) string {
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return "."
}

func compileExcludes(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func excluded(globs []glob.Glob, rel string) bool {
	for _, g := range globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

var languages = map[string]string{
	".go":   "go",
	".java": "java",
	".kt":   "kotlin",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".c":    "c",
	".h":    "c",
	".cc":   "cpp",
	".cpp":  "cpp",
	".rs":   "rust",
	".md":   "markdown",
}

func languageOf(rel string) string {
	return languages[strings.ToLower(filepath.Ext(rel))]
}
