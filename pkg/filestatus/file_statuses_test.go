package filestatus

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/filestatus/pkg/component"
	"github.com/ritzau/filestatus/pkg/model"
)

const project = "proj"

type fakeMetadata struct {
	pullRequest   bool
	firstAnalysis bool
}

func (m fakeMetadata) IsPullRequest() bool   { return m.pullRequest }
func (m fakeMetadata) IsFirstAnalysis() bool { return m.firstAnalysis }

// fakeHashes serves both the previous and the current hashes, keyed by path
type fakeHashes struct {
	previous map[string]string
	current  map[string]string
	failOn   string

	mu    sync.Mutex
	calls int
}

func (h *fakeHashes) PreviousHash(c *model.Component) (string, bool) {
	hash, ok := h.previous[c.Path]
	return hash, ok
}

func (h *fakeHashes) RawSourceHash(c *model.Component) (string, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	if c.Path == h.failOn {
		return "", errors.New("read failed")
	}
	return h.current[c.Path], nil
}

// fileSpec describes one file of a test tree
type fileSpec struct {
	path   string
	status model.Status
	match  bool // current hash equals previous hash
	marked bool
	noPrev bool // no stored hash in the previous analysis
}

func buildFixture(t *testing.T, specs ...fileSpec) (*component.RootHolder, *fakeHashes, map[string]*model.Component) {
	t.Helper()

	hashes := &fakeHashes{
		previous: make(map[string]string),
		current:  make(map[string]string),
	}
	files := make(map[string]*model.Component)
	children := make([]*model.Component, 0, len(specs))

	for _, s := range specs {
		f := model.NewFile(project, s.path, s.status, model.FileAttributes{MarkedAsUnchanged: s.marked})
		files[s.path] = f
		children = append(children, f)

		hashes.current[s.path] = "hash-" + s.path
		if s.noPrev {
			continue
		}
		if s.match {
			hashes.previous[s.path] = "hash-" + s.path
		} else {
			hashes.previous[s.path] = "old-" + s.path
		}
	}

	holder := component.NewRootHolder()
	require.NoError(t, holder.SetRoot(model.NewProject(project, model.NewDirectory(project, "src", children...))))
	return holder, hashes, files
}

func newStatuses(meta AnalysisMetadata, holder component.TreeRootHolder, hashes *fakeHashes) *FileStatuses {
	return New(meta, holder, hashes, hashes, WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
}

func isDataUnchanged(t *testing.T, fs *FileStatuses, c *model.Component) bool {
	t.Helper()
	got, err := fs.IsDataUnchanged(c)
	require.NoError(t, err)
	return got
}

func isUnchanged(t *testing.T, fs *FileStatuses, c *model.Component) bool {
	t.Helper()
	got, err := fs.IsUnchanged(c)
	require.NoError(t, err)
	return got
}

func TestTrustBreakClearsEarlierClassification(t *testing.T) {
	holder, hashes, files := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: true, marked: true},
		fileSpec{path: "src/b.go", status: model.StatusSame, match: false},
		fileSpec{path: "src/c.go", status: model.StatusSame, match: true, marked: true},
	)
	fs := newStatuses(fakeMetadata{}, holder, hashes)
	require.NoError(t, fs.Initialize(context.Background()))

	assert.False(t, isDataUnchanged(t, fs, files["src/a.go"]))
	assert.False(t, isDataUnchanged(t, fs, files["src/b.go"]))
	assert.False(t, isDataUnchanged(t, fs, files["src/c.go"]))

	assert.True(t, isUnchanged(t, fs, files["src/a.go"]))
	assert.False(t, isUnchanged(t, fs, files["src/b.go"]))
	assert.True(t, isUnchanged(t, fs, files["src/c.go"]))

	summary, err := fs.Summary()
	require.NoError(t, err)
	assert.True(t, summary.TrustBroken)
	assert.Equal(t, "b.go", summary.BrokenAt)
	assert.Equal(t, 0, summary.MarkedAsUnchanged)
	assert.Equal(t, 3, summary.FilesVisited)
}

func TestAddedFileIsNeverUnchanged(t *testing.T) {
	holder, hashes, files := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: true, marked: true},
		fileSpec{path: "src/d.go", status: model.StatusAdded, noPrev: true},
	)
	fs := newStatuses(fakeMetadata{}, holder, hashes)
	require.NoError(t, fs.Initialize(context.Background()))

	assert.True(t, isDataUnchanged(t, fs, files["src/a.go"]))
	assert.False(t, isDataUnchanged(t, fs, files["src/d.go"]))
	assert.False(t, isUnchanged(t, fs, files["src/d.go"]))

	ids, err := fs.UnchangedFileUUIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{files["src/a.go"].UUID}, ids)
}

func TestSkippedRunsClassifyNothing(t *testing.T) {
	specs := []fileSpec{
		{path: "src/a.go", status: model.StatusSame, match: true, marked: true},
		{path: "src/b.go", status: model.StatusSame, match: true, marked: true},
		{path: "src/c.go", status: model.StatusChanged, match: false, marked: false},
	}

	tests := []struct {
		name string
		meta fakeMetadata
	}{
		{"first analysis", fakeMetadata{firstAnalysis: true}},
		{"pull request", fakeMetadata{pullRequest: true}},
		{"pull request with previous data", fakeMetadata{pullRequest: true, firstAnalysis: false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			holder, hashes, files := buildFixture(t, specs...)
			fs := newStatuses(tt.meta, holder, hashes)
			require.NoError(t, fs.Initialize(context.Background()))

			for path, f := range files {
				assert.False(t, isDataUnchanged(t, fs, f), path)
			}
			assert.Zero(t, hashes.calls, "a skipped run must not hash any file")

			summary, err := fs.Summary()
			require.NoError(t, err)
			assert.True(t, summary.Skipped)
			assert.Zero(t, summary.FilesVisited)
		})
	}
}

func TestSkippedRunDoesNotNeedATree(t *testing.T) {
	fs := newStatuses(fakeMetadata{firstAnalysis: true}, component.NewRootHolder(), &fakeHashes{})
	require.NoError(t, fs.Initialize(context.Background()))

	ok, err := fs.IsDataUnchanged(model.NewFile(project, "x.go", model.StatusSame, model.FileAttributes{}))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrustIsMonotonic(t *testing.T) {
	// The break can be anywhere; afterwards nothing is unchanged-data
	for breakAt := 0; breakAt < 4; breakAt++ {
		specs := make([]fileSpec, 4)
		for i := range specs {
			specs[i] = fileSpec{
				path:   "src/f" + string(rune('0'+i)) + ".go",
				status: model.StatusSame,
				match:  i != breakAt,
				marked: true,
			}
		}
		holder, hashes, files := buildFixture(t, specs...)
		fs := newStatuses(fakeMetadata{}, holder, hashes)
		require.NoError(t, fs.Initialize(context.Background()))

		for path, f := range files {
			assert.False(t, isDataUnchanged(t, fs, f), "break at %d, file %s", breakAt, path)
		}
	}
}

func TestFilesAfterBreakAreNotHashed(t *testing.T) {
	holder, hashes, _ := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: false},
		fileSpec{path: "src/b.go", status: model.StatusSame, match: true, marked: true},
		fileSpec{path: "src/c.go", status: model.StatusSame, match: true},
	)
	fs := newStatuses(fakeMetadata{}, holder, hashes)
	require.NoError(t, fs.Initialize(context.Background()))

	assert.Equal(t, 1, hashes.calls)

	summary, err := fs.Summary()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.FilesVisited, "the walk continues after a break")
	assert.Equal(t, 0, summary.NotMarkedAsUnchanged)
}

func TestClassificationCounters(t *testing.T) {
	holder, hashes, files := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: true, marked: true},
		fileSpec{path: "src/b.go", status: model.StatusSame, match: true, marked: false},
		fileSpec{path: "src/c.go", status: model.StatusChanged, match: false},
		fileSpec{path: "src/d.go", status: model.StatusSame, match: true, marked: true},
		fileSpec{path: "src/e.go", status: model.StatusAdded, noPrev: true},
	)
	fs := newStatuses(fakeMetadata{}, holder, hashes)
	require.NoError(t, fs.Initialize(context.Background()))

	assert.True(t, isDataUnchanged(t, fs, files["src/a.go"]))
	assert.False(t, isDataUnchanged(t, fs, files["src/b.go"]), "not marked by the scanner")
	assert.False(t, isDataUnchanged(t, fs, files["src/c.go"]))
	assert.True(t, isDataUnchanged(t, fs, files["src/d.go"]))
	assert.False(t, isDataUnchanged(t, fs, files["src/e.go"]))

	summary, err := fs.Summary()
	require.NoError(t, err)
	assert.Equal(t, Summary{
		FilesVisited:         5,
		MarkedAsUnchanged:    2,
		NotMarkedAsUnchanged: 1,
	}, summary)
}

func TestSameFileWithoutPreviousHashBreaksTrust(t *testing.T) {
	holder, hashes, files := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: true, marked: true},
		fileSpec{path: "src/b.go", status: model.StatusSame, noPrev: true, marked: true},
	)
	fs := newStatuses(fakeMetadata{}, holder, hashes)
	require.NoError(t, fs.Initialize(context.Background()))

	assert.False(t, isDataUnchanged(t, fs, files["src/a.go"]))
	assert.False(t, isUnchanged(t, fs, files["src/b.go"]))
}

func TestIsUnchangedIgnoresTrust(t *testing.T) {
	holder, hashes, files := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: false},
		fileSpec{path: "src/b.go", status: model.StatusSame, match: true, marked: false},
		fileSpec{path: "src/c.go", status: model.StatusChanged, match: true},
	)
	fs := newStatuses(fakeMetadata{}, holder, hashes)
	require.NoError(t, fs.Initialize(context.Background()))

	assert.True(t, isUnchanged(t, fs, files["src/b.go"]), "live check, no classification needed")
	assert.False(t, isUnchanged(t, fs, files["src/c.go"]), "status must be SAME")

	dir := model.NewDirectory(project, "src")
	assert.False(t, isUnchanged(t, fs, dir), "no stored hash for directories")
}

func TestQueriesFailBeforeInitialize(t *testing.T) {
	holder, hashes, files := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: true, marked: true},
	)
	fs := newStatuses(fakeMetadata{}, holder, hashes)
	f := files["src/a.go"]

	_, err := fs.IsUnchanged(f)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = fs.IsDataUnchanged(f)
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = fs.IsDataUnchanged(model.NewDirectory(project, "src"))
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = fs.Summary()
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = fs.UnchangedFileUUIDs()
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.Zero(t, hashes.calls)
}

func TestInitializeTwice(t *testing.T) {
	holder, hashes, _ := buildFixture(t)
	fs := newStatuses(fakeMetadata{}, holder, hashes)

	require.NoError(t, fs.Initialize(context.Background()))
	assert.ErrorIs(t, fs.Initialize(context.Background()), ErrAlreadyInitialized)
}

func TestHashFailureAbortsInitialize(t *testing.T) {
	holder, hashes, files := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: true, marked: true},
		fileSpec{path: "src/b.go", status: model.StatusSame, match: true, marked: true},
	)
	hashes.failOn = "src/b.go"
	fs := newStatuses(fakeMetadata{}, holder, hashes)

	err := fs.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read failed")

	_, err = fs.IsDataUnchanged(files["src/a.go"])
	assert.ErrorIs(t, err, ErrNotInitialized, "a failed initialization publishes nothing")
}

func TestHashFailurePropagatesFromQuery(t *testing.T) {
	holder, hashes, files := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: true},
	)
	fs := newStatuses(fakeMetadata{firstAnalysis: true}, holder, hashes)
	require.NoError(t, fs.Initialize(context.Background()))

	hashes.failOn = "src/a.go"
	_, err := fs.IsUnchanged(files["src/a.go"])
	assert.Error(t, err)
}

func TestInitializeMissingRoot(t *testing.T) {
	fs := newStatuses(fakeMetadata{}, component.NewRootHolder(), &fakeHashes{})
	err := fs.Initialize(context.Background())
	assert.ErrorIs(t, err, component.ErrRootNotSet)
}

func TestInitializeCancelled(t *testing.T) {
	holder, hashes, _ := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: true, marked: true},
	)
	fs := newStatuses(fakeMetadata{}, holder, hashes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, fs.Initialize(ctx), context.Canceled)
}

func TestTrustBreakIsLogged(t *testing.T) {
	holder, hashes, _ := buildFixture(t,
		fileSpec{path: "src/a.go", status: model.StatusSame, match: true, marked: true},
		fileSpec{path: "src/b.go", status: model.StatusSame, match: false},
	)
	var buf bytes.Buffer
	fs := New(fakeMetadata{}, holder, hashes, hashes, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, fs.Initialize(context.Background()))

	out := buf.String()
	assert.Contains(t, out, "file has different hash")
	assert.Contains(t, out, "file=b.go")
	assert.Contains(t, out, "files marked as unchanged")
	assert.Contains(t, out, "files not marked as unchanged")
}

func TestConcurrentReaders(t *testing.T) {
	specs := make([]fileSpec, 0, 50)
	for i := 0; i < 50; i++ {
		specs = append(specs, fileSpec{
			path:   "src/f" + string(rune('A'+i)) + ".go",
			status: model.StatusSame,
			match:  true,
			marked: i%2 == 0,
		})
	}
	holder, hashes, files := buildFixture(t, specs...)
	fs := newStatuses(fakeMetadata{}, holder, hashes)
	require.NoError(t, fs.Initialize(context.Background()))

	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, f := range files {
				got, err := fs.IsDataUnchanged(f)
				if err != nil || got != f.MarkedAsUnchanged() {
					t.Errorf("IsDataUnchanged(%s) = %v, %v", f.Path, got, err)
				}
				if _, err := fs.IsUnchanged(f); err != nil {
					t.Errorf("IsUnchanged(%s): %v", f.Path, err)
				}
			}
		}()
	}
	wg.Wait()
}
