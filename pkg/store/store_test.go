package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/filestatus/pkg/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), DefaultDir, DefaultFile))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fileHashes(project string, paths ...string) []FileHashes {
	out := make([]FileHashes, 0, len(paths))
	for i, p := range paths {
		out = append(out, FileHashes{
			FileUUID: model.ComponentUUID(project, p),
			Path:     p,
			SrcHash:  "hash-" + p,
			Size:     int64(10 * (i + 1)),
			ModTime:  1700000000 + int64(i),
		})
	}
	return out
}

func TestLastAnalysisEmpty(t *testing.T) {
	s := openTestStore(t)

	a, err := s.LastAnalysis(context.Background(), "proj")
	require.NoError(t, err)
	assert.Nil(t, a)

	files, err := s.FileHashes(context.Background(), "proj")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRecordAnalysis(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.RecordAnalysis(ctx, "proj", fileHashes("proj", "a.go", "b.go"))
	require.NoError(t, err)
	assert.NotEmpty(t, first.UUID)

	last, err := s.LastAnalysis(ctx, "proj")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, first.UUID, last.UUID)
	assert.Equal(t, 2, last.FileCount)

	second, err := s.RecordAnalysis(ctx, "proj", fileHashes("proj", "a.go"))
	require.NoError(t, err)

	last, err = s.LastAnalysis(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, second.UUID, last.UUID)

	files, err := s.FileHashes(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, files, 1, "the second analysis replaces the file records")

	fh := files[model.ComponentUUID("proj", "a.go")]
	assert.Equal(t, "a.go", fh.Path)
	assert.Equal(t, "hash-a.go", fh.SrcHash)
	assert.Equal(t, int64(10), fh.Size)
}

func TestProjectsAreIsolated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.RecordAnalysis(ctx, "one", fileHashes("one", "a.go"))
	require.NoError(t, err)

	a, err := s.LastAnalysis(ctx, "two")
	require.NoError(t, err)
	assert.Nil(t, a)

	files, err := s.FileHashes(ctx, "two")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", DefaultFile)
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.RecordAnalysis(ctx, "proj", fileHashes("proj", "a.go"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	last, err := s.LastAnalysis(ctx, "proj")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 1, last.FileCount)
}

func TestPreviousSourceHashRepository(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.RecordAnalysis(ctx, "proj", fileHashes("proj", "a.go"))
	require.NoError(t, err)

	repo, err := LoadPreviousSourceHashes(ctx, s, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Len())

	known := model.NewFile("proj", "a.go", model.StatusSame, model.FileAttributes{})
	hash, ok := repo.PreviousHash(known)
	assert.True(t, ok)
	assert.Equal(t, "hash-a.go", hash)

	fh, ok := repo.GetDBFile(known)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000), fh.ModTime)

	unknown := model.NewFile("proj", "new.go", model.StatusAdded, model.FileAttributes{})
	_, ok = repo.PreviousHash(unknown)
	assert.False(t, ok)

	empty := NewPreviousSourceHashRepository(nil)
	_, ok = empty.PreviousHash(known)
	assert.False(t, ok)
}
