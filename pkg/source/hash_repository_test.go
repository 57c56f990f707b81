package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/filestatus/pkg/model"
)

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeFile(t *testing.T, root, rel, content string) *model.Component {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return model.NewFile("proj", rel, model.StatusSame, model.FileAttributes{})
}

func TestRawSourceHash(t *testing.T) {
	root := t.TempDir()
	f := writeFile(t, root, "src/main.go", "package main\n")

	repo := NewHashRepository(root)
	got, err := repo.RawSourceHash(f)
	require.NoError(t, err)
	assert.Equal(t, hashBytes([]byte("package main\n")), got)
	assert.Len(t, got, 64)
}

func TestRawSourceHashIsNotNormalized(t *testing.T) {
	root := t.TempDir()
	unix := writeFile(t, root, "unix.txt", "a\nb\n")
	dos := writeFile(t, root, "dos.txt", "a\r\nb\r\n")

	repo := NewHashRepository(root)
	h1, err := repo.RawSourceHash(unix)
	require.NoError(t, err)
	h2, err := repo.RawSourceHash(dos)
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestRawSourceHashIsMemoized(t *testing.T) {
	root := t.TempDir()
	f := writeFile(t, root, "a.go", "first")

	repo := NewHashRepository(root)
	first, err := repo.RawSourceHash(f)
	require.NoError(t, err)

	// Changing the file during the job does not change the answer
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("second"), 0o644))
	second, err := repo.RawSourceHash(f)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.Len())
}

func TestRawSourceHashMissingFile(t *testing.T) {
	repo := NewHashRepository(t.TempDir())
	_, err := repo.RawSourceHash(model.NewFile("proj", "gone.go", model.StatusSame, model.FileAttributes{}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "gone.go")
}

func TestPrefetch(t *testing.T) {
	root := t.TempDir()
	var files []*model.Component
	for _, name := range []string{"a.go", "b.go", "c/d.go", "c/e.go"} {
		files = append(files, writeFile(t, root, name, "content of "+name))
	}
	files = append(files, model.NewDirectory("proj", "c"))

	repo := NewHashRepository(root)
	require.NoError(t, repo.Prefetch(context.Background(), files, 3))
	assert.Equal(t, 4, repo.Len())
}

func TestPrefetchFails(t *testing.T) {
	root := t.TempDir()
	files := []*model.Component{
		writeFile(t, root, "a.go", "a"),
		model.NewFile("proj", "missing.go", model.StatusSame, model.FileAttributes{}),
	}

	repo := NewHashRepository(root)
	err := repo.Prefetch(context.Background(), files, 0)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
