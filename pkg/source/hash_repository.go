// Package source computes the raw source hash of files in the workspace.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ritzau/filestatus/pkg/model"
)

// HashRepository hashes file components on demand and remembers the
// result for the rest of the analysis job. Safe for concurrent use.
type HashRepository struct {
	workspace string

	mu     sync.Mutex
	hashes map[string]string // component uuid -> hex sha256
}

// NewHashRepository creates a repository reading files below workspace
func NewHashRepository(workspace string) *HashRepository {
	return &HashRepository{
		workspace: workspace,
		hashes:    make(map[string]string),
	}
}

// RawSourceHash returns the hex SHA-256 of the file's bytes as they are on
// disk. No line ending or whitespace normalization is applied.
func (r *HashRepository) RawSourceHash(file *model.Component) (string, error) {
	r.mu.Lock()
	hash, ok := r.hashes[file.UUID]
	r.mu.Unlock()
	if ok {
		return hash, nil
	}

	hash, err := HashFile(filepath.Join(r.workspace, filepath.FromSlash(file.Path)))
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", file.Path, err)
	}

	r.mu.Lock()
	r.hashes[file.UUID] = hash
	r.mu.Unlock()
	return hash, nil
}

// Prefetch hashes the given files with up to workers goroutines so that
// later lookups are served from memory. The first error cancels the rest.
func (r *HashRepository) Prefetch(ctx context.Context, files []*model.Component, workers int) error {
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, f := range files {
		if !f.IsFile() {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := r.RawSourceHash(f)
			return err
		})
	}

	return g.Wait()
}

// Len returns the number of cached hashes
func (r *HashRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hashes)
}

// HashFile returns the hex SHA-256 of a file's content
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
