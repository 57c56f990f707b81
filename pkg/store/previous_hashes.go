package store

import (
	"context"

	"github.com/ritzau/filestatus/pkg/model"
)

// PreviousSourceHashRepository answers lookups against the file records
// of a project's latest stored analysis. It loads them once and is
// read-only afterwards.
type PreviousSourceHashRepository struct {
	files map[string]FileHashes
}

// LoadPreviousSourceHashes reads the project's stored file records
func LoadPreviousSourceHashes(ctx context.Context, s *Store, projectKey string) (*PreviousSourceHashRepository, error) {
	files, err := s.FileHashes(ctx, projectKey)
	if err != nil {
		return nil, err
	}
	return NewPreviousSourceHashRepository(files), nil
}

// NewPreviousSourceHashRepository wraps already loaded file records
func NewPreviousSourceHashRepository(files map[string]FileHashes) *PreviousSourceHashRepository {
	if files == nil {
		files = make(map[string]FileHashes)
	}
	return &PreviousSourceHashRepository{files: files}
}

// GetDBFile returns the stored record of the component, if any
func (r *PreviousSourceHashRepository) GetDBFile(c *model.Component) (FileHashes, bool) {
	fh, ok := r.files[c.UUID]
	return fh, ok
}

// PreviousHash returns the stored source hash of the component, if any
func (r *PreviousSourceHashRepository) PreviousHash(c *model.Component) (string, bool) {
	fh, ok := r.files[c.UUID]
	if !ok {
		return "", false
	}
	return fh.SrcHash, true
}

// Len returns the number of stored file records
func (r *PreviousSourceHashRepository) Len() int {
	return len(r.files)
}
