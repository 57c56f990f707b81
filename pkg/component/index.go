package component

import (
	"github.com/ritzau/filestatus/pkg/model"
)

// Index provides UUID and path lookups over a tree
type Index struct {
	byUUID map[string]*model.Component
	byPath map[string]*model.Component
	files  []*model.Component
}

// NewIndex indexes every component below root
func NewIndex(root *model.Component) *Index {
	idx := &Index{
		byUUID: make(map[string]*model.Component),
		byPath: make(map[string]*model.Component),
	}

	Visit(root, DepthFile, PreOrder, func(c *model.Component) bool {
		idx.byUUID[c.UUID] = c
		if c.Path != "" {
			idx.byPath[c.Path] = c
		}
		if c.IsFile() {
			idx.files = append(idx.files, c)
		}
		return true
	})

	return idx
}

// ByUUID returns the component with the given uuid
func (idx *Index) ByUUID(id string) (*model.Component, bool) {
	c, ok := idx.byUUID[id]
	return c, ok
}

// ByPath returns the component at the given slash-separated path
func (idx *Index) ByPath(path string) (*model.Component, bool) {
	c, ok := idx.byPath[path]
	return c, ok
}

// Files returns the file components in traversal order
func (idx *Index) Files() []*model.Component {
	return idx.files
}

// Len returns the number of indexed components
func (idx *Index) Len() int {
	return len(idx.byUUID)
}
