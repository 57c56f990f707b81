package component

import (
	"errors"
	"sync"

	"github.com/ritzau/filestatus/pkg/model"
)

var (
	ErrRootNotSet     = errors.New("tree root has not been set")
	ErrRootAlreadySet = errors.New("tree root has already been set")
)

// TreeRootHolder gives access to the root of the current analysis tree
type TreeRootHolder interface {
	Root() (*model.Component, error)
}

// RootHolder is a TreeRootHolder whose root can be set exactly once
type RootHolder struct {
	mu   sync.RWMutex
	root *model.Component
}

// NewRootHolder creates an empty holder
func NewRootHolder() *RootHolder {
	return &RootHolder{}
}

// SetRoot stores the tree root. It fails if root is nil or was already set.
func (h *RootHolder) SetRoot(root *model.Component) error {
	if root == nil {
		return errors.New("tree root must not be nil")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.root != nil {
		return ErrRootAlreadySet
	}
	h.root = root
	return nil
}

// Root returns the tree root, or ErrRootNotSet
func (h *RootHolder) Root() (*model.Component, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.root == nil {
		return nil, ErrRootNotSet
	}
	return h.root, nil
}
