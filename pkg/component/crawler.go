// Package component holds the analysis tree and walks it.
package component

import (
	"iter"

	"github.com/ritzau/filestatus/pkg/model"
)

// CrawlerDepthLimit is the deepest component type a crawl descends to
type CrawlerDepthLimit int

const (
	DepthProject CrawlerDepthLimit = iota
	DepthDirectory
	DepthFile
)

// Order is the order in which a crawl visits a parent relative to its children
type Order int

const (
	PreOrder Order = iota
	PostOrder
)

func depthOf(t model.ComponentType) CrawlerDepthLimit {
	switch t {
	case model.TypeProject:
		return DepthProject
	case model.TypeDirectory:
		return DepthDirectory
	default:
		return DepthFile
	}
}

// Visit walks the tree below root, calling fn for every component whose
// type is not deeper than limit. Children are visited in slice order, so
// two walks over the same tree always see components in the same order.
// Returning false from fn stops the walk.
func Visit(root *model.Component, limit CrawlerDepthLimit, order Order, fn func(*model.Component) bool) {
	if root == nil {
		return
	}
	visit(root, limit, order, fn)
}

func visit(c *model.Component, limit CrawlerDepthLimit, order Order, fn func(*model.Component) bool) bool {
	if depthOf(c.Type) > limit {
		return true
	}
	if order == PreOrder && !fn(c) {
		return false
	}
	// Children deeper than the limit are dropped on entry
	if !c.IsFile() {
		for _, child := range c.Children {
			if !visit(child, limit, order, fn) {
				return false
			}
		}
	}
	if order == PostOrder && !fn(c) {
		return false
	}
	return true
}

// Files yields the file components of the tree in pre-order.
// Projects and directories are walked through but not yielded.
func Files(root *model.Component) iter.Seq[*model.Component] {
	return func(yield func(*model.Component) bool) {
		Visit(root, DepthFile, PreOrder, func(c *model.Component) bool {
			if !c.IsFile() {
				return true
			}
			return yield(c)
		})
	}
}

// CountFiles returns the number of file components below root
func CountFiles(root *model.Component) int {
	n := 0
	for range Files(root) {
		n++
	}
	return n
}
