package report

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/ritzau/filestatus/pkg/model"
)

// Validate checks that the report describes a single tree rooted at the
// project component
func (r *Report) Validate() error {
	if strings.TrimSpace(r.ProjectKey) == "" {
		return fmt.Errorf("%w: missing project key", ErrInvalidReport)
	}
	if len(r.Components) == 0 {
		return fmt.Errorf("%w: no components", ErrInvalidReport)
	}

	byRef := make(map[int]*Component, len(r.Components))
	paths := make(map[string]int)
	for i := range r.Components {
		c := &r.Components[i]
		if _, dup := byRef[c.Ref]; dup {
			return fmt.Errorf("%w: duplicate ref %d", ErrInvalidReport, c.Ref)
		}
		byRef[c.Ref] = c

		if err := validateComponent(c); err != nil {
			return err
		}
		if c.Path != "" {
			p := path.Clean(c.Path)
			if other, dup := paths[p]; dup {
				return fmt.Errorf("%w: refs %d and %d share path %q", ErrInvalidReport, other, c.Ref, p)
			}
			paths[p] = c.Ref
		}
	}

	// Parent links as a directed graph: the tree must be acyclic and every
	// component may have at most one parent
	g := simple.NewDirectedGraph()
	for ref := range byRef {
		g.AddNode(simple.Node(ref))
	}
	parents := make(map[int]int)
	for _, c := range r.Components {
		for _, child := range c.Children {
			if _, ok := byRef[child]; !ok {
				return fmt.Errorf("%w: ref %d lists unknown child %d", ErrInvalidReport, c.Ref, child)
			}
			if child == c.Ref {
				return fmt.Errorf("%w: ref %d is its own child", ErrInvalidReport, c.Ref)
			}
			if p, ok := parents[child]; ok {
				return fmt.Errorf("%w: ref %d has two parents (%d and %d)", ErrInvalidReport, child, p, c.Ref)
			}
			parents[child] = c.Ref
			g.SetEdge(g.NewEdge(simple.Node(c.Ref), simple.Node(child)))
		}
	}

	if _, err := topo.Sort(g); err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) && len(cycles) > 0 && len(cycles[0]) > 0 {
			return fmt.Errorf("%w: components form a cycle through ref %d", ErrInvalidReport, cycles[0][0].ID())
		}
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	rootRef, err := r.rootRef()
	if err != nil {
		return err
	}
	if p, ok := parents[rootRef]; ok {
		return fmt.Errorf("%w: project ref %d is a child of ref %d", ErrInvalidReport, rootRef, p)
	}
	if len(parents) != len(byRef)-1 {
		return fmt.Errorf("%w: %d components are not reachable from project ref %d",
			ErrInvalidReport, len(byRef)-1-len(parents), rootRef)
	}
	return nil
}

func validateComponent(c *Component) error {
	typ, err := model.ParseComponentType(c.Type)
	if err != nil {
		return fmt.Errorf("%w: ref %d: %v", ErrInvalidReport, c.Ref, err)
	}
	if c.Status != "" {
		if _, err := model.ParseStatus(c.Status); err != nil {
			return fmt.Errorf("%w: ref %d: %v", ErrInvalidReport, c.Ref, err)
		}
	}

	switch typ {
	case model.TypeFile:
		if c.Path == "" {
			return fmt.Errorf("%w: file ref %d has no path", ErrInvalidReport, c.Ref)
		}
		if c.Status == "" {
			return fmt.Errorf("%w: file ref %d has no status", ErrInvalidReport, c.Ref)
		}
		if len(c.Children) > 0 {
			return fmt.Errorf("%w: file ref %d has children", ErrInvalidReport, c.Ref)
		}
	case model.TypeDirectory:
		if c.Path == "" {
			return fmt.Errorf("%w: directory ref %d has no path", ErrInvalidReport, c.Ref)
		}
	}

	if c.Path != "" && (path.IsAbs(c.Path) || escapes(path.Clean(c.Path))) {
		return fmt.Errorf("%w: ref %d path %q escapes the project", ErrInvalidReport, c.Ref, c.Path)
	}
	return nil
}

// escapes reports whether a cleaned relative path leaves its root.
// Names that merely start with dots, such as ..hidden.go, stay inside.
func escapes(clean string) bool {
	return clean == ".." || strings.HasPrefix(clean, "../")
}

// rootRef returns the ref of the single project component
func (r *Report) rootRef() (int, error) {
	root, found := 0, 0
	for _, c := range r.Components {
		if typ, _ := model.ParseComponentType(c.Type); typ == model.TypeProject {
			root = c.Ref
			found++
		}
	}
	switch found {
	case 0:
		return 0, fmt.Errorf("%w: no project component", ErrInvalidReport)
	case 1:
		return root, nil
	default:
		return 0, fmt.Errorf("%w: %d project components", ErrInvalidReport, found)
	}
}
