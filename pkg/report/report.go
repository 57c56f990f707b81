// Package report reads the scanner report that describes the project tree
// of an analysis: every component, its upstream status and, for files, the
// scanner's unchanged flag.
package report

import (
	"errors"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/ritzau/filestatus/pkg/model"
)

// ErrInvalidReport is wrapped by every validation failure
var ErrInvalidReport = errors.New("invalid scanner report")

// Report is the parsed scanner report
type Report struct {
	ProjectKey string      `yaml:"project"`
	Components []Component `yaml:"components"`
}

// Component is one flat report entry. Children refer to other entries by Ref.
type Component struct {
	Ref             int    `yaml:"ref"`
	Type            string `yaml:"type"`
	Path            string `yaml:"path"`
	Status          string `yaml:"status"`
	MarkedUnchanged bool   `yaml:"markedUnchanged"`
	Lines           int    `yaml:"lines"`
	Language        string `yaml:"language"`
	Children        []int  `yaml:"children"`
}

// Load reads and validates a report file
func Load(file string) (*Report, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return r, nil
}

// Parse decodes and validates report YAML
func Parse(data []byte) (*Report, error) {
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// BuildTree turns the validated report into a component tree. Children
// keep the order in which the report lists them.
func (r *Report) BuildTree() (*model.Component, error) {
	byRef := make(map[int]*Component, len(r.Components))
	for i := range r.Components {
		byRef[r.Components[i].Ref] = &r.Components[i]
	}

	rootRef, err := r.rootRef()
	if err != nil {
		return nil, err
	}

	var build func(ref int) (*model.Component, error)
	build = func(ref int) (*model.Component, error) {
		rc := byRef[ref]
		c, err := r.toModel(rc)
		if err != nil {
			return nil, err
		}
		for _, childRef := range rc.Children {
			child, err := build(childRef)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		}
		return c, nil
	}

	return build(rootRef)
}

func (r *Report) toModel(rc *Component) (*model.Component, error) {
	typ, err := model.ParseComponentType(rc.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: ref %d: %v", ErrInvalidReport, rc.Ref, err)
	}

	status := model.StatusSame
	if rc.Status != "" {
		if status, err = model.ParseStatus(rc.Status); err != nil {
			return nil, fmt.Errorf("%w: ref %d: %v", ErrInvalidReport, rc.Ref, err)
		}
	}

	p := path.Clean(rc.Path)
	switch typ {
	case model.TypeProject:
		return model.NewProject(r.ProjectKey), nil
	case model.TypeDirectory:
		c := model.NewDirectory(r.ProjectKey, p)
		c.Status = status
		return c, nil
	default:
		return model.NewFile(r.ProjectKey, p, status, model.FileAttributes{
			MarkedAsUnchanged: rc.MarkedUnchanged,
			Lines:             rc.Lines,
			Language:          rc.Language,
		}), nil
	}
}
