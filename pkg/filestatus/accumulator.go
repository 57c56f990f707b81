package filestatus

import (
	"github.com/ritzau/filestatus/pkg/model"
)

// accumulator is the state folded over the pre-order file sequence.
// trusted starts true and never returns to true once lost.
type accumulator struct {
	trusted              bool
	unchanged            map[string]struct{}
	visited              int
	notMarkedAsUnchanged int
	brokenAt             *model.Component
}

func newAccumulator() *accumulator {
	return &accumulator{
		trusted:   true,
		unchanged: make(map[string]struct{}),
	}
}

// visit classifies one file. Files not flagged SAME, and every file after a
// trust break, are walked but not classified.
func (a *accumulator) visit(file *model.Component, hashEquals func(*model.Component) (bool, error)) error {
	a.visited++
	if file.Status != model.StatusSame || !a.trusted {
		return nil
	}

	equal, err := hashEquals(file)
	if err != nil {
		return err
	}

	if !equal {
		a.trusted = false
		a.brokenAt = file
		clear(a.unchanged)
		return nil
	}

	if file.MarkedAsUnchanged() {
		a.unchanged[file.UUID] = struct{}{}
	} else {
		a.notMarkedAsUnchanged++
	}
	return nil
}

func (a *accumulator) summary() Summary {
	s := Summary{
		FilesVisited:         a.visited,
		MarkedAsUnchanged:    len(a.unchanged),
		NotMarkedAsUnchanged: a.notMarkedAsUnchanged,
		TrustBroken:          !a.trusted,
	}
	if a.brokenAt != nil {
		s.BrokenAt = a.brokenAt.Name
	}
	return s
}
