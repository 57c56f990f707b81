package analysis

import "github.com/ritzau/filestatus/pkg/model"

// FileView is the reported state of one file in a finished job
type FileView struct {
	UUID              string       `json:"uuid"`
	Path              string       `json:"path"`
	Status            model.Status `json:"status"`
	MarkedAsUnchanged bool         `json:"markedAsUnchanged"`
	Unchanged         bool         `json:"unchanged"`
	DataUnchanged     bool         `json:"dataUnchanged"`
}

// File answers both status queries for one file
func (r *Result) File(c *model.Component) (FileView, error) {
	unchanged, err := r.Statuses.IsUnchanged(c)
	if err != nil {
		return FileView{}, err
	}
	dataUnchanged, err := r.Statuses.IsDataUnchanged(c)
	if err != nil {
		return FileView{}, err
	}
	return FileView{
		UUID:              c.UUID,
		Path:              c.Path,
		Status:            c.Status,
		MarkedAsUnchanged: c.MarkedAsUnchanged(),
		Unchanged:         unchanged,
		DataUnchanged:     dataUnchanged,
	}, nil
}

// Files returns the views of all files in traversal order
func (r *Result) Files() ([]FileView, error) {
	files := r.Index.Files()
	views := make([]FileView, 0, len(files))
	for _, f := range files {
		v, err := r.File(f)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}
