package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Status is the upstream classification of a component relative to the
// previous analysis's tree structure. It says nothing about content hashes.
type Status string

const (
	StatusSame    Status = "same"
	StatusChanged Status = "changed"
	StatusAdded   Status = "added"
)

// ParseStatus parses a status name, case-insensitively
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusSame:
		return StatusSame, nil
	case StatusChanged:
		return StatusChanged, nil
	case StatusAdded:
		return StatusAdded, nil
	}
	return "", fmt.Errorf("unknown component status %q", s)
}

// ComponentType is the level of a component in the project hierarchy
type ComponentType string

const (
	TypeProject   ComponentType = "project"
	TypeDirectory ComponentType = "directory"
	TypeFile      ComponentType = "file"
)

// ParseComponentType parses a component type name, case-insensitively
func ParseComponentType(s string) (ComponentType, error) {
	switch ComponentType(strings.ToLower(strings.TrimSpace(s))) {
	case TypeProject:
		return TypeProject, nil
	case TypeDirectory:
		return TypeDirectory, nil
	case TypeFile:
		return TypeFile, nil
	}
	return "", fmt.Errorf("unknown component type %q", s)
}

// FileAttributes carries scanner-side facts about a file component.
// MarkedAsUnchanged is set during ingestion and is independent of any
// hash verification done later.
type FileAttributes struct {
	MarkedAsUnchanged bool   `json:"markedAsUnchanged"`
	Lines             int    `json:"lines,omitempty"`
	Language          string `json:"language,omitempty"`
	Size              int64  `json:"size,omitempty"`
	ModTime           int64  `json:"modTime,omitempty"` // unix seconds
}

// Component is a node of the project tree (project -> directory -> file).
// Components are built once per analysis and treated as read-only afterwards.
type Component struct {
	UUID           string          `json:"uuid"`
	Key            string          `json:"key"`            // projectKey:path
	Name           string          `json:"name"`           // base name for display
	Path           string          `json:"path,omitempty"` // slash-separated, relative to the project root
	Type           ComponentType   `json:"type"`
	Status         Status          `json:"status"`
	FileAttributes *FileAttributes `json:"fileAttributes,omitempty"`
	Children       []*Component    `json:"children,omitempty"`
}

// IsFile reports whether the component is a file
func (c *Component) IsFile() bool {
	return c.Type == TypeFile
}

// MarkedAsUnchanged returns the scanner's flag, false for non-file components
func (c *Component) MarkedAsUnchanged() bool {
	return c.FileAttributes != nil && c.FileAttributes.MarkedAsUnchanged
}

func (c *Component) String() string {
	return fmt.Sprintf("%s(%s, %s)", c.Type, c.Key, c.Status)
}

// componentNamespace scopes name-based component UUIDs
var componentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/ritzau/filestatus/component"))

// ComponentKey builds the key of a component from its project key and path
func ComponentKey(projectKey, path string) string {
	if path == "" {
		return projectKey
	}
	return projectKey + ":" + path
}

// ComponentUUID returns the stable identity of the component at path.
// The same project key and path always map to the same UUID, which is what
// lets stored hashes from a previous analysis be found again.
func ComponentUUID(projectKey, path string) string {
	return uuid.NewSHA1(componentNamespace, []byte(ComponentKey(projectKey, path))).String()
}

// NewProject creates a project root component
func NewProject(projectKey string, children ...*Component) *Component {
	return &Component{
		UUID:     ComponentUUID(projectKey, ""),
		Key:      projectKey,
		Name:     projectKey,
		Type:     TypeProject,
		Status:   StatusSame,
		Children: children,
	}
}

// NewDirectory creates a directory component
func NewDirectory(projectKey, path string, children ...*Component) *Component {
	return &Component{
		UUID:     ComponentUUID(projectKey, path),
		Key:      ComponentKey(projectKey, path),
		Name:     baseName(path),
		Path:     path,
		Type:     TypeDirectory,
		Status:   StatusSame,
		Children: children,
	}
}

// NewFile creates a file component
func NewFile(projectKey, path string, status Status, attrs FileAttributes) *Component {
	return &Component{
		UUID:           ComponentUUID(projectKey, path),
		Key:            ComponentKey(projectKey, path),
		Name:           baseName(path),
		Path:           path,
		Type:           TypeFile,
		Status:         status,
		FileAttributes: &attrs,
	}
}

func baseName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
