package domain

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// Project Errors
// =============================================================================

var (
	ErrProjectPathRequired = errors.New("project path is required")
	ErrProjectPathRelative = errors.New("project path must be absolute")
	ErrBaseNameRequired    = errors.New("image base name could not be determined")
	ErrHostNotConfigured   = errors.New("no target remote host configured")
	ErrStackNotConfigured  = errors.New("no target stack path configured")
)

// =============================================================================
// Project
// =============================================================================

// Project is a local source directory that builds into one image.
type Project struct {
	Path string `json:"path"`

	// ImageBaseName overrides the name derived from Path.
	ImageBaseName string `json:"image_base_name,omitempty"`

	// Deploy target defaults
	DefaultServerID    *int64 `json:"default_server_id,omitempty"`
	DefaultComposePath string `json:"default_compose_path,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewProject creates a project for an absolute directory path.
func NewProject(path string) (*Project, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrProjectPathRequired
	}
	if !filepath.IsAbs(path) {
		return nil, ErrProjectPathRelative
	}
	return &Project{
		Path:      filepath.Clean(path),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// BaseName returns the image base name: the override when set, otherwise
// the lowercased final segment of the project path.
//
// Example:
//
//	Project{Path: "/src/MyService/"}.BaseName() // returns "myservice"
func (p Project) BaseName() string {
	if name := strings.TrimSpace(p.ImageBaseName); name != "" {
		return name
	}
	return DeriveBaseName(p.Path)
}

// DeriveBaseName returns the lowercased last segment of a directory path.
func DeriveBaseName(path string) string {
	trimmed := strings.TrimRight(path, `/\`)
	if trimmed == "" {
		return ""
	}
	if i := strings.LastIndexAny(trimmed, `/\`); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	return strings.ToLower(trimmed)
}
