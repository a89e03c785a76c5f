package domain

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Image Reference
// =============================================================================

// ImageReference is an image base name plus tag.
type ImageReference struct {
	Base string `json:"base"`
	Tag  string `json:"tag"`
}

// ErrImageReferenceInvalid is returned for references without a base name.
var ErrImageReferenceInvalid = errors.New("invalid image reference")

// ParseImageReference splits "base:tag". The tag defaults to "latest";
// a colon that belongs to a registry port is not a tag separator.
//
// Example:
//
//	ParseImageReference("registry:5000/app:v2") // {Base: "registry:5000/app", Tag: "v2"}
func ParseImageReference(ref string) (ImageReference, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ImageReference{}, ErrImageReferenceInvalid
	}

	base, tag := ref, "latest"
	if i := strings.LastIndex(ref, ":"); i > strings.LastIndex(ref, "/") {
		base, tag = ref[:i], ref[i+1:]
	}
	if base == "" || tag == "" {
		return ImageReference{}, ErrImageReferenceInvalid
	}
	return ImageReference{Base: base, Tag: tag}, nil
}

// String returns "base:tag".
func (r ImageReference) String() string {
	return r.Base + ":" + r.Tag
}

// WithTag returns a copy of the reference with a different tag.
func (r ImageReference) WithTag(tag string) ImageReference {
	return ImageReference{Base: r.Base, Tag: tag}
}

// =============================================================================
// Stack Descriptor
// =============================================================================

// StackDescriptor identifies a compose stack on a remote host.
type StackDescriptor struct {
	Name            string `json:"name"`
	Path            string `json:"path"`
	ContainerNumber int    `json:"container_number,omitempty"`
}

// FindStackByPath returns the stack whose file path equals path exactly.
func FindStackByPath(stacks []StackDescriptor, path string) (StackDescriptor, bool) {
	for _, s := range stacks {
		if s.Path == path {
			return s, true
		}
	}
	return StackDescriptor{}, false
}

// =============================================================================
// Deployment Request
// =============================================================================

// DeploymentRequest ties one project to its deploy target for the duration
// of a single pipeline run. It is never persisted.
type DeploymentRequest struct {
	ProjectPath string
	BaseName    string
	ServerID    int64
	StackPath   string
}

// NewDeploymentRequest checks that a project has everything a deploy needs.
func NewDeploymentRequest(p Project) (*DeploymentRequest, error) {
	base := p.BaseName()
	if base == "" {
		return nil, ErrBaseNameRequired
	}
	if p.DefaultServerID == nil {
		return nil, ErrHostNotConfigured
	}
	stackPath := strings.TrimSpace(p.DefaultComposePath)
	if stackPath == "" {
		return nil, ErrStackNotConfigured
	}
	return &DeploymentRequest{
		ProjectPath: p.Path,
		BaseName:    base,
		ServerID:    *p.DefaultServerID,
		StackPath:   stackPath,
	}, nil
}

// Image returns the reference for a given tag of the request's image.
func (r DeploymentRequest) Image(tag string) ImageReference {
	return ImageReference{Base: r.BaseName, Tag: tag}
}

func (r DeploymentRequest) String() string {
	return fmt.Sprintf("%s -> host %d %s", r.BaseName, r.ServerID, r.StackPath)
}
