package docker

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Container errors
	ErrContainerNotFound = errors.New("container not found")

	// Image errors
	ErrImageNotFound    = errors.New("image not found")
	ErrBuildFailed      = errors.New("image build failed")
	ErrSaveFailed       = errors.New("image save failed")
	ErrBuildContext     = errors.New("invalid build context")
	ErrImagePullFailed  = errors.New("image pull failed")
	ErrImageInUse       = errors.New("image is in use")
	ErrInvalidReference = errors.New("invalid image reference")

	// Connection errors
	ErrConnectionFailed = errors.New("docker connection failed")
)

// DockerError wraps errors with additional context.
type DockerError struct {
	Op      string // Operation that failed
	Entity  string // Entity type (container, image)
	ID      string // Entity ID if applicable
	Message string
	Err     error
}

func (e *DockerError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// NewDockerError creates a new DockerError.
func NewDockerError(op, entity, id, message string, err error) *DockerError {
	return &DockerError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}
