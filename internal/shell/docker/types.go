// Package docker provides a client for the local Docker engine: image
// builds, archives, and container housekeeping.
package docker

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// Client Interface
// =============================================================================

// Client is the local engine surface the rest of the server uses.
type Client interface {
	Ping(ctx context.Context) error
	Info(ctx context.Context) (*EngineInfo, error)
	Close() error

	// Images
	ListImages(ctx context.Context) ([]ImageSummary, error)
	ListImageTags(ctx context.Context, base string) ([]ImageSummary, error)
	BuildImage(ctx context.Context, spec BuildSpec) (*BuildResult, error)
	SaveImage(ctx context.Context, ref, dest string) error
	PullImage(ctx context.Context, ref string) error
	RemoveImage(ctx context.Context, id string, force bool) error
	PruneImages(ctx context.Context) (*PruneReport, error)

	// Containers
	ListContainers(ctx context.Context, all bool) ([]ContainerInfo, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	ContainerLogs(ctx context.Context, id string, tail int) (string, error)
}

// =============================================================================
// Image Types
// =============================================================================

// ImageSummary describes one local image.
type ImageSummary struct {
	ID        string    `json:"id"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// BuildSpec describes an image build from a local directory.
type BuildSpec struct {
	Dir        string   // build context
	Tags       []string // every tag applied to the result
	Dockerfile string   // relative to Dir, defaults to "Dockerfile"
	NoCache    bool
	// Output, when set, receives the build log as it streams.
	Output io.Writer
}

// BuildResult is the outcome of a successful build.
type BuildResult struct {
	Log string `json:"log"`
}

// PruneReport summarizes an image prune.
type PruneReport struct {
	Deleted        []string `json:"deleted"`
	SpaceReclaimed uint64   `json:"space_reclaimed"`
}

// =============================================================================
// Container Types
// =============================================================================

// ContainerInfo describes one local container.
type ContainerInfo struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Image     string            `json:"image"`
	State     string            `json:"state"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Ports     []string          `json:"ports,omitempty"` // e.g. "0.0.0.0:8080->80/tcp"
	Labels    map[string]string `json:"labels,omitempty"`
}

// =============================================================================
// Engine Info
// =============================================================================

// EngineInfo is a summary of the daemon.
type EngineInfo struct {
	ServerVersion     string `json:"server_version"`
	OperatingSystem   string `json:"operating_system"`
	Architecture      string `json:"architecture"`
	NCPU              int    `json:"ncpu"`
	MemTotal          int64  `json:"mem_total"`
	Containers        int    `json:"containers"`
	ContainersRunning int    `json:"containers_running"`
	Images            int    `json:"images"`
}
