package api

import (
	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/workers"
)

// =============================================================================
// Request Types
// =============================================================================

// ServerRequest is the body for creating or updating a remote host. On
// update an empty credential keeps the stored one.
type ServerRequest struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Credential string `json:"credential"`
}

// ProjectRequest is the body for registering or configuring a project.
type ProjectRequest struct {
	Path               string `json:"path"`
	ImageBaseName      string `json:"image_base_name,omitempty"`
	DefaultServerID    *int64 `json:"default_server_id,omitempty"`
	DefaultComposePath string `json:"default_compose_path,omitempty"`
}

// DeployRequest names the project to deploy.
type DeployRequest struct {
	ProjectPath string `json:"project_path"`
}

// PushImageRequest names an image to ship to a host.
type PushImageRequest struct {
	ServerID int64  `json:"server_id"`
	Image    string `json:"image"`
}

// BuildRequest names the project to build. An empty version is inferred.
type BuildRequest struct {
	ProjectPath string `json:"project_path"`
	Version     string `json:"version,omitempty"`
}

// ContainerOperationRequest applies an operation to remote containers.
type ContainerOperationRequest struct {
	Names     []string `json:"names"`
	Operation string   `json:"operation"`
}

// ComposeContentRequest names a stack definition to read.
type ComposeContentRequest struct {
	Path string `json:"path"`
}

// ComposeUpdateRequest replaces a stack definition.
type ComposeUpdateRequest struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ComposeOperationRequest applies an operation to a stack.
type ComposeOperationRequest struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Operation string `json:"operation"`
}

// RemoveImageRequest removes an image from a host.
type RemoveImageRequest struct {
	ID    string `json:"id"`
	Force bool   `json:"force,omitempty"`
}

// NotificationRequest records a client-side notification.
type NotificationRequest struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	ServerName string `json:"server_name,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// ServerResponse is a remote host without its credential, plus the last
// monitor result when there is one.
type ServerResponse struct {
	domain.RemoteHost
	Health *workers.HostStatus `json:"health,omitempty"`
}

// ServerStatusResponse reports a live check of a host.
type ServerStatusResponse struct {
	ServerID  int64   `json:"server_id"`
	Name      string  `json:"name"`
	Reachable bool    `json:"reachable"`
	LatencyMs int64   `json:"latency_ms"`
	OS        *OSInfo `json:"os,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// OSInfo is the host OS report.
type OSInfo struct {
	OS             string `json:"os"`
	Platform       string `json:"platform"`
	PlatformFamily string `json:"platform_family"`
	KernelArch     string `json:"kernel_arch"`
	KernelVersion  string `json:"kernel_version"`
	DiskSize       uint64 `json:"disk_size"`
}

// DeployResponse reports a finished deployment.
type DeployResponse struct {
	Version    string `json:"version"`
	Image      string `json:"image"`
	ServerName string `json:"server_name"`
	StackName  string `json:"stack_name"`
	References int    `json:"references"`
	DurationMs int64  `json:"duration_ms"`
}

// ComposeContentResponse is a stack definition and the images it declares.
type ComposeContentResponse struct {
	Path     string            `json:"path"`
	Content  string            `json:"content"`
	Services map[string]string `json:"services,omitempty"`
}

// LogsResponse carries container output.
type LogsResponse struct {
	Logs string `json:"logs"`
}

// ClearedResponse reports how many records were removed.
type ClearedResponse struct {
	Deleted int64 `json:"deleted"`
}

// StatusResponse acknowledges an operation without a payload.
type StatusResponse struct {
	Status string `json:"status"`
}

// VersionResponse reports the server build.
type VersionResponse struct {
	Version string `json:"version"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Stage string `json:"stage,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
