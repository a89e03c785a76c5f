package api

import (
	"net/http"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/api/openapi"
	"github.com/artpar/panelship/internal/shell/deploy"
	"github.com/artpar/panelship/internal/shell/docker"
	"github.com/artpar/panelship/internal/shell/onepanel"
	"github.com/artpar/panelship/internal/shell/workers"
)

// endpoints describes Routes for /openapi.json. Keep the two in step.
var endpoints = []openapi.Endpoint{
	// Health
	{Method: http.MethodGet, Path: "/health", ID: "health", Summary: "Liveness", Tag: "Health", Response: HealthResponse{}},
	{Method: http.MethodGet, Path: "/ready", ID: "ready", Summary: "Readiness", Tag: "Health", Response: ReadyResponse{}},
	{Method: http.MethodGet, Path: "/api/version", ID: "version", Summary: "Server version", Tag: "Health", Response: VersionResponse{}},

	// Servers
	{Method: http.MethodGet, Path: "/api/servers", ID: "listServers", Summary: "List remote hosts", Tag: "Servers", Response: []ServerResponse{}},
	{Method: http.MethodPost, Path: "/api/servers", ID: "createServer", Summary: "Add a remote host", Tag: "Servers", Request: ServerRequest{}, Response: ServerResponse{}, Status: http.StatusCreated},
	{Method: http.MethodGet, Path: "/api/servers/{id}", ID: "getServer", Summary: "Get a remote host", Tag: "Servers", Response: ServerResponse{}},
	{Method: http.MethodPut, Path: "/api/servers/{id}", ID: "updateServer", Summary: "Update a remote host", Tag: "Servers", Request: ServerRequest{}, Response: ServerResponse{}},
	{Method: http.MethodDelete, Path: "/api/servers/{id}", ID: "deleteServer", Summary: "Remove a remote host", Tag: "Servers", Status: http.StatusNoContent},
	{Method: http.MethodGet, Path: "/api/servers/{id}/status", ID: "serverStatus", Summary: "Check a remote host now", Tag: "Servers", Response: ServerStatusResponse{}},

	// Remote host resources
	{Method: http.MethodGet, Path: "/api/servers/{id}/containers", ID: "listRemoteContainers", Summary: "List containers on a host", Tag: "Remote", Query: []string{"page", "page_size", "name", "state"}, Response: onepanel.ContainerPage{}},
	{Method: http.MethodPost, Path: "/api/servers/{id}/containers/operate", ID: "operateRemoteContainers", Summary: "Start, stop or remove containers on a host", Tag: "Remote", Request: ContainerOperationRequest{}, Response: StatusResponse{}},
	{Method: http.MethodGet, Path: "/api/servers/{id}/containers/logs", ID: "remoteContainerLogs", Summary: "Tail a container log on a host", Tag: "Remote", Query: []string{"container", "tail"}, Response: LogsResponse{}},
	{Method: http.MethodGet, Path: "/api/servers/{id}/composes", ID: "listRemoteComposes", Summary: "List compose stacks on a host", Tag: "Remote", Response: []domain.StackDescriptor{}},
	{Method: http.MethodPost, Path: "/api/servers/{id}/composes/content", ID: "readRemoteCompose", Summary: "Read a stack definition", Tag: "Remote", Request: ComposeContentRequest{}, Response: ComposeContentResponse{}},
	{Method: http.MethodPost, Path: "/api/servers/{id}/composes/content/update", ID: "updateRemoteCompose", Summary: "Replace a stack definition", Tag: "Remote", Request: ComposeUpdateRequest{}, Response: StatusResponse{}},
	{Method: http.MethodPost, Path: "/api/servers/{id}/composes/operate", ID: "operateRemoteCompose", Summary: "Bring a stack up or down", Tag: "Remote", Request: ComposeOperationRequest{}, Response: StatusResponse{}},
	{Method: http.MethodGet, Path: "/api/servers/{id}/images", ID: "listRemoteImages", Summary: "List images on a host", Tag: "Remote", Query: []string{"base"}, Response: []onepanel.Image{}},
	{Method: http.MethodPost, Path: "/api/servers/{id}/images/remove", ID: "removeRemoteImage", Summary: "Remove an image from a host", Tag: "Remote", Request: RemoveImageRequest{}, Response: StatusResponse{}},

	// Projects
	{Method: http.MethodGet, Path: "/api/projects", ID: "listProjects", Summary: "List registered projects", Tag: "Projects", Response: []domain.Project{}},
	{Method: http.MethodPost, Path: "/api/projects", ID: "createProject", Summary: "Register a project", Tag: "Projects", Request: ProjectRequest{}, Response: domain.Project{}, Status: http.StatusCreated},
	{Method: http.MethodDelete, Path: "/api/projects", ID: "deleteProject", Summary: "Unregister a project", Tag: "Projects", Query: []string{"path"}, Status: http.StatusNoContent},
	{Method: http.MethodGet, Path: "/api/projects/config", ID: "getProjectConfig", Summary: "Get a project's deploy defaults", Tag: "Projects", Query: []string{"path"}, Response: domain.Project{}},
	{Method: http.MethodPut, Path: "/api/projects/config", ID: "updateProjectConfig", Summary: "Set a project's deploy defaults", Tag: "Projects", Request: ProjectRequest{}, Response: domain.Project{}},

	// Deploy
	{Method: http.MethodPost, Path: "/api/deploy", ID: "deploy", Summary: "Build, ship and roll out a project", Tag: "Deploy", Request: DeployRequest{}, Response: DeployResponse{}},
	{Method: http.MethodPost, Path: "/api/deploy/async", ID: "deployAsync", Summary: "Queue a deployment", Tag: "Deploy", Request: DeployRequest{}, Response: workers.Handle{}, Status: http.StatusAccepted},
	{Method: http.MethodPost, Path: "/api/deploy/image", ID: "pushImage", Summary: "Ship a local image to a host", Tag: "Deploy", Request: PushImageRequest{}, Response: deploy.PushResult{}},
	{Method: http.MethodGet, Path: "/api/image-deployments", ID: "imageDeployments", Summary: "Find stacks that run an image", Tag: "Deploy", Query: []string{"image_base"}, Response: []deploy.ImageDeployment{}},

	// Local engine
	{Method: http.MethodGet, Path: "/api/docker/info", ID: "dockerInfo", Summary: "Local engine info", Tag: "Docker", Response: docker.EngineInfo{}},
	{Method: http.MethodGet, Path: "/api/docker/tags", ID: "dockerTags", Summary: "Local images of a base name", Tag: "Docker", Query: []string{"base"}, Response: []docker.ImageSummary{}},
	{Method: http.MethodGet, Path: "/api/docker/images", ID: "dockerImages", Summary: "Local images", Tag: "Docker", Response: []docker.ImageSummary{}},
	{Method: http.MethodPost, Path: "/api/docker/build", ID: "dockerBuild", Summary: "Build a project's image", Tag: "Docker", Request: BuildRequest{}, Response: deploy.BuildOutcome{}},
	{Method: http.MethodGet, Path: "/api/docker/containers", ID: "dockerContainers", Summary: "Local containers", Tag: "Docker", Query: []string{"all"}, Response: []docker.ContainerInfo{}},
	{Method: http.MethodPost, Path: "/api/docker/containers/{id}/start", ID: "dockerStart", Summary: "Start a local container", Tag: "Docker", Response: StatusResponse{}},
	{Method: http.MethodPost, Path: "/api/docker/containers/{id}/stop", ID: "dockerStop", Summary: "Stop a local container", Tag: "Docker", Query: []string{"timeout"}, Response: StatusResponse{}},
	{Method: http.MethodDelete, Path: "/api/docker/containers/{id}", ID: "dockerRemove", Summary: "Remove a local container", Tag: "Docker", Query: []string{"force"}, Status: http.StatusNoContent},
	{Method: http.MethodGet, Path: "/api/docker/containers/{id}/logs", ID: "dockerLogs", Summary: "Tail a local container log", Tag: "Docker", Query: []string{"tail"}, Response: LogsResponse{}},

	// Notifications
	{Method: http.MethodGet, Path: "/api/notifications", ID: "listNotifications", Summary: "Activity feed, newest first", Tag: "Notifications", Query: []string{"limit", "offset"}, Response: []domain.Notification{}},
	{Method: http.MethodPost, Path: "/api/notifications", ID: "createNotification", Summary: "Record a notification", Tag: "Notifications", Request: NotificationRequest{}, Response: domain.Notification{}, Status: http.StatusCreated},
	{Method: http.MethodDelete, Path: "/api/notifications", ID: "clearNotifications", Summary: "Clear the feed", Tag: "Notifications", Response: ClearedResponse{}},
}
