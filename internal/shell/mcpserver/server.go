// Package mcpserver exposes the deploy operations to agents as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/deploy"
)

// Catalog is the store surface the tools read and record to.
type Catalog interface {
	ListProjects(ctx context.Context) ([]domain.Project, error)
	ListServers(ctx context.Context) ([]domain.RemoteHost, error)
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// Deployer runs builds, deployments and pushes.
type Deployer interface {
	Run(ctx context.Context, projectPath string) (*deploy.Result, error)
	Build(ctx context.Context, projectPath, tag string) (*deploy.BuildOutcome, error)
	PushImage(ctx context.Context, serverID int64, imageRef string) (*deploy.PushResult, error)
}

// Tool names.
const (
	ToolListProjects   = "list_projects"
	ToolListServers    = "list_servers"
	ToolBuildImage     = "build_image"
	ToolBuildAndDeploy = "build_and_deploy"
	ToolPushImage      = "push_image"
)

type tools struct {
	catalog  Catalog
	deployer Deployer
	logger   *slog.Logger
}

// New creates the MCP server with every tool registered.
func New(catalog Catalog, deployer Deployer, version string, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &tools{
		catalog:  catalog,
		deployer: deployer,
		logger:   logger.With("component", "mcp"),
	}

	s := server.NewMCPServer("panelship", version,
		server.WithToolCapabilities(false),
		server.WithInstructions("Build container images of registered projects and roll them out to 1Panel hosts."),
	)

	s.AddTool(mcp.NewTool(ToolListProjects,
		mcp.WithDescription("List registered projects with their deploy targets"),
		mcp.WithReadOnlyHintAnnotation(true),
	), t.listProjects)

	s.AddTool(mcp.NewTool(ToolListServers,
		mcp.WithDescription("List remote 1Panel hosts"),
		mcp.WithReadOnlyHintAnnotation(true),
	), t.listServers)

	s.AddTool(mcp.NewTool(ToolBuildImage,
		mcp.WithDescription("Build a project's image locally without shipping it"),
		mcp.WithString("project_path", mcp.Required(), mcp.Description("Absolute path of a registered project")),
		mcp.WithString("version", mcp.Description("Tag to build; inferred from local images when empty")),
	), t.buildImage)

	s.AddTool(mcp.NewTool(ToolBuildAndDeploy,
		mcp.WithDescription("Build, ship and roll out a project to its configured host and stack. Blocks until the stack is restarted."),
		mcp.WithString("project_path", mcp.Required(), mcp.Description("Absolute path of a registered project")),
		mcp.WithDestructiveHintAnnotation(true),
	), t.buildAndDeploy)

	s.AddTool(mcp.NewTool(ToolPushImage,
		mcp.WithDescription("Ship a local image to a host and load it there"),
		mcp.WithNumber("server_id", mcp.Required(), mcp.Description("Remote host id")),
		mcp.WithString("image", mcp.Required(), mcp.Description("Image reference, e.g. app:v1.2.0")),
	), t.pushImage)

	return s
}

// Handler serves s over streamable HTTP.
func Handler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(s, server.WithEndpointPath("/"))
}

// =============================================================================
// Tool Handlers
// =============================================================================

func (t *tools) listProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projects, err := t.catalog.ListProjects(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list projects: %v", err)), nil
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	return jsonResult(projects)
}

// listServers omits credentials; RemoteHost never serializes them.
func (t *tools) listServers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	servers, err := t.catalog.ListServers(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list servers: %v", err)), nil
	}
	if servers == nil {
		servers = []domain.RemoteHost{}
	}
	return jsonResult(servers)
}

func (t *tools) buildImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := t.deployer.Build(ctx, path, req.GetString("version", ""))
	if err != nil {
		return stageError("build", err), nil
	}
	return jsonResult(out)
}

func (t *tools) buildAndDeploy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("project_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t.logger.Info("deploy requested", "project", path)
	res, err := t.deployer.Run(ctx, path)
	deploy.Notify(context.WithoutCancel(ctx), t.catalog, t.logger, res, err)
	if err != nil {
		return stageError("deploy", err), nil
	}
	return jsonResult(res)
}

func (t *tools) pushImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireFloat("server_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	image, err := req.RequireString("image")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.deployer.PushImage(ctx, int64(id), image)
	if serr := t.catalog.CreateNotification(context.WithoutCancel(ctx), deploy.PushNotification(res, err)); serr != nil {
		t.logger.Error("failed to record push notification", "error", serr)
	}
	if err != nil {
		return stageError("push", err), nil
	}
	return jsonResult(res)
}

// =============================================================================
// Helpers
// =============================================================================

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// stageError reports a pipeline failure with its kind. The stage is part
// of err's message.
func stageError(op string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s failed (%s): %v", op, deploy.Kind(err), err))
}
