// Package api provides the HTTP handlers for panelship.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artpar/panelship/internal/core/compose"
	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/api/openapi"
	"github.com/artpar/panelship/internal/shell/deploy"
	"github.com/artpar/panelship/internal/shell/docker"
	"github.com/artpar/panelship/internal/shell/metrics"
	"github.com/artpar/panelship/internal/shell/onepanel"
	"github.com/artpar/panelship/internal/shell/store"
	"github.com/artpar/panelship/internal/shell/workers"
)

// =============================================================================
// Collaborators
// =============================================================================

// RemotePanel is the part of the 1Panel client the API exposes.
type RemotePanel interface {
	Ping(ctx context.Context) error
	OSInfo(ctx context.Context) (*onepanel.OSInfo, error)
	ListContainers(ctx context.Context, q onepanel.ContainerQuery) (*onepanel.ContainerPage, error)
	OperateContainers(ctx context.Context, names []string, op onepanel.ContainerOperation) error
	ContainerLogs(ctx context.Context, name string, tail int) (string, error)
	ListStacks(ctx context.Context) ([]domain.StackDescriptor, error)
	ReadFile(ctx context.Context, path string) (string, error)
	UpdateStack(ctx context.Context, name, path, content string) error
	OperateStack(ctx context.Context, name, path string, op onepanel.StackOperation) error
	ListImages(ctx context.Context, base string) ([]onepanel.Image, error)
	RemoveImage(ctx context.Context, id string, force bool) error
}

// PanelFactory returns a client for a stored host.
type PanelFactory func(h domain.RemoteHost) RemotePanel

// OnePanelFactory adapts a onepanel.Factory to a PanelFactory.
func OnePanelFactory(f onepanel.Factory) PanelFactory {
	return func(h domain.RemoteHost) RemotePanel {
		return f.ForHost(h)
	}
}

// =============================================================================
// Handler
// =============================================================================

// Config wires the handler. Monitor, Metrics and MCP are optional.
type Config struct {
	Store      store.Store
	Engine     docker.Client
	Panels     PanelFactory
	Pipeline   *deploy.Pipeline
	Background *deploy.Background
	Monitor    *workers.HostMonitor
	Metrics    *metrics.Metrics
	MCP        http.Handler
	Version    string
	Logger     *slog.Logger
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	store      store.Store
	engine     docker.Client
	panels     PanelFactory
	pipeline   *deploy.Pipeline
	background *deploy.Background
	monitor    *workers.HostMonitor
	metrics    *metrics.Metrics
	mcp        http.Handler
	openapi    *openapi.Generator
	version    string
	logger     *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	h := &Handler{
		store:      cfg.Store,
		engine:     cfg.Engine,
		panels:     cfg.Panels,
		pipeline:   cfg.Pipeline,
		background: cfg.Background,
		monitor:    cfg.Monitor,
		metrics:    cfg.Metrics,
		mcp:        cfg.MCP,
		version:    cfg.Version,
		logger:     cfg.Logger.With("component", "api"),
	}
	h.openapi = openapi.NewGenerator(openapi.WithVersion(cfg.Version))
	h.openapi.Register(endpoints...)
	return h
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)
	r.Use(h.requestIDHeader)

	r.Handle("/metrics", h.metrics.Handler())
	r.Get("/openapi.json", h.openapi.Handler())
	if h.mcp != nil {
		r.Mount("/mcp", h.mcp)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.jsonContentType)

		// Health endpoints
		r.Get("/health", h.handleHealth)
		r.Get("/ready", h.handleReady)

		r.Route("/api", func(r chi.Router) {
			r.Get("/version", h.handleVersion)

			r.Route("/servers", func(r chi.Router) {
				r.Get("/", h.handleListServers)
				r.Post("/", h.handleCreateServer)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetServer)
					r.Put("/", h.handleUpdateServer)
					r.Delete("/", h.handleDeleteServer)
					r.Get("/status", h.handleServerStatus)

					r.Get("/containers", h.handleRemoteContainers)
					r.Post("/containers/operate", h.handleRemoteContainerOperate)
					r.Get("/containers/logs", h.handleRemoteContainerLogs)
					r.Get("/composes", h.handleRemoteComposes)
					r.Post("/composes/content", h.handleRemoteComposeContent)
					r.Post("/composes/content/update", h.handleRemoteComposeUpdate)
					r.Post("/composes/operate", h.handleRemoteComposeOperate)
					r.Get("/images", h.handleRemoteImages)
					r.Post("/images/remove", h.handleRemoteImageRemove)
				})
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", h.handleListProjects)
				r.Post("/", h.handleCreateProject)
				r.Delete("/", h.handleDeleteProject)
				r.Get("/config", h.handleGetProjectConfig)
				r.Put("/config", h.handleUpdateProjectConfig)
			})

			r.Post("/deploy", h.handleDeploy)
			r.Post("/deploy/async", h.handleDeployAsync)
			r.Post("/deploy/image", h.handlePushImage)
			r.Get("/image-deployments", h.handleImageDeployments)

			r.Route("/docker", func(r chi.Router) {
				r.Get("/info", h.handleDockerInfo)
				r.Get("/tags", h.handleDockerTags)
				r.Get("/images", h.handleDockerImages)
				r.Post("/build", h.handleDockerBuild)
				r.Get("/containers", h.handleDockerContainers)
				r.Post("/containers/{id}/start", h.handleDockerStart)
				r.Post("/containers/{id}/stop", h.handleDockerStop)
				r.Delete("/containers/{id}", h.handleDockerRemove)
				r.Get("/containers/{id}/logs", h.handleDockerLogs)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.handleListNotifications)
				r.Post("/", h.handleCreateNotification)
				r.Delete("/", h.handleClearNotifications)
			})
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if err := h.store.Ping(ctx); err != nil {
		checks["database"] = "failed"
		ready = false
	} else {
		checks["database"] = "ok"
	}

	// The engine is only needed for builds; its absence is reported, not fatal.
	if h.engine == nil {
		checks["docker"] = "disabled"
	} else if err := h.engine.Ping(ctx); err != nil {
		checks["docker"] = "failed"
	} else {
		checks["docker"] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, VersionResponse{Version: h.version})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeErr maps err onto a status and error code. Server-side failures are
// logged with op.
func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", "error", err, "code", code)
	}
	h.writeJSON(w, status, ErrorResponse{
		Error: err.Error(),
		Code:  code,
		Stage: string(deploy.StageOf(err)),
	})
}

// decode reads a JSON body into v, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return false
	}
	return true
}

// classify returns the HTTP status and error code for err.
func classify(err error) (int, string) {
	var apiErr *onepanel.APIError

	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, deploy.ErrStackNotFound),
		errors.Is(err, docker.ErrContainerNotFound),
		errors.Is(err, docker.ErrImageNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrDuplicateName), errors.Is(err, store.ErrDuplicateID),
		errors.Is(err, docker.ErrImageInUse):
		return http.StatusConflict, "conflict"
	case errors.Is(err, deploy.ErrEngineUnavailable):
		return http.StatusServiceUnavailable, "engine_unavailable"
	case isValidation(err):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, workers.ErrQueueFull), errors.Is(err, workers.ErrDispatcherStopped):
		return http.StatusServiceUnavailable, "queue_unavailable"
	case errors.Is(err, onepanel.ErrUnauthorized):
		return http.StatusBadGateway, "upstream_auth"
	case errors.Is(err, onepanel.ErrTransport):
		return http.StatusBadGateway, "upstream_unreachable"
	case errors.As(err, &apiErr),
		errors.Is(err, onepanel.ErrHTTPStatus),
		errors.Is(err, onepanel.ErrMalformedEnvelope),
		errors.Is(err, onepanel.ErrUnexpectedPayload):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, docker.ErrConnectionFailed):
		return http.StatusBadGateway, "engine_unreachable"
	}

	switch deploy.Kind(err) {
	case deploy.KindPatch:
		return http.StatusUnprocessableEntity, "patch_failed"
	case deploy.KindEngine:
		return http.StatusInternalServerError, "engine_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

var validationErrors = []error{
	deploy.ErrConfiguration,
	store.ErrForeignKey,
	onepanel.ErrInvalidOperation,
	docker.ErrInvalidReference,
	docker.ErrBuildContext,
	compose.ErrEmptyInput,
	domain.ErrImageReferenceInvalid,
	domain.ErrHostNameRequired,
	domain.ErrHostNameTooLong,
	domain.ErrHostAddrRequired,
	domain.ErrHostPortInvalid,
	domain.ErrCredentialRequired,
	domain.ErrProjectPathRequired,
	domain.ErrProjectPathRelative,
	domain.ErrNotificationTitleRequired,
}

func isValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// serverID parses the {id} URL parameter.
func (h *Handler) serverID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid server id", "validation_error")
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter, returning def when it is
// absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
