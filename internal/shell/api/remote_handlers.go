package api

import (
	"net/http"
	"strings"

	"github.com/artpar/panelship/internal/core/compose"
	"github.com/artpar/panelship/internal/shell/onepanel"
)

// =============================================================================
// Remote Container Handlers
// =============================================================================

func (h *Handler) handleRemoteContainers(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.loadPanel(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := panel.ListContainers(r.Context(), onepanel.ContainerQuery{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", 100),
		Name:     q.Get("name"),
		State:    q.Get("state"),
	})
	if err != nil {
		h.writeErr(w, "list remote containers", err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) handleRemoteContainerOperate(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.loadPanel(w, r)
	if !ok {
		return
	}

	var req ContainerOperationRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Names) == 0 {
		h.writeError(w, http.StatusBadRequest, "names are required", "validation_error")
		return
	}
	op, err := onepanel.ParseContainerOperation(req.Operation)
	if err != nil {
		h.writeErr(w, "operate remote containers", err)
		return
	}

	if err := panel.OperateContainers(r.Context(), req.Names, op); err != nil {
		h.writeErr(w, "operate remote containers", err)
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *Handler) handleRemoteContainerLogs(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.loadPanel(w, r)
	if !ok {
		return
	}

	name := r.URL.Query().Get("container")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "container is required", "validation_error")
		return
	}

	logs, err := panel.ContainerLogs(r.Context(), name, queryInt(r, "tail", 100))
	if err != nil {
		h.writeErr(w, "remote container logs", err)
		return
	}
	h.writeJSON(w, http.StatusOK, LogsResponse{Logs: logs})
}

// =============================================================================
// Remote Compose Handlers
// =============================================================================

func (h *Handler) handleRemoteComposes(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.loadPanel(w, r)
	if !ok {
		return
	}

	stacks, err := panel.ListStacks(r.Context())
	if err != nil {
		h.writeErr(w, "list remote composes", err)
		return
	}
	h.writeJSON(w, http.StatusOK, stacks)
}

// handleRemoteComposeContent returns a stack definition. Services are
// listed when the document parses.
func (h *Handler) handleRemoteComposeContent(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.loadPanel(w, r)
	if !ok {
		return
	}

	var req ComposeContentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		h.writeError(w, http.StatusBadRequest, "path is required", "validation_error")
		return
	}

	content, err := panel.ReadFile(r.Context(), req.Path)
	if err != nil {
		h.writeErr(w, "read remote compose", err)
		return
	}

	resp := ComposeContentResponse{Path: req.Path, Content: content}
	if services, err := compose.ServiceImages(content); err == nil {
		resp.Services = services
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRemoteComposeUpdate(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.loadPanel(w, r)
	if !ok {
		return
	}

	var req ComposeUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Path == "" {
		h.writeError(w, http.StatusBadRequest, "name and path are required", "validation_error")
		return
	}

	if err := panel.UpdateStack(r.Context(), req.Name, req.Path, req.Content); err != nil {
		h.writeErr(w, "update remote compose", err)
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

func (h *Handler) handleRemoteComposeOperate(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.loadPanel(w, r)
	if !ok {
		return
	}

	var req ComposeOperationRequest
	if !h.decode(w, r, &req) {
		return
	}
	op, err := onepanel.ParseStackOperation(req.Operation)
	if err != nil {
		h.writeErr(w, "operate remote compose", err)
		return
	}

	if err := panel.OperateStack(r.Context(), req.Name, req.Path, op); err != nil {
		h.writeErr(w, "operate remote compose", err)
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// =============================================================================
// Remote Image Handlers
// =============================================================================

func (h *Handler) handleRemoteImages(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.loadPanel(w, r)
	if !ok {
		return
	}

	images, err := panel.ListImages(r.Context(), r.URL.Query().Get("base"))
	if err != nil {
		h.writeErr(w, "list remote images", err)
		return
	}
	h.writeJSON(w, http.StatusOK, images)
}

func (h *Handler) handleRemoteImageRemove(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.loadPanel(w, r)
	if !ok {
		return
	}

	var req RemoveImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		h.writeError(w, http.StatusBadRequest, "id is required", "validation_error")
		return
	}

	if err := panel.RemoveImage(r.Context(), req.ID, req.Force); err != nil {
		h.writeErr(w, "remove remote image", err)
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// loadPanel returns a client for the server named by {id}.
func (h *Handler) loadPanel(w http.ResponseWriter, r *http.Request) (RemotePanel, bool) {
	server, ok := h.loadServer(w, r)
	if !ok {
		return nil, false
	}
	return h.panels(*server), true
}
