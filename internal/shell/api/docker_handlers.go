package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// =============================================================================
// Local Engine Handlers
// =============================================================================

func (h *Handler) handleDockerInfo(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	info, err := h.engine.Info(r.Context())
	if err != nil {
		h.writeErr(w, "docker info", err)
		return
	}
	h.writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleDockerTags(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	base := strings.TrimSpace(r.URL.Query().Get("base"))
	if base == "" {
		h.writeError(w, http.StatusBadRequest, "base is required", "validation_error")
		return
	}

	images, err := h.engine.ListImageTags(r.Context(), base)
	if err != nil {
		h.writeErr(w, "docker tags", err)
		return
	}
	h.writeJSON(w, http.StatusOK, images)
}

func (h *Handler) handleDockerImages(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	images, err := h.engine.ListImages(r.Context())
	if err != nil {
		h.writeErr(w, "docker images", err)
		return
	}
	h.writeJSON(w, http.StatusOK, images)
}

func (h *Handler) handleDockerBuild(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	var req BuildRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.pipeline.Build(r.Context(), req.ProjectPath, req.Version)
	if err != nil {
		h.writeErr(w, "docker build", err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleDockerContainers(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))

	containers, err := h.engine.ListContainers(r.Context(), all)
	if err != nil {
		h.writeErr(w, "docker containers", err)
		return
	}
	h.writeJSON(w, http.StatusOK, containers)
}

func (h *Handler) handleDockerStart(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	if err := h.engine.StartContainer(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeErr(w, "docker start", err)
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "started"})
}

func (h *Handler) handleDockerStop(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}

	var timeout *time.Duration
	if secs := queryInt(r, "timeout", -1); secs >= 0 {
		d := time.Duration(secs) * time.Second
		timeout = &d
	}

	if err := h.engine.StopContainer(r.Context(), chi.URLParam(r, "id"), timeout); err != nil {
		h.writeErr(w, "docker stop", err)
		return
	}
	h.writeJSON(w, http.StatusOK, StatusResponse{Status: "stopped"})
}

func (h *Handler) handleDockerRemove(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	if err := h.engine.RemoveContainer(r.Context(), chi.URLParam(r, "id"), force); err != nil {
		h.writeErr(w, "docker remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDockerLogs(w http.ResponseWriter, r *http.Request) {
	if !h.requireEngine(w) {
		return
	}
	logs, err := h.engine.ContainerLogs(r.Context(), chi.URLParam(r, "id"), queryInt(r, "tail", 100))
	if err != nil {
		h.writeErr(w, "docker logs", err)
		return
	}
	h.writeJSON(w, http.StatusOK, LogsResponse{Logs: logs})
}

func (h *Handler) requireEngine(w http.ResponseWriter) bool {
	if h.engine == nil {
		h.writeError(w, http.StatusServiceUnavailable, "container engine is not configured", "engine_unavailable")
		return false
	}
	return true
}
