package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/artpar/panelship/internal/shell/deploy"
)

// =============================================================================
// Deploy Handlers
// =============================================================================

// handleDeploy runs the pipeline to completion before answering.
func (h *Handler) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.pipeline.Run(r.Context(), req.ProjectPath)
	deploy.Notify(context.WithoutCancel(r.Context()), h.store, h.logger, res, err)
	if err != nil {
		h.writeErr(w, "deploy", err)
		return
	}

	h.writeJSON(w, http.StatusOK, DeployResponse{
		Version:    res.Version,
		Image:      res.Image,
		ServerName: res.ServerName,
		StackName:  res.StackName,
		References: res.References,
		DurationMs: res.Duration.Milliseconds(),
	})
}

// handleDeployAsync queues a deployment and answers 202 with its handle.
// The outcome is written to the notification feed.
func (h *Handler) handleDeployAsync(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProjectPath) == "" {
		h.writeError(w, http.StatusBadRequest, "project_path is required", "validation_error")
		return
	}

	handle, err := h.background.DeployAsync(req.ProjectPath)
	if err != nil {
		h.writeErr(w, "queue deploy", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, handle)
}

func (h *Handler) handlePushImage(w http.ResponseWriter, r *http.Request) {
	var req PushImageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ServerID <= 0 || strings.TrimSpace(req.Image) == "" {
		h.writeError(w, http.StatusBadRequest, "server_id and image are required", "validation_error")
		return
	}

	res, err := h.pipeline.PushImage(r.Context(), req.ServerID, req.Image)
	if serr := h.store.CreateNotification(context.WithoutCancel(r.Context()), deploy.PushNotification(res, err)); serr != nil {
		h.logger.Error("failed to record push notification", "error", serr)
	}
	if err != nil {
		h.writeErr(w, "push image", err)
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleImageDeployments(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSpace(r.URL.Query().Get("image_base"))
	if base == "" {
		h.writeError(w, http.StatusBadRequest, "image_base is required", "validation_error")
		return
	}

	found, err := h.pipeline.ImageDeployments(r.Context(), base)
	if err != nil {
		h.writeErr(w, "image deployments", err)
		return
	}
	h.writeJSON(w, http.StatusOK, found)
}
