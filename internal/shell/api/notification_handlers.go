package api

import (
	"net/http"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/store"
)

// =============================================================================
// Notification Handlers
// =============================================================================

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()
	opts.Limit = queryInt(r, "limit", opts.Limit)
	opts.Offset = queryInt(r, "offset", opts.Offset)

	notes, err := h.store.ListNotifications(r.Context(), opts)
	if err != nil {
		h.writeErr(w, "list notifications", err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	h.writeJSON(w, http.StatusOK, notes)
}

func (h *Handler) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req NotificationRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := domain.NewNotification(req.Type, req.Title, req.Detail, domain.NotificationStatus(req.Status))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	n.DurationMs = req.DurationMs
	n.ServerName = req.ServerName

	if err := h.store.CreateNotification(r.Context(), n); err != nil {
		h.writeErr(w, "create notification", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, n)
}

func (h *Handler) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.ClearNotifications(r.Context())
	if err != nil {
		h.writeErr(w, "clear notifications", err)
		return
	}
	h.logger.Info("notifications cleared", "deleted", n)
	h.writeJSON(w, http.StatusOK, ClearedResponse{Deleted: n})
}
