package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/artpar/panelship/internal/core/domain"
	"github.com/artpar/panelship/internal/shell/onepanel"
)

// =============================================================================
// Server Handlers
// =============================================================================

func (h *Handler) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := h.store.ListServers(r.Context())
	if err != nil {
		h.writeErr(w, "list servers", err)
		return
	}

	resp := make([]ServerResponse, 0, len(servers))
	for _, s := range servers {
		resp = append(resp, h.serverToResponse(s))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req ServerRequest
	if !h.decode(w, r, &req) {
		return
	}

	server, err := domain.NewRemoteHost(req.Name, req.Host, req.Port, req.Credential)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.CreateServer(r.Context(), server); err != nil {
		h.writeErr(w, "create server", err)
		return
	}

	h.logger.Info("server added", "server_id", server.ID, "server", server.Name, "host", server.Host)
	h.writeJSON(w, http.StatusCreated, h.serverToResponse(*server))
}

func (h *Handler) handleGetServer(w http.ResponseWriter, r *http.Request) {
	server, ok := h.loadServer(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.serverToResponse(*server))
}

func (h *Handler) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	server, ok := h.loadServer(w, r)
	if !ok {
		return
	}

	var req ServerRequest
	if !h.decode(w, r, &req) {
		return
	}

	server.Name = strings.TrimSpace(req.Name)
	server.Host = strings.TrimSpace(req.Host)
	server.Port = req.Port
	if cred := strings.TrimSpace(req.Credential); cred != "" {
		server.Credential = cred
	}
	if err := server.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	if err := h.store.UpdateServer(r.Context(), server); err != nil {
		h.writeErr(w, "update server", err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.serverToResponse(*server))
}

func (h *Handler) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.serverID(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteServer(r.Context(), id); err != nil {
		h.writeErr(w, "delete server", err)
		return
	}

	h.logger.Info("server removed", "server_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleServerStatus checks the host live. An unreachable host is a normal
// answer here, not an error.
func (h *Handler) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	server, ok := h.loadServer(w, r)
	if !ok {
		return
	}

	resp := ServerStatusResponse{ServerID: server.ID, Name: server.Name}

	start := time.Now()
	info, err := h.panels(*server).OSInfo(r.Context())
	resp.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Reachable = true
		resp.OS = osInfoToResponse(info)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// loadServer fetches the server named by {id}, answering on failure.
func (h *Handler) loadServer(w http.ResponseWriter, r *http.Request) (*domain.RemoteHost, bool) {
	id, ok := h.serverID(w, r)
	if !ok {
		return nil, false
	}
	server, err := h.store.GetServer(r.Context(), id)
	if err != nil {
		h.writeErr(w, "get server", err)
		return nil, false
	}
	return server, true
}

func (h *Handler) serverToResponse(s domain.RemoteHost) ServerResponse {
	resp := ServerResponse{RemoteHost: s}
	if h.monitor != nil {
		if status, ok := h.monitor.Status(s.ID); ok {
			resp.Health = &status
		}
	}
	return resp
}

func osInfoToResponse(info *onepanel.OSInfo) *OSInfo {
	return &OSInfo{
		OS:             info.OS,
		Platform:       info.Platform,
		PlatformFamily: info.PlatformFamily,
		KernelArch:     info.KernelArch,
		KernelVersion:  info.KernelVersion,
		DiskSize:       info.DiskSize,
	}
}
