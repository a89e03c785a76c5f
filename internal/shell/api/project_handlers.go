package api

import (
	"net/http"
	"strings"

	"github.com/artpar/panelship/internal/core/domain"
)

// =============================================================================
// Project Handlers
// =============================================================================

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		h.writeErr(w, "list projects", err)
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	h.writeJSON(w, http.StatusOK, projects)
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !h.decode(w, r, &req) {
		return
	}

	project, err := domain.NewProject(req.Path)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}
	applyProjectConfig(project, req)

	if err := h.store.CreateProject(r.Context(), project); err != nil {
		h.writeErr(w, "create project", err)
		return
	}

	h.logger.Info("project registered", "project", project.Path, "image", project.BaseName())
	h.writeJSON(w, http.StatusCreated, project)
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	path, ok := h.projectPath(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteProject(r.Context(), path); err != nil {
		h.writeErr(w, "delete project", err)
		return
	}

	h.logger.Info("project removed", "project", path)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetProjectConfig(w http.ResponseWriter, r *http.Request) {
	path, ok := h.projectPath(w, r)
	if !ok {
		return
	}

	project, err := h.store.GetProject(r.Context(), path)
	if err != nil {
		h.writeErr(w, "get project", err)
		return
	}
	h.writeJSON(w, http.StatusOK, project)
}

// handleUpdateProjectConfig replaces the deploy defaults of a project.
func (h *Handler) handleUpdateProjectConfig(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrProjectPathRequired.Error(), "validation_error")
		return
	}

	candidate, err := domain.NewProject(req.Path)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	project, err := h.store.GetProject(r.Context(), candidate.Path)
	if err != nil {
		h.writeErr(w, "get project", err)
		return
	}
	applyProjectConfig(project, req)

	if err := h.store.UpdateProject(r.Context(), project); err != nil {
		h.writeErr(w, "update project", err)
		return
	}
	h.writeJSON(w, http.StatusOK, project)
}

// projectPath reads and normalizes the path query parameter.
func (h *Handler) projectPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	project, err := domain.NewProject(r.URL.Query().Get("path"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return "", false
	}
	return project.Path, true
}

func applyProjectConfig(p *domain.Project, req ProjectRequest) {
	p.ImageBaseName = strings.TrimSpace(req.ImageBaseName)
	p.DefaultServerID = req.DefaultServerID
	p.DefaultComposePath = strings.TrimSpace(req.DefaultComposePath)
}
