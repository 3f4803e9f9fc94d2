package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"

	"bencher/internal/apierrors"
	"bencher/internal/project"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type organizationResponse struct {
	UUID string `json:"uuid"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// CreateOrganization handles POST /v0/organizations (SPEC_FULL.md §6
// expansion: organizations are the top of the ownership hierarchy and
// need a creation path before any project can exist under one).
func (a *API) CreateOrganization(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req createOrganizationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	if req.Name == "" {
		writeError(w, a.Log, apierrors.BadRequest("name is required"))
		return
	}
	org, err := project.CreateOrganization(r.Context(), a.Store, req.Name)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, organizationResponse{UUID: org.UUID.String(), Slug: org.Slug, Name: org.Name})
}

type createProjectRequest struct {
	Name       string `json:"name"`
	Public     bool   `json:"public"`
	PushSecret string `json:"push_secret"`
}

type projectResponse struct {
	UUID   string `json:"uuid"`
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

// CreateProject handles POST /v0/organizations/{organization}/projects.
func (a *API) CreateProject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ctx := r.Context()
	org, err := project.GetOrganizationBySlug(ctx, a.Store, ps.ByName("organization"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}

	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	if req.Name == "" {
		writeError(w, a.Log, apierrors.BadRequest("name is required"))
		return
	}

	p, err := project.CreateProject(ctx, a.Store, a.BcryptCost, org.ID, req.Name, req.Public, req.PushSecret)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectResponse{UUID: p.UUID.String(), Slug: p.Slug, Name: p.Name, Public: p.Public})
}

// GetProject handles GET /v0/projects/{project}.
func (a *API) GetProject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, _, err := a.resolveProject(r.Context(), r, ps.ByName("project"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{UUID: p.UUID.String(), Slug: p.Slug, Name: p.Name, Public: p.Public})
}
