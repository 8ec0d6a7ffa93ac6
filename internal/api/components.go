package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/domain/component"
	"github.com/aerosuite/platform/internal/httputil"
	"github.com/aerosuite/platform/internal/repository"
	"github.com/aerosuite/platform/internal/services"
)

type componentResponse struct {
	ID             string                 `json:"id"`
	Code           string                 `json:"code"`
	Name           string                 `json:"name"`
	Status         component.Status       `json:"status"`
	Specifications []component.Specification `json:"specifications"`
	Revisions      []component.Revision   `json:"revisions"`
	Documents      []string               `json:"documents"`
	Related        []component.Relation   `json:"relatedComponents"`
	Version        int64                  `json:"version"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

func toComponentResponse(c *component.Component) componentResponse {
	specs := c.Specifications
	if specs == nil {
		specs = []component.Specification{}
	}
	revs := c.Revisions
	if revs == nil {
		revs = []component.Revision{}
	}
	docs := c.Documents
	if docs == nil {
		docs = []string{}
	}
	rels := c.RelatedComponents
	if rels == nil {
		rels = []component.Relation{}
	}
	return componentResponse{
		ID:             c.ID,
		Code:           c.Code,
		Name:           c.Name,
		Status:         c.Status,
		Specifications: specs,
		Revisions:      revs,
		Documents:      docs,
		Related:        rels,
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

type componentCreateRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Server) handleComponentCreate(w http.ResponseWriter, r *http.Request) {
	var req componentCreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	created, err := s.deps.Components.Create(r.Context(), services.ComponentCreateInput{
		Code: req.Code,
		Name: req.Name,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toComponentResponse(created))
}

func (s *Server) handleComponentGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Components.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toComponentResponse(c))
}

func (s *Server) handleComponentList(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r, 20, 100)
	status := httputil.QueryString(r, "status", "")

	opts := repository.ListOptions{Skip: p.Skip, Limit: p.Limit, SortField: p.Sort, SortDesc: p.Desc}
	items, _, err := s.deps.Components.List(r.Context(), status, opts)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	total, err := s.deps.Components.Count(r.Context(), status)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	out := make([]componentResponse, 0, len(items))
	for _, c := range items {
		out = append(out, toComponentResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPage(out, total, p.Page, p.Limit))
}

type componentPatchRequest struct {
	Status *component.Status `json:"status"`
}

func (s *Server) handleComponentPatch(w http.ResponseWriter, r *http.Request) {
	var req componentPatchRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Status == nil {
		httputil.WriteError(w, r, apperrors.Validation("status is required"))
		return
	}
	updated, err := s.deps.Components.SetStatus(r.Context(), mux.Vars(r)["id"], *req.Status)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toComponentResponse(updated))
}

type revisionCreateRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleComponentAddRevision(w http.ResponseWriter, r *http.Request) {
	var req revisionCreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	updated, err := s.deps.Components.AddRevision(r.Context(), mux.Vars(r)["id"], req.Notes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toComponentResponse(updated))
}

type revisionApproveRequest struct {
	ApproverID string `json:"approverId"`
}

func (s *Server) handleRevisionApprove(w http.ResponseWriter, r *http.Request) {
	var req revisionApproveRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	updated, err := s.deps.Components.ApproveRevision(r.Context(), vars["id"], vars["revisionId"], req.ApproverID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toComponentResponse(updated))
}
