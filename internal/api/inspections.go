package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/domain/inspection"
	"github.com/aerosuite/platform/internal/httputil"
	"github.com/aerosuite/platform/internal/repository"
	"github.com/aerosuite/platform/internal/services"
)

type inspectionResponse struct {
	ID                   string             `json:"id"`
	Title                string             `json:"title"`
	Description          string             `json:"description,omitempty"`
	CustomerID           string             `json:"customerId,omitempty"`
	SupplierID           string             `json:"supplierId,omitempty"`
	ComponentID          string             `json:"componentId,omitempty"`
	Status               inspection.Status  `json:"status"`
	ScheduledDate        time.Time          `json:"scheduledDate"`
	CompletedDate        *time.Time         `json:"completedDate,omitempty"`
	InspectorID          string             `json:"inspectorId,omitempty"`
	Location             string             `json:"location,omitempty"`
	InspectionType       string             `json:"inspectionType,omitempty"`
	Items                []inspection.Item  `json:"items"`
	Defects              []inspection.Defect `json:"defects"`
	CompletionPercentage float64            `json:"completionPercentage"`
	Version              int64              `json:"version"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

func toInspectionResponse(in *inspection.Inspection) inspectionResponse {
	items := in.Items
	if items == nil {
		items = []inspection.Item{}
	}
	defects := in.Defects
	if defects == nil {
		defects = []inspection.Defect{}
	}
	return inspectionResponse{
		ID:                   in.ID,
		Title:                in.Title,
		Description:          in.Description,
		CustomerID:           in.CustomerID,
		SupplierID:           in.SupplierID,
		ComponentID:          in.ComponentID,
		Status:               in.Status,
		ScheduledDate:        in.ScheduledDate,
		CompletedDate:        in.CompletedDate,
		InspectorID:          in.InspectorID,
		Location:             in.Location,
		InspectionType:       in.InspectionType,
		Items:                items,
		Defects:              defects,
		CompletionPercentage: in.CompletionPercentage(),
		Version:              in.Version,
		CreatedAt:            in.CreatedAt,
		UpdatedAt:            in.UpdatedAt,
	}
}

type inspectionCreateRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	CustomerID     string    `json:"customerId"`
	SupplierID     string    `json:"supplierId"`
	ComponentID    string    `json:"componentId"`
	ScheduledDate  time.Time `json:"scheduledDate"`
	Location       string    `json:"location"`
	InspectorID    string    `json:"inspectorId"`
	InspectionType string    `json:"inspectionType"`
}

func (s *Server) handleInspectionCreate(w http.ResponseWriter, r *http.Request) {
	var req inspectionCreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	created, err := s.deps.Inspections.Create(r.Context(), services.InspectionCreateInput{
		Title:          req.Title,
		Description:    req.Description,
		CustomerID:     req.CustomerID,
		SupplierID:     req.SupplierID,
		ComponentID:    req.ComponentID,
		ScheduledDate:  req.ScheduledDate,
		Location:       req.Location,
		InspectorID:    req.InspectorID,
		InspectionType: req.InspectionType,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toInspectionResponse(created))
}

func (s *Server) handleInspectionGet(w http.ResponseWriter, r *http.Request) {
	in, err := s.deps.Inspections.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInspectionResponse(in))
}

func (s *Server) handleInspectionList(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r, 20, 100)
	status := httputil.QueryString(r, "status", "")

	opts := repository.ListOptions{Skip: p.Skip, Limit: p.Limit, SortField: p.Sort, SortDesc: p.Desc}
	items, _, err := s.deps.Inspections.List(r.Context(), status, opts)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	total, err := s.deps.Inspections.Count(r.Context(), status)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	out := make([]inspectionResponse, 0, len(items))
	for _, in := range items {
		out = append(out, toInspectionResponse(in))
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPage(out, total, p.Page, p.Limit))
}

type inspectionPatchRequest struct {
	Status *inspection.Status `json:"status"`
}

func (s *Server) handleInspectionPatch(w http.ResponseWriter, r *http.Request) {
	var req inspectionPatchRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Status == nil {
		httputil.WriteError(w, r, apperrors.Validation("status is required"))
		return
	}
	updated, err := s.deps.Inspections.ChangeStatus(r.Context(), mux.Vars(r)["id"], *req.Status)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInspectionResponse(updated))
}

func (s *Server) handleInspectionAddDefect(w http.ResponseWriter, r *http.Request) {
	var defect inspection.Defect
	if !httputil.DecodeJSON(w, r, &defect) {
		return
	}
	updated, err := s.deps.Inspections.RecordDefect(r.Context(), mux.Vars(r)["id"], defect)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInspectionResponse(updated))
}
