package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/domain/customer"
	"github.com/aerosuite/platform/internal/httputil"
	"github.com/aerosuite/platform/internal/repository"
	"github.com/aerosuite/platform/internal/services"
)

type customerResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Status    customer.Status    `json:"status"`
	Contacts  []customer.Contact `json:"contacts"`
	Address   string             `json:"address,omitempty"`
	Version   int64              `json:"version"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

func toCustomerResponse(c *customer.Customer) customerResponse {
	contacts := c.Contacts
	if contacts == nil {
		contacts = []customer.Contact{}
	}
	return customerResponse{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Status:    c.Status,
		Contacts:  contacts,
		Address:   c.Address,
		Version:   c.Version,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type customerCreateRequest struct {
	Name     string             `json:"name"`
	Email    string             `json:"email"`
	Contacts []customer.Contact `json:"contacts"`
	Address  string             `json:"address"`
}

func (s *Server) handleCustomerCreate(w http.ResponseWriter, r *http.Request) {
	var req customerCreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	created, err := s.deps.Customers.Create(r.Context(), services.CustomerCreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Contacts: req.Contacts,
		Address:  req.Address,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCustomerResponse(created))
}

func (s *Server) handleCustomerGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Customers.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (s *Server) handleCustomerList(w http.ResponseWriter, r *http.Request) {
	p := httputil.ParsePagination(r, 20, 100)
	status := httputil.QueryString(r, "status", "")

	opts := repository.ListOptions{Skip: p.Skip, Limit: p.Limit, SortField: p.Sort, SortDesc: p.Desc}
	items, _, err := s.deps.Customers.List(r.Context(), status, opts)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	total, err := s.deps.Customers.Count(r.Context(), status)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	out := make([]customerResponse, 0, len(items))
	for _, c := range items {
		out = append(out, toCustomerResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.NewPage(out, total, p.Page, p.Limit))
}

type customerPatchRequest struct {
	Status *customer.Status `json:"status"`
	Email  *string          `json:"email"`
}

func (s *Server) handleCustomerPatch(w http.ResponseWriter, r *http.Request) {
	var req customerPatchRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]

	var updated *customer.Customer
	var err error
	switch {
	case req.Email != nil:
		updated, err = s.deps.Customers.ChangeEmail(r.Context(), id, *req.Email)
	case req.Status != nil:
		updated, err = s.deps.Customers.SetStatus(r.Context(), id, *req.Status)
	default:
		httputil.WriteError(w, r, apperrors.Validation("nothing to update"))
		return
	}
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCustomerResponse(updated))
}
