// Package httputil carries the JSON response envelope and request parsing
// helpers shared by every HTTP handler in the platform.
package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/logging"
)

// ErrorBody is the wire shape of every failure response.
type ErrorBody struct {
	Status    string         `json:"status"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId"`
	Details   map[string]any `json:"details,omitempty"`
}

// Page is the wire shape of every list response.
type Page struct {
	Data       any `json:"data"`
	Total      int `json:"total"`
	PageNum    int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// NewPage assembles a Page envelope from a result slice and its query.
func NewPage(data any, total, page, limit int) Page {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Page{Data: data, Total: total, PageNum: page, Limit: limit, TotalPages: totalPages}
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err through the error taxonomy: the HTTP status, code,
// and details come from the error's kind; the request id comes from the
// request context. Uncategorized errors render as opaque 500s.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logging.TraceID(r.Context())

	body := ErrorBody{
		Status:    "error",
		Code:      string(apperrors.KindInternal),
		Message:   "internal error",
		RequestID: requestID,
	}
	status := http.StatusInternalServerError
	if e, ok := apperrors.As(err); ok {
		body.Code = string(e.Kind)
		body.Details = e.Details
		status = e.HTTPStatus
		if e.Kind != apperrors.KindInternal {
			body.Message = e.Message
		}
	}
	WriteJSON(w, status, body)
}

// DecodeJSON decodes the request body into v, rendering a validation error
// on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, r, apperrors.Validation("invalid request body"))
		return false
	}
	return true
}

// QueryInt extracts an integer query parameter with a default.
func QueryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(val); err == nil {
		return n
	}
	return defaultVal
}

// QueryString extracts a string query parameter with a default.
func QueryString(r *http.Request, key, defaultVal string) string {
	if val := r.URL.Query().Get(key); val != "" {
		return val
	}
	return defaultVal
}

// Pagination is the standard {page, limit, sort} triple parsed from a list
// request's query string.
type Pagination struct {
	Page  int
	Limit int
	Skip  int
	Sort  string
	Desc  bool
}

// ParsePagination reads page/limit/sort with bounds applied. Sort accepts a
// leading '-' for descending order.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	p := Pagination{
		Page:  QueryInt(r, "page", 1),
		Limit: QueryInt(r, "limit", defaultLimit),
		Sort:  QueryString(r, "sort", ""),
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	p.Skip = (p.Page - 1) * p.Limit
	if len(p.Sort) > 1 && p.Sort[0] == '-' {
		p.Desc = true
		p.Sort = p.Sort[1:]
	}
	return p
}
