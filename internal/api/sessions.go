package api

import (
	"net/http"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/httpmw"
	"github.com/aerosuite/platform/internal/httputil"
)

type sessionCreateRequest struct {
	PrincipalID string `json:"principalId"`
}

// handleSessionCreate issues a session bound to the caller's fingerprint.
// Credential verification happens upstream (identity provider); this
// endpoint turns an authenticated principal into a session record.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.PrincipalID == "" {
		httputil.WriteError(w, r, apperrors.Validation("principalId is required"))
		return
	}

	rec, err := s.deps.Sessions.Create(r.Context(), req.PrincipalID, httpmw.RequestFingerprint(r))
	if err != nil {
		httputil.WriteError(w, r, apperrors.DependencyUnavailable("session store", err))
		return
	}
	body := map[string]any{
		"sessionId":      rec.SessionID,
		"principalId":    rec.PrincipalID,
		"absoluteExpiry": rec.AbsoluteExpiry,
	}
	if s.deps.Tokens != nil {
		if token, err := s.deps.Tokens.Issue(rec); err == nil {
			body["token"] = token
		}
	}
	httputil.WriteJSON(w, http.StatusCreated, body)
}

func (s *Server) handleSessionRotate(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(httpmw.SessionHeader)
	if sessionID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("session required"))
		return
	}
	newID, err := s.deps.Sessions.Rotate(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("unknown session"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"sessionId": newID})
}

func (s *Server) handleSessionRevoke(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(httpmw.SessionHeader)
	if sessionID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("session required"))
		return
	}
	if err := s.deps.Sessions.Revoke(r.Context(), sessionID); err != nil {
		httputil.WriteError(w, r, apperrors.DependencyUnavailable("session store", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
