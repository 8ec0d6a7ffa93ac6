package httpmw

import (
	"context"
	"net/http"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/httputil"
	"github.com/aerosuite/platform/internal/sessionstore"
)

type principalKey struct{}

// Principal returns the authenticated principal id attached by Session, or
// "" for anonymous requests.
func Principal(ctx context.Context) string {
	v, _ := ctx.Value(principalKey{}).(string)
	return v
}

// SessionHeader carries the session id on requests.
const SessionHeader = "X-Session-ID"

// RequestFingerprint derives the client fingerprint the session store binds
// sessions to: stable client attributes that should not change mid-session.
func RequestFingerprint(r *http.Request) string {
	return sessionstore.Fingerprint(r.UserAgent(), ClientIP(r))
}

// Session loads the request's session, attaches the principal to the
// context, and touches the record's idle timer. Requests without a session
// header pass through anonymous when required is false; expired, unknown,
// or fingerprint-mismatched sessions are rejected.
func Session(store *sessionstore.Store, required bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := r.Header.Get(SessionHeader)
			if sessionID == "" {
				if required {
					httputil.WriteError(w, r, apperrors.Unauthorized("session required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			rec, result, err := store.Load(r.Context(), sessionID, RequestFingerprint(r))
			if err != nil {
				httputil.WriteError(w, r, apperrors.DependencyUnavailable("session store", err))
				return
			}
			switch result {
			case sessionstore.LoadOK:
			case sessionstore.LoadFingerprintMismatch:
				httputil.WriteError(w, r, apperrors.Unauthorized("session fingerprint mismatch"))
				return
			case sessionstore.LoadExpired:
				httputil.WriteError(w, r, apperrors.Unauthorized("session expired"))
				return
			default:
				httputil.WriteError(w, r, apperrors.Unauthorized("unknown session"))
				return
			}

			_ = store.Touch(r.Context(), sessionID)
			ctx := context.WithValue(r.Context(), principalKey{}, rec.PrincipalID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
