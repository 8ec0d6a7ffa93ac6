// Package httpmw is the platform's HTTP middleware chain: trace-id
// propagation, panic recovery, structured request logging, security
// headers, CORS, body limits, per-client rate limiting, request timeouts,
// and the request-rate observation feed the autoscaling controller samples.
// The chain is router-agnostic (plain http.Handler wrappers) so the domain
// router and the ML subrouter share it.
package httpmw

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/autoscaler"
	"github.com/aerosuite/platform/internal/httputil"
	"github.com/aerosuite/platform/internal/logging"
	"github.com/aerosuite/platform/internal/metrics"
)

// Middleware is a standard http.Handler wrapper.
type Middleware func(http.Handler) http.Handler

// Chain applies mws to next in order, outermost first.
func Chain(next http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		next = mws[i](next)
	}
	return next
}

// statusWriter captures the response status and byte count for logging and
// metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Hijack lets websocket upgrades pass through the wrapped writer.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// RequestID stamps every request with a trace id (accepting an inbound
// X-Request-ID when present) and echoes it on the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = logging.NewTraceID()
			}
			ctx := logging.WithTraceID(r.Context(), id)
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Recovery converts panics into opaque 500 responses and logs them with the
// request id. The process keeps serving; a recovered panic is not reported
// to the health probe or the cluster supervisor, and does not lead to the
// worker being replaced.
func Recovery(log *logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if log != nil {
						log.LogEvent(r.Context(), "panic.recovered", map[string]interface{}{
							"path": r.URL.Path, "panic": rec,
						})
					}
					httputil.WriteError(w, r, apperrors.New(apperrors.KindInternal, "internal error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Logging emits one structured line per request.
func Logging(log *logging.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(sw, r)
			if log != nil {
				log.LogRequest(r.Context(), r.Method, r.URL.Path, sw.status, time.Since(start))
			}
		})
	}
}

// Observe feeds the request tracker the autoscaler samples and the
// Prometheus request metrics.
func Observe(tracker *autoscaler.RequestTracker, m *metrics.Metrics, service string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)
			if tracker != nil {
				tracker.Observe(elapsed)
			}
			if m != nil {
				m.RecordHTTPRequest(service, r.Method, r.URL.Path, http.StatusText(sw.status), elapsed)
			}
		})
	}
}

// SecurityHeaders sets the standard hardening headers.
func SecurityHeaders() Middleware {
	headers := map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "1; mode=block",
		"Referrer-Policy":           "strict-origin-when-cross-origin",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers preflight requests and stamps allow headers for permitted
// origins. "*" allows any origin.
func CORS(allowedOrigins []string) Middleware {
	allowed := func(origin string) bool {
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Session-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimit rejects request bodies larger than maxBytes.
func BodyLimit(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				httputil.WriteError(w, r, apperrors.Validation("request body too large").
					WithDetail("maxBytes", maxBytes))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit enforces a per-client token bucket keyed by client IP.
func RateLimit(requestsPerSecond float64, burst int) Middleware {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(key string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if l, ok := limiters[key]; ok {
			return l
		}
		l := rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
		limiters[key] = l
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiterFor(ClientIP(r)).Allow() {
				httputil.WriteError(w, r, apperrors.RateLimited("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds request handling; deadline expiry renders a timeout error
// through the taxonomy.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				// Long-lived streams manage their own lifetime.
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			done := make(chan struct{})
			panicked := make(chan any, 1)
			sw := &statusWriter{ResponseWriter: w}
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(sw, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case p := <-panicked:
				panic(p) // re-raised here so the recovery middleware reports it
			case <-ctx.Done():
				if sw.status == 0 {
					httputil.WriteError(w, r, apperrors.Timeout(r.URL.Path))
				}
			}
		})
	}
}

// ClientIP extracts the originating client address, preferring forwarding
// headers set by the edge.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
