// Package api assembles the platform's HTTP surface: domain CRUD under
// /api, the ML serving subrouter under /api/ml, health and metrics
// endpoints, session management, and a websocket status stream. The domain
// routes ride a gorilla/mux router; the ML subrouter is a go-chi mount.
// Dependencies are injected once at startup; handlers hold no globals.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aerosuite/platform/internal/autoscaler"
	"github.com/aerosuite/platform/internal/cacheengine"
	"github.com/aerosuite/platform/internal/cluster"
	"github.com/aerosuite/platform/internal/health"
	"github.com/aerosuite/platform/internal/httpmw"
	"github.com/aerosuite/platform/internal/httputil"
	"github.com/aerosuite/platform/internal/logging"
	"github.com/aerosuite/platform/internal/metrics"
	"github.com/aerosuite/platform/internal/ml/drift"
	"github.com/aerosuite/platform/internal/ml/inference"
	"github.com/aerosuite/platform/internal/ml/perftracker"
	"github.com/aerosuite/platform/internal/ml/registry"
	"github.com/aerosuite/platform/internal/services"
	"github.com/aerosuite/platform/internal/sessionstore"
	"github.com/aerosuite/platform/internal/workerpool"
	"github.com/aerosuite/platform/pkg/version"
)

// Deps is the dependency graph a Server serves from.
type Deps struct {
	Log     *logging.Logger
	Metrics *metrics.Metrics

	Inspections *services.InspectionService
	Components  *services.ComponentService
	Customers   *services.CustomerService

	Sessions *sessionstore.Store
	Tokens   *sessionstore.TokenIssuer
	Cache    *cacheengine.Engine
	Probe    *health.Probe
	Tracker  *autoscaler.RequestTracker
	Scaler   *autoscaler.Controller
	Pool     *workerpool.Pool

	Registry *registry.Registry
	Runtime  *inference.Runtime
	Perf     *perftracker.Tracker
	Drift    *drift.Detector

	// WorkerStates reports cluster slot health on the master; nil on
	// workers, where /health/detailed omits it.
	WorkerStates func() []cluster.SlotState

	PromGatherer prometheus.Gatherer
	CORSOrigins  []string
	BodyLimit    int64
	Timeout      time.Duration
	RatePerSec   float64
	RateBurst    int
}

// Server is the assembled HTTP surface.
type Server struct {
	deps Deps
}

// New constructs a Server with defaults filled.
func New(deps Deps) *Server {
	if deps.BodyLimit <= 0 {
		deps.BodyLimit = 1 << 20
	}
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}
	if deps.RatePerSec <= 0 {
		deps.RatePerSec = 50
	}
	if deps.RateBurst <= 0 {
		deps.RateBurst = 100
	}
	if len(deps.CORSOrigins) == 0 {
		deps.CORSOrigins = []string{"*"}
	}
	return &Server{deps: deps}
}

// Router builds the full handler tree with the middleware chain applied.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/detailed", s.handleHealthDetailed).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLive).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleHealth).Methods(http.MethodGet)

	gatherer := s.deps.PromGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.HandleFunc("/ws/status", s.handleStatusStream).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(mux.MiddlewareFunc(httpmw.Session(s.deps.Sessions, false)))

	api.HandleFunc("/sessions", s.handleSessionCreate).Methods(http.MethodPost)
	api.HandleFunc("/sessions/rotate", s.handleSessionRotate).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleSessionRevoke).Methods(http.MethodDelete)

	api.HandleFunc("/inspections", s.handleInspectionCreate).Methods(http.MethodPost)
	api.HandleFunc("/inspections", s.handleInspectionList).Methods(http.MethodGet)
	api.HandleFunc("/inspections/{id}", s.handleInspectionGet).Methods(http.MethodGet)
	api.HandleFunc("/inspections/{id}", s.handleInspectionPatch).Methods(http.MethodPatch)
	api.HandleFunc("/inspections/{id}/defects", s.handleInspectionAddDefect).Methods(http.MethodPost)

	api.HandleFunc("/components", s.handleComponentCreate).Methods(http.MethodPost)
	api.HandleFunc("/components", s.handleComponentList).Methods(http.MethodGet)
	api.HandleFunc("/components/{id}", s.handleComponentGet).Methods(http.MethodGet)
	api.HandleFunc("/components/{id}", s.handleComponentPatch).Methods(http.MethodPatch)
	api.HandleFunc("/components/{id}/revisions", s.handleComponentAddRevision).Methods(http.MethodPost)
	api.HandleFunc("/components/{id}/revisions/{revisionId}/approve", s.handleRevisionApprove).Methods(http.MethodPost)

	api.HandleFunc("/customers", s.handleCustomerCreate).Methods(http.MethodPost)
	api.HandleFunc("/customers", s.handleCustomerList).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}", s.handleCustomerGet).Methods(http.MethodGet)
	api.HandleFunc("/customers/{id}", s.handleCustomerPatch).Methods(http.MethodPatch)

	api.PathPrefix("/ml").Handler(http.StripPrefix("/api/ml", s.mlRouter()))

	return httpmw.Chain(r,
		httpmw.RequestID(),
		httpmw.Recovery(s.deps.Log),
		httpmw.Logging(s.deps.Log),
		httpmw.Observe(s.deps.Tracker, s.deps.Metrics, "api"),
		httpmw.SecurityHeaders(),
		httpmw.CORS(s.deps.CORSOrigins),
		httpmw.BodyLimit(s.deps.BodyLimit),
		httpmw.RateLimit(s.deps.RatePerSec, s.deps.RateBurst),
		httpmw.Timeout(s.deps.Timeout),
	)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Probe.Cached(r.Context())
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status":    result.Status,
		"system":    result.System,
		"timestamp": result.Timestamp,
	})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": "alive"})
}

func (s *Server) handleHealthDetailed(w http.ResponseWriter, r *http.Request) {
	result := s.deps.Probe.Evaluate(r.Context())
	status := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":    result.Status,
		"version":   version.FullVersion(),
		"checks":    result.Checks,
		"system":    result.System,
		"timestamp": result.Timestamp,
	}
	if s.deps.Cache != nil {
		body["cacheDegraded"] = s.deps.Cache.Degraded()
	}
	if s.deps.Scaler != nil {
		body["autoscaling"] = map[string]any{
			"desiredWorkers": s.deps.Scaler.Desired(),
			"recentIntents":  s.deps.Scaler.History(),
		}
	}
	if s.deps.Tracker != nil {
		sample := s.deps.Tracker.Snapshot()
		body["traffic"] = map[string]any{"rps": sample.RPS, "p95Ms": sample.P95Ms}
	}
	if s.deps.Pool != nil {
		body["workerPool"] = s.deps.Pool.Stats()
	}
	if s.deps.WorkerStates != nil {
		body["workers"] = s.deps.WorkerStates()
	}
	if s.deps.Runtime != nil {
		body["models"] = s.deps.Runtime.LoadedModels()
	}
	httputil.WriteJSON(w, status, body)
}
