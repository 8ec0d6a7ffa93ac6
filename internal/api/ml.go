package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aerosuite/platform/internal/apperrors"
	"github.com/aerosuite/platform/internal/httputil"
	"github.com/aerosuite/platform/internal/ml/drift"
	"github.com/aerosuite/platform/internal/ml/registry"
)

// mlRouter mounts the ML serving surface: model registry management,
// inference, performance metrics, and drift detection.
func (s *Server) mlRouter() http.Handler {
	r := chi.NewRouter()

	r.Route("/models", func(r chi.Router) {
		r.Post("/", s.handleModelRegister)
		r.Get("/", s.handleModelListNames)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.handleModelGet)
			r.Post("/versions", s.handleModelAddVersion)
			r.Get("/versions", s.handleModelListVersions)
			r.Post("/versions/{number}/transition", s.handleModelTransition)
			r.Get("/production", s.handleModelGetStage(registry.StageProduction))
			r.Get("/staging", s.handleModelGetStage(registry.StageStaging))

			r.Post("/load", s.handleModelLoad)
			r.Post("/unload", s.handleModelUnload)
			r.Post("/clear-health", s.handleModelClearHealth)
			r.Post("/infer", s.handleModelInfer)
			r.Post("/infer-batch", s.handleModelInferBatch)
			r.Post("/queue", s.handleModelQueueInfer)
			r.Get("/stats", s.handleModelStats)
			r.Get("/metrics", s.handleModelMetrics)

			r.Post("/baseline", s.handleModelBaseline)
			r.Post("/drift", s.handleModelDrift)
		})
	})

	return r
}

type modelRegisterRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleModelRegister(w http.ResponseWriter, r *http.Request) {
	var req modelRegisterRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	m, err := s.deps.Registry.Register(r.Context(), req.Name, req.Metadata)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, m)
}

func (s *Server) handleModelListNames(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Registry.ListNames(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": names})
}

func (s *Server) handleModelGet(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Registry.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

type modelVersionRequest struct {
	ModelID  string         `json:"modelId"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleModelAddVersion(w http.ResponseWriter, r *http.Request) {
	var req modelVersionRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	v, err := s.deps.Registry.AddVersion(r.Context(), chi.URLParam(r, "name"), req.ModelID, req.Metadata)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, v)
}

func (s *Server) handleModelListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.deps.Registry.ListVersions(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": versions})
}

type modelTransitionRequest struct {
	Stage registry.Stage `json:"stage"`
}

func (s *Server) handleModelTransition(w http.ResponseWriter, r *http.Request) {
	var req modelTransitionRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.Validation("version number must be an integer"))
		return
	}
	m, err := s.deps.Registry.Transition(r.Context(), chi.URLParam(r, "name"), number, req.Stage)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (s *Server) handleModelGetStage(stage registry.Stage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		var (
			v   *registry.Version
			err error
		)
		if stage == registry.StageProduction {
			v, err = s.deps.Registry.GetProduction(r.Context(), name)
		} else {
			v, err = s.deps.Registry.GetStaging(r.Context(), name)
		}
		if err != nil {
			httputil.WriteError(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, v)
	}
}

func (s *Server) handleModelLoad(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Runtime.LoadModel(r.Context(), chi.URLParam(r, "name")); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"loaded": true})
}

func (s *Server) handleModelUnload(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Runtime.UnloadModel(chi.URLParam(r, "name")); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"loaded": false})
}

func (s *Server) handleModelClearHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Runtime.ClearUnhealthy(chi.URLParam(r, "name")); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

type inferRequest struct {
	Input any `json:"input"`
}

func (s *Server) handleModelInfer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	out, err := s.deps.Runtime.Infer(r.Context(), chi.URLParam(r, "name"), req.Input)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"output": out})
}

type inferBatchRequest struct {
	Inputs []any `json:"inputs"`
}

func (s *Server) handleModelInferBatch(w http.ResponseWriter, r *http.Request) {
	var req inferBatchRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	outs, err := s.deps.Runtime.InferBatch(r.Context(), chi.URLParam(r, "name"), req.Inputs)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"outputs": outs})
}

// handleModelQueueInfer enqueues through the model's FIFO queue and awaits
// the result, so callers get queue-order fairness with the same response
// shape as the synchronous path.
func (s *Server) handleModelQueueInfer(w http.ResponseWriter, r *http.Request) {
	var req inferRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	future, err := s.deps.Runtime.QueueInfer(r.Context(), chi.URLParam(r, "name"), req.Input)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	out, err := future.Await(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"output": out})
}

func (s *Server) handleModelStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Runtime.ModelStats(chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (s *Server) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	aggs := s.deps.Perf.AllWindows(r.Context(), chi.URLParam(r, "name"))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": aggs})
}

type baselineRequest struct {
	Samples []string        `json:"samples"`
	Schema  []drift.Feature `json:"featureSchema"`
	Method  drift.Method    `json:"method"`
}

func (s *Server) handleModelBaseline(w http.ResponseWriter, r *http.Request) {
	var req baselineRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	b, err := s.deps.Drift.CreateBaseline(r.Context(), chi.URLParam(r, "name"), req.Samples,
		drift.BaselineOptions{Schema: req.Schema, Method: req.Method})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

type driftRequest struct {
	Samples []string `json:"samples"`
}

func (s *Server) handleModelDrift(w http.ResponseWriter, r *http.Request) {
	var req driftRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	report, err := s.deps.Drift.DetectDrift(r.Context(), chi.URLParam(r, "name"), req.Samples)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
