package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/bulkops/internal/domain"
	"github.com/you/bulkops/internal/store"
)

type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
}

type Server struct {
	store store.Store
	queue Queue
	log   *zap.Logger
}

func New(st store.Store, q Queue, log *zap.Logger) *Server {
	return &Server{store: st, queue: q, log: log}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", s.submit)
		r.Get("/", s.list)
		r.Get("/{id}", s.status)
		r.Get("/{id}/result", s.result)
		r.Post("/{id}/cancel", s.cancel)
	})
	return r
}

type submitRequest struct {
	Kind       domain.Kind   `json:"kind"`
	Tenant     string        `json:"tenant"`
	Parameters domain.Params `json:"parameters"`
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validate(req); err != nil {
		s.writeErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Kind == domain.KindApply && req.Parameters.PricePolicy == "" {
		req.Parameters.PricePolicy = domain.PriceSuggested
	}
	job := &domain.Job{
		ID:     uuid.NewString(),
		Tenant: req.Tenant,
		Kind:   req.Kind,
		Params: req.Parameters,
		Status: domain.StatusQueued,
	}
	if err := s.store.Create(r.Context(), job); err != nil {
		s.log.Error("create job", zap.Error(err))
		s.writeErr(w, http.StatusInternalServerError, "could not create job")
		return
	}
	if err := s.queue.Enqueue(r.Context(), job.ID); err != nil {
		// The store row survives; the worker's stale-queued sweep will
		// pick the job up once the queue is reachable again.
		s.log.Warn("enqueue failed, job will be swept", zap.String("job", job.ID), zap.Error(err))
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID})
}

func validate(req submitRequest) error {
	if !req.Kind.Valid() {
		return errors.Errorf("unknown kind %q", req.Kind)
	}
	p := req.Parameters
	if p.TargetSelector == "" {
		return errors.New("targetSelector is required")
	}
	if req.Kind == domain.KindApply && p.PricePolicy != "" && !p.PricePolicy.Valid() {
		return errors.Errorf("unknown pricePolicy %q", p.PricePolicy)
	}
	if req.Kind == domain.KindBulkUpdate && len(p.Payload) == 0 {
		return errors.New("bulk-update requires a payload")
	}
	if f := p.Filter.MaxDerivedPercent; f != nil && (*f < 0 || *f > 100) {
		return errors.New("maxDerivedPercent must be within 0-100")
	}
	if t := p.Options.ExpectedTotal; t != nil && *t < 0 {
		return errors.New("expectedTotal must be non-negative")
	}
	return nil
}

type statusResponse struct {
	ID       string          `json:"id"`
	Status   domain.Status   `json:"status"`
	Progress int             `json:"progress"`
	Counters domain.Counters `json:"counters"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		ID:       job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Counters: job.Counters,
	})
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	if job.Result == nil {
		s.writeErr(w, http.StatusConflict, "job not finished")
		return
	}
	s.writeJSON(w, http.StatusOK, job.Result)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	recorded, err := s.store.RequestCancel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeErr(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.log.Error("request cancel", zap.Error(err))
		s.writeErr(w, http.StatusInternalServerError, "could not record cancellation")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": recorded})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	f := store.ListFilter{Limit: 100}
	if v := r.URL.Query().Get("status"); v != "" {
		st := domain.Status(v)
		f.Status = &st
	}
	if v := r.URL.Query().Get("kind"); v != "" {
		k := domain.Kind(v)
		f.Kind = &k
	}
	jobs, err := s.store.List(r.Context(), f)
	if err != nil {
		s.log.Error("list jobs", zap.Error(err))
		s.writeErr(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	out := make([]statusResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, statusResponse{
			ID:       job.ID,
			Status:   job.Status,
			Progress: job.Progress,
			Counters: job.Counters,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	id := chi.URLParam(r, "id")
	job, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeErr(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		s.log.Error("get job", zap.Error(err))
		s.writeErr(w, http.StatusInternalServerError, "could not load job")
		return nil, false
	}
	return job, true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeErr(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
