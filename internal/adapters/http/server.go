package httpadapter

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"dossier/internal/broker"
	"dossier/internal/domain"
	"dossier/internal/ports"
	"dossier/internal/workers/consumer"
)

// Server exposes the lifecycle facade to callers and the dispatch webhook to
// the broker. Authentication and entitlement checks for the caller-facing
// routes belong to the surrounding layer, not here.
type Server struct {
	lifecycle ports.Lifecycle
	worker    *consumer.Worker
	token     *broker.Token
}

func New(lifecycle ports.Lifecycle, worker *consumer.Worker, token *broker.Token) *Server {
	return &Server{lifecycle: lifecycle, worker: worker, token: token}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.health)

	r.Route("/analyses", func(r chi.Router) {
		r.Post("/", s.startAnalysis)
		r.Get("/{id}", s.getAnalysis)
		r.Post("/{id}/cancel", s.cancelAnalysis)
	})

	r.Route("/internal", func(r chi.Router) {
		if s.token != nil {
			r.Use(broker.RequireToken(s.token))
		}
		r.Post("/dispatch", s.dispatch)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type startReq struct {
	SubjectID string          `json:"subjectId"`
	Kind      string          `json:"kind"`
	Params    json.RawMessage `json:"params,omitempty"`
}

func (s *Server) startAnalysis(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	jobID, err := s.lifecycle.Start(r.Context(), req.SubjectID, req.Kind, req.Params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	job, err := s.lifecycle.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) cancelAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type dispatchReq struct {
	JobID string `json:"jobId"`
}

// dispatch is the webhook the broker invokes to hand a job to the consumer.
// Re-delivery of the same id is expected; the worker is idempotent.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		writeError(w, http.StatusBadRequest, "missing jobId")
		return
	}
	if err := s.worker.Handle(r.Context(), req.JobID); err != nil {
		log.Printf("dispatch: job %s: %v", req.JobID, err)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsDependency(err):
		log.Printf("http: %v", err)
		writeError(w, http.StatusBadGateway, "upstream dependency failure")
	default:
		log.Printf("http: %v", err)
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
