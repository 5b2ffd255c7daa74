package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/me/controlnode/pkg/model"
)

// handleListJobs returns progress for every job in the store.
// GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	list, err := s.store.ListProgress(r.Context())
	if err != nil {
		s.logger.Error("list jobs", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, model.NewStorageError(err))
		return
	}
	if list == nil {
		list = []*model.JobProgress{}
	}
	respondOK(w, reqID, list)
}

// handleGetJob returns one job's progress.
// GET /api/v1/jobs/{project}/{job}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	project := chi.URLParam(r, "project")
	job := chi.URLParam(r, "job")

	progress, err := s.store.JobProgress(r.Context(), project, job)
	if err != nil {
		s.logger.Error("get job", "project", project, "job", job, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, model.NewStorageError(err))
		return
	}
	if progress == nil {
		respondError(w, reqID, http.StatusNotFound, model.ErrJobNotFound)
		return
	}
	respondOK(w, reqID, progress)
}

// handleListLeases returns the outstanding leases.
// GET /api/v1/leases
func (s *Server) handleListLeases(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.scheduler.Outstanding(r.Context()))
}
