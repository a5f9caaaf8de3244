package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfishy/nexus-cli/internal/events"
	"github.com/wolfishy/nexus-cli/internal/prover"
	"github.com/wolfishy/nexus-cli/internal/report"
)

const (
	defaultReportLimit = 50
	maxReportLimit     = 1000
	maxTaskBodyBytes   = 16 << 20
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		CachedResults: s.results.Len(),
		Environment:   s.config.Environment.String(),
		LastEventID:   s.events.LastID(),
		DroppedEvents: s.events.Dropped(),
		Programs:      s.config.Programs,
	})
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTaskBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid task body: "+err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Workers < 0 {
		s.writeError(w, http.StatusBadRequest, "workers must not be negative")
		return
	}
	workers := s.config.Workers
	if req.Workers > 0 {
		workers = req.Workers
	}

	t, err := req.Document.Task()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.prover.ProveTask(r.Context(), t, s.config.Environment, s.config.ClientID, workers)
	if err != nil {
		s.writeProveError(w, err)
		return
	}

	resp, err := NewTaskResponse(t, res, time.Now())
	if err != nil {
		s.logger.Error("failed to serialize proof", "task_id", t.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to serialize proof")
		return
	}

	s.results.Add(t.ID, resp)
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	resp, ok := s.results.Get(taskID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task result not found")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		s.writeError(w, http.StatusNotFound, "failure journal is disabled")
		return
	}

	limit := defaultReportLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxReportLimit)
	}

	entries, err := s.reports.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list reports", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if entries == nil {
		entries = []report.Entry{}
	}
	respondJSON(w, http.StatusOK, ReportsResponse{Reports: entries})
}

func (s *Server) handleEventSnapshot(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "since must be a non-negative event id")
			return
		}
		since = n
	}
	evs := s.events.SnapshotSince(since, r.URL.Query().Get("type"))
	if evs == nil {
		evs = []events.Event{}
	}
	respondJSON(w, http.StatusOK, EventsResponse{Events: evs})
}

func (s *Server) writeProveError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := prover.KindOf(err)
	switch {
	case errors.Is(err, prover.ErrInvalidWorkerBudget):
		status = http.StatusBadRequest
	case kind == prover.KindMalformedTask, kind == prover.KindParse:
		status = http.StatusBadRequest
	case kind == prover.KindComputation, kind == prover.KindGuestProgram:
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind.String()})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
