package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"library-lending-core/internal/jobs"
	"library-lending-core/internal/logger"
	"library-lending-core/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JobTrigger runs scheduled jobs on demand
type JobTrigger interface {
	Run(ctx context.Context, name string) (service.SweepResult, error)
	JobNames() []string
}

// OpsHandler serves health checks and manual job triggers
type OpsHandler struct {
	jobs JobTrigger
	ping func(ctx context.Context) error
}

// NewOpsHandler creates a new ops handler. ping may be nil.
func NewOpsHandler(jobs JobTrigger, ping func(ctx context.Context) error) *OpsHandler {
	return &OpsHandler{
		jobs: jobs,
		ping: ping,
	}
}

type jobResponse struct {
	Job       string `json:"job"`
	Scanned   int    `json:"scanned"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleHealth reports whether the store is reachable
func (h *OpsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			logger.Warn("Health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleListJobs lists the jobs that can be triggered
func (h *OpsHandler) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"jobs": h.jobs.JobNames()})
}

// HandleRunJob runs the named job synchronously and returns its counts
func (h *OpsHandler) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	result, err := h.jobs.Run(r.Context(), name)
	switch {
	case errors.Is(err, jobs.ErrUnknownJob):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, jobs.ErrJobRunning):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		Job:       name,
		Scanned:   result.Scanned,
		Processed: result.Processed,
		Failed:    result.Failed,
	})
}

// RegisterOpsRoutes registers the ops endpoints
func RegisterOpsRoutes(router *mux.Router, handler *OpsHandler) {
	router.HandleFunc("/healthz", handler.HandleHealth).Methods("GET")
	router.HandleFunc("/jobs", handler.HandleListJobs).Methods("GET")
	router.HandleFunc("/jobs/{name}/run", handler.HandleRunJob).Methods("POST")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}
