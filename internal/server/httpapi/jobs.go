package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sparkleops/dbdistrib/internal/common"
	"github.com/sparkleops/dbdistrib/internal/logging"
	"github.com/sparkleops/dbdistrib/internal/server/models"
	"github.com/sparkleops/dbdistrib/internal/server/services"
)

type JobsHandler struct {
	jobs *services.JobService
	log  logging.Logger
}

func NewJobsHandler(jobs *services.JobService, log logging.Logger) *JobsHandler {
	return &JobsHandler{jobs: jobs, log: log}
}

type createJobRequest struct {
	ServerID string `json:"serverId"`
	Database string `json:"database"`
	Ticket   string `json:"ticket"`
}

func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, _, ok := principalFrom(r.Context())
	if !ok {
		writeError(r.Context(), h.log, w, common.ErrUnauthenticated)
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), h.log, w, common.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := uuidField("serverId", req.ServerID); err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	if req.Database == "" {
		writeError(r.Context(), h.log, w, common.NewValidationError("database", "required"))
		return
	}
	if req.Ticket == "" {
		writeError(r.Context(), h.log, w, common.NewValidationError("ticket", "required"))
		return
	}

	job, err := h.jobs.Create(r.Context(), p, req.ServerID, req.Database, req.Ticket)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toJobCreatedView(job))
}

func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, role, ok := principalFrom(r.Context())
	if !ok {
		writeError(r.Context(), h.log, w, common.ErrUnauthenticated)
		return
	}

	var filter services.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := models.ParseJobStatus(raw)
		if !ok {
			writeError(r.Context(), h.log, w, common.NewValidationError("status", "unknown status"))
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("ticket"); raw != "" {
		filter.Ticket = &raw
	}

	list, err := h.jobs.List(r.Context(), p, role, filter)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toJobViews(list))
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, role, ok := principalFrom(r.Context())
	if !ok {
		writeError(r.Context(), h.log, w, common.ErrUnauthenticated)
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	job, err := h.jobs.Get(r.Context(), p, role, id)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toJobView(job))
}

// Next serves the runner poll. Polling is read-only: the returned job stays
// PENDING until the runner reports RUNNING. An empty queue is 204, not an
// error.
func (h *JobsHandler) Next(w http.ResponseWriter, r *http.Request) {
	serverDNS := r.URL.Query().Get("serverDns")
	if serverDNS == "" {
		writeError(r.Context(), h.log, w, common.NewValidationError("serverDns", "required"))
		return
	}

	job, err := h.jobs.NextPending(r.Context(), serverDNS)
	if errors.Is(err, common.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toRunnerJobView(job))
}

type runnerUpdateRequest struct {
	Status      string     `json:"status"`
	BlobPath    *string    `json:"blobPath"`
	SHA256      string     `json:"sha256"`
	ETag        *string    `json:"etag"`
	CompletedAt *time.Time `json:"completedAt"`
	Error       string     `json:"error"`
}

// parseRunnerUpdate turns the PATCH body into one of the three transition
// variants. Each variant has its own required fields; an unknown status is a
// validation error, not a conflict.
func parseRunnerUpdate(r *http.Request) (services.RunnerUpdate, error) {
	var req runnerUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, common.NewValidationError("body", "invalid JSON")
	}

	switch req.Status {
	case string(models.JobStatusRunning):
		return services.RunningUpdate{BlobPath: req.BlobPath}, nil
	case string(models.JobStatusCompleted):
		if req.SHA256 == "" {
			return nil, common.NewValidationError("sha256", "required")
		}
		return services.CompletedUpdate{
			BlobPath:    req.BlobPath,
			SHA256:      req.SHA256,
			ETag:        req.ETag,
			CompletedAt: req.CompletedAt,
		}, nil
	case string(models.JobStatusFailed):
		if req.Error == "" {
			return nil, common.NewValidationError("error", "required")
		}
		return services.FailedUpdate{Error: req.Error}, nil
	default:
		return nil, common.NewValidationError("status", "must be RUNNING, COMPLETED or FAILED")
	}
}

func (h *JobsHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	update, err := parseRunnerUpdate(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}

	res, err := h.jobs.ReportTransition(r.Context(), id, update)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, toTransitionView(res))
}

type issueSASRequest struct {
	TTLHours *int `json:"ttlHours"`
}

type issueSASResponse struct {
	SASURL   string `json:"sasUrl"`
	TTLHours int    `json:"ttlHours"`
}

func (h *JobsHandler) IssueSAS(w http.ResponseWriter, r *http.Request) {
	p, role, ok := principalFrom(r.Context())
	if !ok {
		writeError(r.Context(), h.log, w, common.ErrUnauthenticated)
		return
	}

	id, err := pathID(r)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	var req issueSASRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(r.Context(), h.log, w, common.NewValidationError("body", "invalid JSON"))
			return
		}
	}

	sas, err := h.jobs.IssueReadSAS(r.Context(), p, role, id, req.TTLHours)
	if err != nil {
		writeError(r.Context(), h.log, w, err)
		return
	}
	writeData(w, http.StatusOK, issueSASResponse{SASURL: sas.URL, TTLHours: sas.TTLHours})
}
