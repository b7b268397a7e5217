// -----------------------------------------------------------------------
// Job Handler - Query surface over the job status store and dispatcher
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/faber/internal/interfaces"
	"github.com/ternarybob/faber/internal/models"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	statusStore interfaces.JobStatusStorage
	dispatcher  interfaces.JobDispatcher
	logger      arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(statusStore interfaces.JobStatusStorage, dispatcher interfaces.JobDispatcher, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		statusStore: statusStore,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// validJobStates guards the state query parameter
var validJobStates = map[models.JobState]bool{
	models.JobStateQueued:     true,
	models.JobStateProcessing: true,
	models.JobStateCompleted:  true,
	models.JobStateFailed:     true,
	models.JobStateCancelled:  true,
	models.JobStateRetried:    true,
	models.JobStateDeadLetter: true,
}

// ListJobsHandler returns a paginated list of job status records
// GET /api/jobs?limit=50&offset=0&state=completed&type=generate_plan&source=webhook&correlation_id=cor_x
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	limit, offset := ParseLimitOffset(r, 50, 200)

	filter := &models.JobStatusFilter{
		JobType:       r.URL.Query().Get("type"),
		Source:        r.URL.Query().Get("source"),
		CorrelationID: r.URL.Query().Get("correlation_id"),
	}

	if stateStr := r.URL.Query().Get("state"); stateStr != "" {
		state := models.JobState(stateStr)
		if !validJobStates[state] {
			WriteError(w, http.StatusBadRequest, "Invalid state filter: "+stateStr)
			return
		}
		filter.State = state
	}

	jobs, err := h.statusStore.List(ctx, filter, offset, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	totalCount, err := h.statusStore.Count(ctx, filter)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count jobs")
		totalCount = len(jobs)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":        jobs,
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
	})
}

// GetJobHandler returns a single job status record by ID
// GET /api/jobs/{id}
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	// Extract job ID from path: /api/jobs/{id}
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	jobID := pathParts[2]

	status, err := h.statusStore.Get(ctx, jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	if status == nil {
		WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	WriteJSON(w, http.StatusOK, status)
}

// CancelJobHandler requests cancellation of a queued or processing job
// POST /api/jobs/{id}/cancel
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	// Extract job ID from path: /api/jobs/{id}/cancel
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 4 || pathParts[2] == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}
	jobID := pathParts[2]

	if err := h.dispatcher.CancelJob(jobID); err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info().Str("job_id", jobID).Msg("Job cancellation requested")
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "cancel_requested",
		"job_id": jobID,
	})
}

// GetJobStatsHandler returns aggregate queue metrics
// GET /api/jobs/stats
func (h *JobHandler) GetJobStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	ctx := r.Context()

	metrics, err := h.statusStore.Metrics(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to compute job metrics")
		WriteError(w, http.StatusInternalServerError, "Failed to compute job metrics")
		return
	}

	WriteJSON(w, http.StatusOK, metrics)
}
