package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voltbase/scooterdex-backend/internal/services"
	"github.com/voltbase/scooterdex-backend/internal/types"
)

type JobsHandler struct {
	jobs services.JobService
}

func NewJobsHandler(jobs services.JobService) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

type scrapeRequest struct {
	State string `json:"state"`
	City  string `json:"city"`
}

// POST /api/scrape
// Enqueues a scrape and returns the job id immediately; the run itself
// happens out-of-band.
func (h *JobsHandler) TriggerScrape(c *gin.Context) {
	var req scrapeRequest
	// An absent body means a full-plan scrape; a body that fails to parse is
	// rejected rather than reinterpreted as one.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}

	jobType := types.JobTypeScrapeAll
	payload := map[string]any{}
	if req.State != "" {
		jobType = types.JobTypeScrapeState
		payload["state"] = req.State
		if req.City != "" {
			payload["city"] = req.City
		}
	}

	jobID, err := h.jobs.Enqueue(c.Request.Context(), jobType, payload)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "job_type": jobType})
}

type aiProcessRequest struct {
	States []string `json:"states"`
}

// POST /api/ai/process
func (h *JobsHandler) TriggerAIProcessing(c *gin.Context) {
	var req aiProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondError(c, http.StatusBadRequest, "invalid_request_body", err)
		return
	}

	payload := map[string]any{}
	if len(req.States) > 0 {
		states := make([]any, 0, len(req.States))
		for _, s := range req.States {
			states = append(states, s)
		}
		payload["states"] = states
	}

	jobID, err := h.jobs.Enqueue(c.Request.Context(), types.JobTypeAIProcess, payload)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "job_type": types.JobTypeAIProcess})
}

// GET /api/jobs/:id
func (h *JobsHandler) GetJobByID(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "job_lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "job_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"job": job})
}
