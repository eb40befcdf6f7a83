package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voltbase/scooterdex-backend/internal/repos"
)

type RunsHandler struct {
	runs repos.ScrapeRunRepo
}

func NewRunsHandler(runs repos.ScrapeRunRepo) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// GET /api/runs?limit=50
func (h *RunsHandler) ListRuns(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	runs, err := h.runs.ListRecent(c.Request.Context(), nil, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "run_lookup_failed", err)
		return
	}
	RespondOK(c, gin.H{"runs": runs, "count": len(runs)})
}

// GET /api/runs/:id
func (h *RunsHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.runs.GetByID(c.Request.Context(), nil, runID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "run_lookup_failed", err)
		return
	}
	if run == nil {
		RespondError(c, http.StatusNotFound, "run_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"run": run})
}
