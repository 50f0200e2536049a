package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vantor/intelpost-backend/internal/jobs"
	"github.com/vantor/intelpost-backend/internal/logger"
	pkgerrors "github.com/vantor/intelpost-backend/internal/pkg/errors"
	"github.com/vantor/intelpost-backend/internal/repos"
	"github.com/vantor/intelpost-backend/internal/services"
)

type TaxonomyHandler struct {
	tree services.CategoryTreeService
	runs repos.ReconcileRunRepo
	log  *logger.Logger
}

func NewTaxonomyHandler(tree services.CategoryTreeService, runs repos.ReconcileRunRepo, baseLog *logger.Logger) *TaxonomyHandler {
	return &TaxonomyHandler{
		tree: tree,
		runs: runs,
		log:  baseLog.With("handler", "TaxonomyHandler"),
	}
}

// GetCategoryTree serves the flat category list for the browsing UI.
func (h *TaxonomyHandler) GetCategoryTree(c *gin.Context) {
	nodes, err := h.tree.GetTree(c.Request.Context())
	if err != nil {
		h.log.Error("GetTree failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "tree_unavailable", err)
		return
	}
	RespondOK(c, gin.H{"categories": nodes})
}

type runReconciliationRequest struct {
	Mode string `json:"mode"`
}

// RunReconciliation enqueues a reconciliation run; the worker claims
// and executes it. Responds 202 with the queued run for polling.
func (h *TaxonomyHandler) RunReconciliation(c *gin.Context) {
	var req runReconciliationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	run, err := jobs.Enqueue(c.Request.Context(), h.runs, req.Mode)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidArgument) {
			RespondError(c, http.StatusBadRequest, "invalid_mode", err)
			return
		}
		h.log.Error("Enqueue failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

// GetReconcileRun reports the status and counters of one run.
func (h *TaxonomyHandler) GetReconcileRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.runs.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		h.log.Error("GetByID failed", "run_id", id, "error", err)
		RespondError(c, http.StatusInternalServerError, "run_lookup_failed", err)
		return
	}
	if run == nil {
		RespondError(c, http.StatusNotFound, "run_not_found", pkgerrors.ErrNotFound)
		return
	}
	RespondOK(c, gin.H{"run": run})
}
