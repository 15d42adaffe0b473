package handler

import (
	"time"

	appentitlement "github.com/featuregate/backend/internal/application/entitlement"
	"github.com/gin-gonic/gin"
)

// MaintenanceHandler exposes operational tasks: the usage ledger retention
// sweep
type MaintenanceHandler struct {
	BaseHandler
	prune *appentitlement.PruneService
}

// NewMaintenanceHandler creates a new maintenance handler
func NewMaintenanceHandler(prune *appentitlement.PruneService) *MaintenanceHandler {
	return &MaintenanceHandler{prune: prune}
}

// PruneRequest is the body for a retention sweep. With no horizon set the
// cutoff defaults to one year back.
type PruneRequest struct {
	Days      int  `json:"days" binding:"min=0"`
	Months    int  `json:"months" binding:"min=0"`
	Years     int  `json:"years" binding:"min=0"`
	ZeroUsage bool `json:"zero_usage"`
	DryRun    bool `json:"dry_run"`
}

// PruneResponse reports the outcome of a retention sweep
type PruneResponse struct {
	Cutoff  time.Time `json:"cutoff"`
	Matched int64     `json:"matched"`
	Deleted int64     `json:"deleted"`
	DryRun  bool      `json:"dry_run"`
}

// PruneUsage removes expired usage rows. Dry-run counts without deleting.
func (h *MaintenanceHandler) PruneUsage(c *gin.Context) {
	var req PruneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.prune.Run(c.Request.Context(), appentitlement.PruneOptions{
		Days:      req.Days,
		Months:    req.Months,
		Years:     req.Years,
		ZeroUsage: req.ZeroUsage,
		DryRun:    req.DryRun,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, PruneResponse{
		Cutoff:  result.Cutoff,
		Matched: result.Matched,
		Deleted: result.Deleted,
		DryRun:  result.DryRun,
	})
}
