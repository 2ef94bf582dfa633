// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package handlers implements the management API endpoints.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apisentry/apisentry/internal/healing"
	"github.com/apisentry/apisentry/internal/probe"
)

// HealingHandler serves the healing pipeline endpoints.
type HealingHandler struct {
	controller *healing.Controller
	ledger     healing.Ledger
	runner     *probe.Runner
}

// NewHealingHandler creates a handler over the controller, its ledger, and
// the probe runner.
func NewHealingHandler(controller *healing.Controller, ledger healing.Ledger, runner *probe.Runner) *HealingHandler {
	return &HealingHandler{
		controller: controller,
		ledger:     ledger,
		runner:     runner,
	}
}

// RunHealingRequest is a batch of failed probes to heal.
type RunHealingRequest struct {
	FailedProbes []probe.FailedProbe `json:"failed_probes" binding:"required"`
}

// RunHealing handles POST /v0/healing/run.
// It processes the submitted batch and returns one result per probe.
//
// Response:
//   - 200: Results for every submitted probe
//   - 400: Invalid request body
func (h *HealingHandler) RunHealing(c *gin.Context) {
	var req RunHealingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}
	if len(req.FailedProbes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "failed_probes cannot be empty",
		})
		return
	}

	results := h.controller.HealBatch(c.Request.Context(), req.FailedProbes)
	c.JSON(http.StatusOK, gin.H{
		"results": results,
	})
}

// attemptView is an attempt with its ordered step ledger attached.
type attemptView struct {
	*healing.Attempt
	Steps []*healing.Step `json:"steps"`
}

// ListAttempts handles GET /v0/healing/attempts?run_group=<id>.
//
// Response:
//   - 200: Attempts for the run-group, oldest first, steps attached
//   - 400: Missing run_group parameter
func (h *HealingHandler) ListAttempts(c *gin.Context) {
	runGroup := c.Query("run_group")
	if runGroup == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "run_group query parameter is required",
		})
		return
	}

	attempts, err := h.ledger.ListAttempts(c.Request.Context(), runGroup)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list attempts: " + err.Error(),
		})
		return
	}

	views := make([]attemptView, 0, len(attempts))
	for _, attempt := range attempts {
		steps, err := h.ledger.ListSteps(c.Request.Context(), attempt.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "failed to list steps: " + err.Error(),
			})
			return
		}
		views = append(views, attemptView{Attempt: attempt, Steps: steps})
	}

	c.JSON(http.StatusOK, gin.H{
		"run_group_id": runGroup,
		"attempts":     views,
	})
}

// GetAttempt handles GET /v0/healing/attempts/:id.
//
// Response:
//   - 200: The attempt with its ordered steps
//   - 404: Unknown attempt id
func (h *HealingHandler) GetAttempt(c *gin.Context) {
	id := c.Param("id")

	attempt, err := h.ledger.GetAttempt(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "attempt not found: " + id,
		})
		return
	}

	steps, err := h.ledger.ListSteps(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to list steps: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, attemptView{Attempt: attempt, Steps: steps})
}

// RunProbes handles GET /v0/probes/run.
// It executes every registered probe once, heals the failures, and returns
// the run summary together with per-probe healing results.
//
// Response:
//   - 200: Run summary and healing results
//   - 503: No probes registered
func (h *HealingHandler) RunProbes(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "probe runner not configured",
		})
		return
	}

	run, err := h.runner.Run(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": err.Error(),
		})
		return
	}

	var results []healing.Result
	if len(run.Failed) > 0 {
		results = h.controller.HealBatch(c.Request.Context(), run.Failed)
	}

	c.JSON(http.StatusOK, gin.H{
		"run_group_id": run.RunGroupID,
		"total":        run.Total,
		"passed":       run.Passed,
		"failed":       len(run.Failed),
		"healing":      results,
	})
}
