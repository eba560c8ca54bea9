package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleManualSync(c *gin.Context) {
	result, err := h.scheduler.TriggerManual(c.Request.Context())
	timestamp := h.clock().UTC().Format(time.RFC3339)
	if err != nil {
		h.logger.Error("manual sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":   false,
			"message":   err.Error(),
			"timestamp": timestamp,
		})
		return
	}
	message := "Full sync completed"
	statusCode := http.StatusOK
	if !result.Success {
		message = "Full sync completed with errors"
		statusCode = http.StatusInternalServerError
	}
	c.JSON(statusCode, gin.H{
		"success":   result.Success,
		"message":   message,
		"timestamp": timestamp,
		"results":   result.Results,
	})
}

func (h *httpHandler) handleSignupSync(c *gin.Context) {
	run, err := h.orchestrator.RunSignupSync(c.Request.Context(), false)
	timestamp := h.clock().UTC().Format(time.RFC3339)
	if err != nil {
		h.logger.Error("signup sync failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"message":   err.Error(),
			"timestamp": timestamp,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      "Signup sync completed",
		"synced_count": run.RecordsProcessed,
		"timestamp":    timestamp,
	})
}

func (h *httpHandler) handleSyncStatus(c *gin.Context) {
	status, err := h.scheduler.CurrentStatus(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to assemble sync status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_status_unavailable"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *httpHandler) handleSyncRuns(c *gin.Context) {
	runs, err := h.orchestrator.LatestRuns(c.Request.Context(), 20)
	if err != nil {
		h.logger.Error("failed to list sync runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync_runs_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
