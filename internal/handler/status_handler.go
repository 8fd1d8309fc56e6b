package handler

import (
	"context"
	"net/http"
	"time"

	"services/price-ingest-service/internal/quota"
	"services/price-ingest-service/internal/scheduler"
	"services/price-ingest-service/internal/service"
	"services/price-ingest-service/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger verifies the persistent store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusHandler serves health, usage and quota observability endpoints
type StatusHandler struct {
	store        Pinger
	usageService *service.UsageService
	eodService   *service.EODService
	governor     quota.Governor
	sched        *scheduler.Scheduler
	logger       *zap.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(
	store Pinger,
	usageService *service.UsageService,
	eodService *service.EODService,
	governor quota.Governor,
	sched *scheduler.Scheduler,
	logger *zap.Logger,
) *StatusHandler {
	return &StatusHandler{
		store:        store,
		usageService: usageService,
		eodService:   eodService,
		governor:     governor,
		sched:        sched,
		logger:       logger,
	}
}

// Healthz reports store reachability, the last EOD run and next triggers
// GET /healthz
func (h *StatusHandler) Healthz(c *gin.Context) {
	ctx := c.Request.Context()

	storeOK := true
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Health check: store unreachable", zap.Error(err))
		storeOK = false
	}

	var lastEOD interface{}
	if t := h.eodService.LastRun(); t != nil {
		lastEOD = t.Format(time.RFC3339)
	}

	nextRuns := make(map[string]interface{})
	for name, next := range h.sched.NextRuns() {
		if next.IsZero() {
			nextRuns[name] = nil
		} else {
			nextRuns[name] = next.Format(time.RFC3339)
		}
	}

	body := gin.H{
		"status":           "ok",
		"db":               storeOK,
		"last_eod_run_utc": lastEOD,
		"next_runs":        nextRuns,
	}

	// Usage is best effort; the store may be the thing that is down.
	if storeOK {
		if snapshot, err := h.usageService.Snapshot(ctx); err == nil {
			body["calls_today"] = snapshot.CallsToday
			body["calls_this_hour"] = snapshot.CallsThisHour
			body["calls_left_today"] = snapshot.CallsLeftToday
		}
	}

	status := http.StatusOK
	if !storeOK {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, body)
}

// GetUsage returns today's call accounting with the hourly breakdown
// GET /usage
func (h *StatusHandler) GetUsage(c *gin.Context) {
	snapshot, err := h.usageService.SnapshotWithBreakdown(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read usage", zap.Error(err))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to read usage")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetLimits returns the active quota governor's snapshot
// GET /limits
func (h *StatusHandler) GetLimits(c *gin.Context) {
	snapshot, err := h.governor.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read quota snapshot", zap.Error(err))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to read quota snapshot")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
