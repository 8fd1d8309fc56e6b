package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"services/price-ingest-service/internal/scheduler"
	"services/price-ingest-service/internal/service"
	"services/price-ingest-service/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// IngestHandler exposes manual ingestion triggers and intraday daemon control
type IngestHandler struct {
	eodService      *service.EODService
	intradayService *service.IntradayService
	sched           *scheduler.Scheduler
	startIntraday   func() error
	logger          *zap.Logger
}

// NewIngestHandler creates a new ingest handler. startIntraday re-registers
// the intraday job with its computed cadence.
func NewIngestHandler(
	eodService *service.EODService,
	intradayService *service.IntradayService,
	sched *scheduler.Scheduler,
	startIntraday func() error,
	logger *zap.Logger,
) *IngestHandler {
	return &IngestHandler{
		eodService:      eodService,
		intradayService: intradayService,
		sched:           sched,
		startIntraday:   startIntraday,
		logger:          logger,
	}
}

// SyncEOD runs one end-of-day ingestion cycle immediately
// POST /prices/sync
func (h *IngestHandler) SyncEOD(c *gin.Context) {
	report, err := h.eodService.RunCycle(c.Request.Context())
	if err != nil {
		h.logger.Error("EOD sync aborted", zap.Error(err))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "EOD sync aborted: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, report)
}

// SyncIntraday runs one intraday cycle for a single symbol or all symbols
// POST /prices/intraday/sync?symbol=MSFT&window_minutes=30
func (h *IngestHandler) SyncIntraday(c *gin.Context) {
	var windowOverride *time.Duration
	if raw := c.Query("window_minutes"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			utils.SendErrorResponse(c, http.StatusBadRequest, "window_minutes must be a positive integer")
			return
		}
		window := time.Duration(minutes) * time.Minute
		windowOverride = &window
	}

	if symbol := strings.TrimSpace(c.Query("symbol")); symbol != "" {
		outcome := h.intradayService.SyncSymbol(c.Request.Context(), symbol, windowOverride)
		utils.SendDataResponse(c, http.StatusOK, gin.H{outcome.Symbol: outcome})
		return
	}

	report, err := h.intradayService.RunCycle(c.Request.Context(), windowOverride)
	if err != nil {
		h.logger.Error("Intraday sync aborted", zap.Error(err))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "intraday sync aborted: "+err.Error())
		return
	}
	utils.SendDataResponse(c, http.StatusOK, report.Results)
}

// StartDaemon registers the recurring intraday job if not already running
// POST /daemon/start
func (h *IngestHandler) StartDaemon(c *gin.Context) {
	if h.sched.Has(scheduler.JobIntraday) {
		c.JSON(http.StatusOK, gin.H{"message": "Daemon already running"})
		return
	}
	if err := h.startIntraday(); err != nil {
		h.logger.Error("Failed to start intraday daemon", zap.Error(err))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "failed to start daemon")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Daemon started"})
}

// StopDaemon unregisters the recurring intraday job
// POST /daemon/stop
func (h *IngestHandler) StopDaemon(c *gin.Context) {
	if !h.sched.Remove(scheduler.JobIntraday) {
		c.JSON(http.StatusOK, gin.H{"message": "Daemon not running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Daemon stopped"})
}

// DaemonStatus reports whether the intraday job is scheduled
// GET /daemon/status
func (h *IngestHandler) DaemonStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": h.sched.Has(scheduler.JobIntraday)})
}
