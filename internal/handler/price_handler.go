package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"services/price-ingest-service/internal/service"
	"services/price-ingest-service/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PriceHandler serves stored price bars over HTTP
type PriceHandler struct {
	priceService *service.PriceQueryService
	logger       *zap.Logger
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(priceService *service.PriceQueryService, logger *zap.Logger) *PriceHandler {
	return &PriceHandler{
		priceService: priceService,
		logger:       logger,
	}
}

// parseDateParam accepts YYYY-MM-DD or RFC3339
func parseDateParam(raw string) (*time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}

// GetLatest returns the newest EOD bar per symbol
// GET /prices/latest?symbol=MSFT
func (h *PriceHandler) GetLatest(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))

	bars, err := h.priceService.Latest(c.Request.Context(), symbol)
	if err != nil {
		h.logger.Error("Failed to get latest prices", zap.Error(err), zap.String("symbol", symbol))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to get latest prices")
		return
	}
	utils.SendDataResponse(c, http.StatusOK, bars)
}

// GetHistory returns EOD bars for an inclusive date range
// GET /prices/history?symbol=MSFT&start=2020-01-01&end=2020-06-30&order=asc
func (h *PriceHandler) GetHistory(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		utils.SendErrorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}

	var start, end *time.Time
	var err error
	if raw := c.Query("start"); raw != "" {
		if start, err = parseDateParam(raw); err != nil {
			utils.SendErrorResponse(c, http.StatusBadRequest, "Invalid start format. Use YYYY-MM-DD or RFC3339")
			return
		}
	}
	if raw := c.Query("end"); raw != "" {
		if end, err = parseDateParam(raw); err != nil {
			utils.SendErrorResponse(c, http.StatusBadRequest, "Invalid end format. Use YYYY-MM-DD or RFC3339")
			return
		}
	}

	bars, err := h.priceService.History(c.Request.Context(), symbol, start, end, c.Query("order"))
	if err != nil {
		h.logger.Error("Failed to get price history", zap.Error(err), zap.String("symbol", symbol))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to get price history")
		return
	}
	utils.SendDataResponse(c, http.StatusOK, bars)
}

// GetIntradayHistory returns intraday bars for an inclusive time range
// GET /prices/intraday/history?symbol=MSFT&interval_sec=60&limit=500
func (h *PriceHandler) GetIntradayHistory(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		utils.SendErrorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}

	intervalSec := 0
	if raw := c.Query("interval_sec"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			utils.SendErrorResponse(c, http.StatusBadRequest, "interval_sec must be a positive integer")
			return
		}
		intervalSec = v
	}

	var start, end *time.Time
	var err error
	if raw := c.Query("start"); raw != "" {
		if start, err = parseDateParam(raw); err != nil {
			utils.SendErrorResponse(c, http.StatusBadRequest, "Invalid start format. Use YYYY-MM-DD or RFC3339")
			return
		}
	}
	if raw := c.Query("end"); raw != "" {
		if end, err = parseDateParam(raw); err != nil {
			utils.SendErrorResponse(c, http.StatusBadRequest, "Invalid end format. Use YYYY-MM-DD or RFC3339")
			return
		}
	}

	var limit *int
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100000 {
			utils.SendErrorResponse(c, http.StatusBadRequest, "limit must be between 1 and 100000")
			return
		}
		limit = &v
	}

	bars, err := h.priceService.IntradayHistory(c.Request.Context(), symbol, intervalSec, start, end, c.Query("order"), limit)
	if err != nil {
		h.logger.Error("Failed to get intraday history", zap.Error(err), zap.String("symbol", symbol))
		utils.SendErrorResponse(c, http.StatusInternalServerError, "Failed to get intraday history")
		return
	}
	utils.SendDataResponse(c, http.StatusOK, bars)
}
