package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"options-analytics/interfaces"
	"options-analytics/services"
)

// OptionsController handles option snapshot endpoints
type OptionsController struct {
	optionsService *services.OptionsService
	trendService   *services.TrendService
	logger         *logrus.Logger
}

// NewOptionsController creates a new options controller
func NewOptionsController(options *services.OptionsService, trend *services.TrendService, logger *logrus.Logger) *OptionsController {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return &OptionsController{
		optionsService: options,
		trendService:   trend,
		logger:         logger,
	}
}

// ProcessRequest names the underlying to snapshot
type ProcessRequest struct {
	TradingSymbol string `json:"tradingsymbol" binding:"required"`
}

// HandleProcess runs the snapshot pipeline for one underlying
func (oc *OptionsController) HandleProcess(c *gin.Context) {
	var req ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	result, err := oc.optionsService.ProcessUnderlying(c.Request.Context(), req.TradingSymbol)
	if err != nil {
		switch {
		case errors.Is(err, interfaces.ErrEmptyUnderlying):
			c.JSON(http.StatusBadRequest, gin.H{"error": "tradingsymbol cannot be empty"})
		case errors.Is(err, interfaces.ErrNoContracts):
			c.JSON(http.StatusNotFound, gin.H{"error": "No option contracts found", "details": err.Error()})
		default:
			oc.logger.WithError(err).WithField("tradingsymbol", req.TradingSymbol).Error("Failed to process underlying")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process underlying", "details": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "success",
		"tradingsymbol":      result.Underlying,
		"option_contracts":   result.Contracts,
		"inserted_snapshots": result.Saved,
		"skipped":            result.Skipped,
		"run_id":             result.RunID,
		"snapshot_time":      result.SnapshotTime,
	})
}

// HandleLatest returns the latest stored snapshot of each contract on an underlying
func (oc *OptionsController) HandleLatest(c *gin.Context) {
	underlying, rows, err := oc.optionsService.LatestChain(c.Query("tradingsymbol"))
	if err != nil {
		if errors.Is(err, interfaces.ErrEmptyUnderlying) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tradingsymbol cannot be empty"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch option chain", "details": err.Error()})
		return
	}

	if rows == nil {
		rows = []interfaces.ChainRow{}
	}

	c.JSON(http.StatusOK, gin.H{
		"tradingsymbol": underlying,
		"count":         len(rows),
		"data":          rows,
	})
}

// HandleTrend returns the stored history of one option instrument
func (oc *OptionsController) HandleTrend(c *gin.Context) {
	id, err := strconv.ParseUint(c.Query("option_instrument_id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "option_instrument_id must be a positive integer"})
		return
	}

	days := services.DefaultTrendDays
	if raw := c.Query("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > 365 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
			return
		}
	}

	report, err := oc.trendService.OptionTrend(c.Request.Context(), uint(id), days)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Option instrument not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch trend data", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}
