package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"options-analytics/interfaces"
	"options-analytics/services"
)

// StockController handles stock catalog endpoints
type StockController struct {
	stockService *services.StockService
}

// NewStockController creates a new stock controller
func NewStockController(stockService *services.StockService) *StockController {
	return &StockController{
		stockService: stockService,
	}
}

// SearchRequest is a partial name or symbol query
type SearchRequest struct {
	Query   string `json:"query" binding:"required"`
	Segment string `json:"segment"`
	Limit   int    `json:"limit"`
}

// HandleCount returns the number of stored stocks and indices
func (sc *StockController) HandleCount(c *gin.Context) {
	count, err := sc.stockService.Count()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// HandleSearch finds stocks by partial name or trading symbol
func (sc *StockController) HandleSearch(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	stocks, err := sc.stockService.Search(req.Query, req.Segment, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search stocks", "details": err.Error()})
		return
	}
	if stocks == nil {
		stocks = []interfaces.StockInstrument{}
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   req.Query,
		"count":   len(stocks),
		"results": stocks,
	})
}

// HandleRefresh reloads the stock catalog from the provider
func (sc *StockController) HandleRefresh(c *gin.Context) {
	count, err := sc.stockService.Refresh(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to refresh stocks", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"extracted":   count,
		"underlyings": len(sc.stockService.UnderlyingTokens()),
	})
}
