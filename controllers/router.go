package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handlers groups the controllers mounted by NewRouter. A nil controller
// leaves its routes unmounted.
type Handlers struct {
	Options *OptionsController
	Stocks  *StockController
	Runs    *RunController
}

// NewRouter builds the /api route tree
func NewRouter(h Handlers, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if h.Stocks != nil {
		stocks := api.Group("/stocks")
		stocks.GET("/count", h.Stocks.HandleCount)
		stocks.POST("/search", h.Stocks.HandleSearch)
		stocks.POST("/refresh", h.Stocks.HandleRefresh)
	}

	if h.Options != nil {
		options := api.Group("/options")
		options.POST("/process", h.Options.HandleProcess)
		options.GET("/latest", h.Options.HandleLatest)
		options.GET("/trend", h.Options.HandleTrend)
	}

	if h.Runs != nil {
		runs := api.Group("/runs")
		runs.GET("", h.Runs.HandleListRuns)
		runs.GET("/current", h.Runs.HandleGetCurrentRuns)
		runs.GET("/:date", h.Runs.HandleGetRunsByDate)
	}

	return router
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if logger == nil {
			return
		}
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	}
}
