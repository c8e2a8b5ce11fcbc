package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"options-analytics/interfaces"
	"options-analytics/services"
)

// RunController serves the pipeline run journal
type RunController struct {
	journal *services.RunJournal
}

// NewRunController creates a new run controller
func NewRunController(journal *services.RunJournal) *RunController {
	return &RunController{
		journal: journal,
	}
}

// HandleGetCurrentRuns returns today's run log
func (rc *RunController) HandleGetCurrentRuns(c *gin.Context) {
	log, err := rc.journal.GetCurrentLog()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, log)
}

// HandleGetRunsByDate returns the run log for a YYYY-MM-DD date
func (rc *RunController) HandleGetRunsByDate(c *gin.Context) {
	log, err := rc.journal.GetLogForDate(c.Param("date"))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, interfaces.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, log)
}

// HandleListRuns returns the dates that have a run log
func (rc *RunController) HandleListRuns(c *gin.Context) {
	dates, err := rc.journal.ListAvailableLogs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dates": dates,
		"count": len(dates),
	})
}
