package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

const defaultHistoryWindow = 24 * time.Hour

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"bans":    len(s.engine.ListBanned()),
		"tracked": len(s.engine.ListTracked()),
	})
}

// history lists bans started in [from, to]. Both bounds are RFC3339 and
// default to the last 24 hours.
func (s *Server) history(c *gin.Context) {
	to := s.now()
	from := to.Add(-defaultHistoryWindow)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, "Invalid from timestamp", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(c, "Invalid to timestamp", http.StatusBadRequest)
			return
		}
		to = parsed
	}
	if to.Before(from) {
		writeError(c, "from must not be after to", http.StatusBadRequest)
		return
	}

	records, err := s.store.ListBetween(c.Request.Context(), from, to)
	if err != nil {
		log.Error("History query failed", "error", err)
		writeError(c, "Failed to query ban history", http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) stats(c *gin.Context) {
	stats, err := s.store.GetStatistics(c.Request.Context())
	if err != nil {
		log.Error("Statistics query failed", "error", err)
		writeError(c, "Failed to compute statistics", http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, stats)
}
